package main

import (
	"net/http"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// settingsForm is the body of POST /settings. The whole record is sent
// every time; blank optional fields clear the stored value.
type settingsForm struct {
	FullName          string `json:"full_name" validate:"required,max=120"`
	Phone             string `json:"phone" validate:"required,max=32"`
	Gender            string `json:"gender" validate:"required,oneof=male female other"`
	DateOfBirth       string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Height            string `json:"height" validate:"required"`
	MaritalStatus     string `json:"marital_status" validate:"required,oneof=never_married divorced widowed awaiting_divorce"`
	Religion          string `json:"religion" validate:"required"`
	MotherTongue      string `json:"mother_tongue" validate:"required"`
	Location          string `json:"location" validate:"required"`
	Education         string `json:"education" validate:"required"`
	EducationDetails  string `json:"education_details"`
	Occupation        string `json:"occupation" validate:"required"`
	OccupationDetails string `json:"occupation_details"`
	AnnualIncome      string `json:"annual_income"`
	About             string `json:"about" validate:"required,max=2000"`
	FamilyDetails     string `json:"family_details"`
	Diet              string `json:"diet"`
	Smoking           string `json:"smoking"`
	Drinking          string `json:"drinking"`
}

var settingsLabels = map[string]string{
	"full_name":      "Full name",
	"phone":          "Phone number",
	"gender":         "Gender",
	"date_of_birth":  "Date of birth",
	"height":         "Height",
	"marital_status": "Marital status",
	"religion":       "Religion",
	"mother_tongue":  "Mother tongue",
	"location":       "Location",
	"education":      "Education",
	"occupation":     "Occupation",
	"about":          "About me",
}

var settingsOptions = map[string][]filter.Option{
	"gender": {{"male", "Male"}, {"female", "Female"}, {"other", "Other"}},
	"marital_status": {
		{"never_married", "Never Married"}, {"divorced", "Divorced"},
		{"widowed", "Widowed"}, {"awaiting_divorce", "Awaiting Divorce"},
	},
	"religion": {
		{"hindu", "Hindu"}, {"muslim", "Muslim"}, {"christian", "Christian"}, {"sikh", "Sikh"},
		{"jain", "Jain"}, {"buddhist", "Buddhist"}, {"other", "Other"},
	},
	"mother_tongue": {
		{"hindi", "Hindi"}, {"tamil", "Tamil"}, {"telugu", "Telugu"}, {"marathi", "Marathi"},
		{"bengali", "Bengali"}, {"gujarati", "Gujarati"}, {"kannada", "Kannada"},
		{"malayalam", "Malayalam"}, {"punjabi", "Punjabi"}, {"urdu", "Urdu"}, {"other", "Other"},
	},
	"education": {
		{"high_school", "High School"}, {"bachelors", "Bachelor's Degree"},
		{"masters", "Master's Degree"}, {"doctorate", "Doctorate"}, {"other", "Other"},
	},
	"occupation": {
		{"private_sector", "Private Sector"}, {"government", "Government/Public Sector"},
		{"business", "Business/Self Employed"}, {"doctor", "Doctor"}, {"engineer", "Engineer"},
		{"teacher", "Teacher"}, {"other", "Other"},
	},
	"annual_income": {
		{"", "Prefer not to say"}, {"0-300000", "Up to 3 Lakhs"}, {"300000-500000", "3-5 Lakhs"},
		{"500000-700000", "5-7 Lakhs"}, {"700000-1000000", "7-10 Lakhs"},
		{"1000000-1500000", "10-15 Lakhs"}, {"1500000-2000000", "15-20 Lakhs"}, {"2000000+", "20+ Lakhs"},
	},
	"diet": {
		{"veg", "Vegetarian"}, {"non_veg", "Non-Vegetarian"}, {"eggetarian", "Eggetarian"},
		{"vegan", "Vegan"}, {"jain", "Jain"},
	},
	"smoking":  {{"never", "Never"}, {"occasionally", "Occasionally"}, {"regularly", "Regularly"}},
	"drinking": {{"never", "Never"}, {"occasionally", "Occasionally"}, {"regularly", "Regularly"}},
}

type settingsView struct {
	Account   store.Account              `json:"account"`
	AvatarURL string                     `json:"avatar_url"`
	Options   map[string][]filter.Option `json:"options"`
}

// GET /settings
func settingsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())
		acct, ok, err := a.account(r.Context(), user.ID)
		if err != nil {
			a.log.Error("load account", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_error", errorToast("Error loading profile"))
			return
		}
		if !ok {
			acct = store.Account{ID: user.ID}
		}
		view := settingsView{Account: acct, AvatarURL: acct.AvatarURL, Options: settingsOptions}
		if view.AvatarURL == "" {
			view.AvatarURL = defaultProfileImage
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// POST /settings
func saveSettingsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())

		var form settingsForm
		if err := decodeJSON(r, &form); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		form.trim()
		if err := a.validate.Struct(form); err != nil {
			fields, ok := fieldErrors(err, settingsLabels)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
			writeValidation(w, fields)
			return
		}

		// avatar_url is owned by the photo upload; keep the stored one
		prev, _, err := a.account(r.Context(), user.ID)
		if err != nil {
			a.log.Error("load account before save", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_error",
				errorToast("Error updating profile: "+err.Error()))
			return
		}

		acct := form.account(user.ID)
		acct.AvatarURL = prev.AvatarURL
		acct.ProfileCompletion = profileCompletion(acct)

		saved, err := a.store.UpsertAccount(r.Context(), acct)
		if err != nil {
			a.log.Error("upsert account", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_error",
				errorToast("Error updating profile: "+err.Error()))
			return
		}
		a.cache.InvalidateKey(querycache.Key{Kind: kindAccount, Params: user.ID})

		writeJSON(w, http.StatusOK, struct {
			Account store.Account `json:"account"`
			Toast   *Toast        `json:"toast"`
		}{saved, successToast("Profile updated successfully!")})
	}
}

func (f *settingsForm) trim() {
	v := reflect.ValueOf(f).Elem()
	for i := 0; i < v.NumField(); i++ {
		if fv := v.Field(i); fv.Kind() == reflect.String {
			fv.SetString(strings.TrimSpace(fv.String()))
		}
	}
}

func (f settingsForm) account(userID string) store.Account {
	return store.Account{
		ID:                userID,
		FullName:          f.FullName,
		Phone:             f.Phone,
		Gender:            f.Gender,
		DateOfBirth:       f.DateOfBirth,
		Height:            f.Height,
		MaritalStatus:     f.MaritalStatus,
		Religion:          f.Religion,
		MotherTongue:      f.MotherTongue,
		Location:          f.Location,
		Education:         f.Education,
		EducationDetails:  f.EducationDetails,
		Occupation:        f.Occupation,
		OccupationDetails: f.OccupationDetails,
		AnnualIncome:      f.AnnualIncome,
		About:             f.About,
		FamilyDetails:     f.FamilyDetails,
		Diet:              f.Diet,
		Smoking:           f.Smoking,
		Drinking:          f.Drinking,
	}
}

// profileCompletion is the share of filled fields, photo included, as a
// percentage. A saved form always has the required fields.
func profileCompletion(acct store.Account) int {
	fields := []string{
		acct.FullName, acct.Phone, acct.Gender, acct.DateOfBirth, acct.Height,
		acct.MaritalStatus, acct.Religion, acct.MotherTongue, acct.Location,
		acct.Education, acct.EducationDetails, acct.Occupation, acct.OccupationDetails,
		acct.AnnualIncome, acct.About, acct.FamilyDetails, acct.Diet, acct.Smoking,
		acct.Drinking, acct.AvatarURL,
	}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}
	return filled * 100 / len(fields)
}
