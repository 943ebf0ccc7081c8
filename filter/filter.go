package filter

import (
	"net/url"
	"strconv"
	"strings"
)

// Filter is the sparse set of search fields a visitor can set on the
// profile list. Unset fields impose no constraint.
type Filter struct {
	AgeMin     *int   `json:"ageMin,omitempty"`
	AgeMax     *int   `json:"ageMax,omitempty"`
	Location   string `json:"location,omitempty"`
	Education  string `json:"education,omitempty"`
	Occupation string `json:"occupation,omitempty"`
}

// Query parameter names understood by FromQuery.
const (
	ParamAgeMin     = "ageMin"
	ParamAgeMax     = "ageMax"
	ParamLocation   = "location"
	ParamEducation  = "education"
	ParamOccupation = "occupation"
	ParamSearch     = "q"
)

// FromQuery reads a Filter from URL query values.
//
// Age bounds are coerced the way a number input is: leading digits are
// taken, anything non-numeric (or zero) leaves the bound unset. Values are
// not range checked.
func FromQuery(v url.Values) Filter {
	f := Filter{
		AgeMin:     parseAge(v.Get(ParamAgeMin)),
		AgeMax:     parseAge(v.Get(ParamAgeMax)),
		Location:   strings.TrimSpace(v.Get(ParamLocation)),
		Education:  strings.TrimSpace(v.Get(ParamEducation)),
		Occupation: strings.TrimSpace(v.Get(ParamOccupation)),
	}
	return f.WithSearch(v.Get(ParamSearch))
}

// WithSearch applies the free-text search box. The term is copied into
// location, occupation and education, so a profile must match it in all
// three. A blank term returns f unchanged.
func (f Filter) WithSearch(term string) Filter {
	term = strings.TrimSpace(term)
	if term == "" {
		return f
	}
	f.Location = term
	f.Occupation = term
	f.Education = term
	return f
}

// IsZero reports whether no field is set.
func (f Filter) IsZero() bool {
	return f.AgeMin == nil && f.AgeMax == nil &&
		f.Location == "" && f.Education == "" && f.Occupation == ""
}

// Key returns a canonical encoding of the filter. Filters with identical
// field values produce identical keys; the empty filter encodes to "".
func (f Filter) Key() string {
	v := url.Values{}
	if f.AgeMin != nil {
		v.Set(ParamAgeMin, strconv.Itoa(*f.AgeMin))
	}
	if f.AgeMax != nil {
		v.Set(ParamAgeMax, strconv.Itoa(*f.AgeMax))
	}
	if f.Location != "" {
		v.Set(ParamLocation, f.Location)
	}
	if f.Education != "" {
		v.Set(ParamEducation, f.Education)
	}
	if f.Occupation != "" {
		v.Set(ParamOccupation, f.Occupation)
	}
	// Encode sorts by key
	return v.Encode()
}

// parseAge mirrors parseInt(x) || undefined: optional sign and leading
// digits, trailing garbage ignored, zero treated as unset.
func parseAge(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n == 0 {
		return nil
	}
	return &n
}

// Int is a helper for building filters in code.
func Int(n int) *int { return &n }
