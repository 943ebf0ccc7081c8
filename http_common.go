package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// --- Response helpers ---
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Toast is a one-line notice the browser shows after an action.
type Toast struct {
	Kind    string `json:"kind"` // "success" | "error" | "info"
	Message string `json:"message"`
}

func successToast(msg string) *Toast { return &Toast{Kind: "success", Message: msg} }
func errorToast(msg string) *Toast   { return &Toast{Kind: "error", Message: msg} }
func infoToast(msg string) *Toast    { return &Toast{Kind: "info", Message: msg} }

// writeToast answers with only a toast and an optional machine readable code.
func writeToast(w http.ResponseWriter, status int, code string, t *Toast) {
	writeJSON(w, status, struct {
		Error string `json:"error,omitempty"`
		Toast *Toast `json:"toast"`
	}{Error: code, Toast: t})
}

// EmptyState replaces a list or detail view that has nothing to show.
type EmptyState struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var (
	emptyProfileNotFound = EmptyState{
		Title:       "Profile not found",
		Description: "The profile you are looking for does not exist or has been removed.",
	}
	emptyNoProfiles = EmptyState{
		Title:       "No profiles found",
		Description: "Try adjusting your search filters or check back later.",
	}
	emptyProfilesError = EmptyState{
		Title:       "Error loading profiles",
		Description: "Something went wrong while loading profiles. Please try again later.",
	}
	emptyPageNotFound = EmptyState{
		Title:       "Page Not Found",
		Description: "The page you are looking for might have been removed, had its name changed, or is temporarily unavailable.",
	}
)

// decodeJSON reads a single JSON object. Unknown fields are rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

// --- Validation ---

// FieldErrors maps a JSON field name to a message shown beside the input.
type FieldErrors map[string]string

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("json")
		if comma := strings.Index(name, ","); comma != -1 {
			name = name[:comma]
		}
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// fieldErrors converts validator failures to inline messages. labels maps
// a field name to the label used in "<label> is required"; fields without
// one fall back to the field name.
func fieldErrors(err error, labels map[string]string) (FieldErrors, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}
	out := make(FieldErrors, len(ve))
	for _, fe := range ve {
		label := labels[fe.Field()]
		if label == "" {
			label = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			out[fe.Field()] = label + " is required"
		case "email":
			out[fe.Field()] = label + " must be a valid email address"
		case "min":
			out[fe.Field()] = label + " must be at least " + fe.Param() + " characters"
		case "max":
			out[fe.Field()] = label + " must be at most " + fe.Param() + " characters"
		case "datetime":
			out[fe.Field()] = label + " must be a date (YYYY-MM-DD)"
		case "oneof":
			out[fe.Field()] = label + " must be one of: " + fe.Param()
		default:
			out[fe.Field()] = label + " is invalid"
		}
	}
	return out, true
}

func writeValidation(w http.ResponseWriter, fields FieldErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, struct {
		Error  string      `json:"error"`
		Fields FieldErrors `json:"fields"`
	}{Error: "validation_failed", Fields: fields})
}
