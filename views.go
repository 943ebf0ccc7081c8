package main

import (
	"net/http"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
)

// View models for pages that have no backing query. The browser renders
// them as is.

type link struct {
	Label string `json:"label"`
	To    string `json:"to"`
}

type feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type landingView struct {
	Hero       heroView  `json:"hero"`
	Features   []feature `json:"features"`
	Steps      []feature `json:"steps"`
	CallToward heroView  `json:"call_to_action"`
	Filters    any       `json:"filters"`
}

type heroView struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Actions  []link `json:"actions"`
}

func landingHandler() http.HandlerFunc {
	view := landingView{
		Hero: heroView{
			Title:    "Find Your Perfect Life Partner",
			Subtitle: "Connecting hearts with tradition and technology.",
			Actions: []link{
				{Label: "Register Free", To: "/register"},
				{Label: "Browse Profiles", To: "/profiles"},
			},
		},
		Features: []feature{
			{Title: "Verified Profiles", Description: "All profiles undergo a thorough verification process to ensure authenticity."},
			{Title: "Smart Matching", Description: "Our algorithm finds matches based on your preferences and compatibility."},
			{Title: "Privacy Control", Description: "You decide who sees your profile and how much information to share."},
			{Title: "Success Stories", Description: "Thousands of happy couples have found their perfect match through our platform."},
		},
		Steps: []feature{
			{Title: "Create Your Profile", Description: "Register and create a detailed profile highlighting your background, interests, and preferences."},
			{Title: "Discover Matches", Description: "Browse through curated matches based on your preferences and compatibility factors."},
			{Title: "Connect & Meet", Description: "Initiate conversations with potential matches and take the next step towards a beautiful relationship."},
		},
		CallToward: heroView{
			Title:    "Ready to Begin Your Journey?",
			Subtitle: "Join thousands of happy couples who found their perfect match on SoulMate.",
			Actions:  []link{{Label: "Create Your Profile Today", To: "/register"}},
		},
		Filters: filter.DefaultOptions(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, view)
	}
}

type formField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type formView struct {
	Title  string      `json:"title"`
	Action string      `json:"action"`
	Fields []formField `json:"fields"`
	Links  []link      `json:"links"`
}

func loginFormHandler() http.HandlerFunc {
	view := formView{
		Title:  "Sign in to your account",
		Action: "/login",
		Fields: []formField{
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "password", Label: "Password", Type: "password", Required: true},
		},
		Links: []link{{Label: "Create an account", To: "/register"}},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, view)
	}
}

func registerFormHandler() http.HandlerFunc {
	view := formView{
		Title:  "Create your account",
		Action: "/register",
		Fields: []formField{
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "password", Label: "Password", Type: "password", Required: true},
		},
		Links: []link{{Label: "Already have an account? Sign in", To: "/login"}},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, view)
	}
}

func filterOptionsHandler() http.HandlerFunc {
	opts := filter.DefaultOptions()
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts)
	}
}

// Reporting is not built yet; the endpoint exists so the button has
// something to call.
func reportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeToast(w, http.StatusNotImplemented, "not_implemented", infoToast("Reporting functionality coming soon!"))
	}
}

func notFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, struct {
			EmptyState
			Links []link `json:"links"`
		}{EmptyState: emptyPageNotFound, Links: []link{{Label: "Back to Home", To: "/"}}})
	}
}
