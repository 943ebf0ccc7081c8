package filter

// Option is one entry of a filter dropdown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options lists the choices offered by the filter panel.
type Options struct {
	AgeLower    int      `json:"age_lower"`
	AgeUpper    int      `json:"age_upper"`
	Locations   []Option `json:"locations"`
	Educations  []Option `json:"educations"`
	Occupations []Option `json:"occupations"`
}

// DefaultOptions returns the dropdown contents of the profile filter panel.
// The age limits are input hints only; Build does not enforce them.
func DefaultOptions() Options {
	return Options{
		AgeLower: 18,
		AgeUpper: 70,
		Locations: []Option{
			{"", "Any Location"},
			{"Mumbai", "Mumbai"},
			{"Delhi", "Delhi"},
			{"Bangalore", "Bangalore"},
			{"Chennai", "Chennai"},
			{"Kolkata", "Kolkata"},
			{"Hyderabad", "Hyderabad"},
		},
		Educations: []Option{
			{"", "Any Education"},
			{"High School", "High School"},
			{"Bachelor", "Bachelor's Degree"},
			{"Master", "Master's Degree"},
			{"Doctorate", "Doctorate"},
		},
		Occupations: []Option{
			{"", "Any Occupation"},
			{"IT Professional", "IT Professional"},
			{"Doctor", "Doctor"},
			{"Engineer", "Engineer"},
			{"Business", "Business"},
			{"Teacher", "Teacher"},
		},
	}
}
