package declaration

import (
	"strings"
)

// DefaultCountry is the destination used until the user picks one
const DefaultCountry = "Australia"

var countries = []string{
	"Australia", "Brazil", "Canada", "China", "Egypt", "France", "Germany", "India",
	"Indonesia", "Italy", "Japan", "Malaysia", "Mexico", "New Zealand", "Philippines",
	"Russia", "Saudi Arabia", "Singapore", "South Africa", "South Korea", "Spain",
	"Thailand", "Turkey", "United Arab Emirates", "United Kingdom", "United States", "Vietnam",
}

// Countries returns the supported destinations in alphabetical order
func Countries() []string {
	return append([]string(nil), countries...)
}

// SearchCountries returns the destinations containing q, case-insensitively.
// A blank query returns them all.
func SearchCountries(q string) []string {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return Countries()
	}
	var out []string
	for _, c := range countries {
		if strings.Contains(strings.ToLower(c), q) {
			out = append(out, c)
		}
	}
	return out
}

// IsCountry reports whether name is a supported destination
func IsCountry(name string) bool {
	for _, c := range countries {
		if c == name {
			return true
		}
	}
	return false
}
