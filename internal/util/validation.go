package util

import (
	"regexp"
)

var driverIDRegex = regexp.MustCompile(`^\d{6}$`)

// IsValidDriverID reports whether s is exactly six ASCII digits.
func IsValidDriverID(s string) bool {
	if s == "" {
		return false
	}
	return driverIDRegex.MatchString(s)
}
