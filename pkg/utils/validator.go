package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	wordPattern   = regexp.MustCompile(`^[A-Za-z0-9\- ,]+$`)
	namePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z .'\-]*$`)
	phonePattern  = regexp.MustCompile(`^[0-9]{6,16}$`)
	platePattern  = regexp.MustCompile(`^[A-Z0-9 ]+$`)
	clockPattern  = regexp.MustCompile(`^([0-9]|0[0-9]|1[0-9]|2[0-3]):[0-5][0-9]$`)
	numberPattern = regexp.MustCompile(`^[1-9][0-9]*$`)
)

// SanitizeString removes C0 and C1 control characters and the Unicode line
// and paragraph separators
func SanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.In(r, unicode.Zl, unicode.Zp) {
			return -1
		}
		return r
	}, s)
}

// SanitizeText removes control characters and surrounding whitespace
func SanitizeText(s string) string {
	return strings.TrimSpace(SanitizeString(s))
}

// CharLength counts characters rather than bytes
func CharLength(s string) int {
	return utf8.RuneCountInString(s)
}

// IsWord reports whether s holds only letters, digits, spaces, commas and dashes
func IsWord(s string) bool {
	return wordPattern.MatchString(s)
}

// IsPersonName reports whether s looks like a person's name
func IsPersonName(s string) bool {
	return namePattern.MatchString(s)
}

// IsPhoneNumber reports whether s is 6 to 16 digits
func IsPhoneNumber(s string) bool {
	return phonePattern.MatchString(s)
}

// IsNumberPlate reports whether s is an upper-case registration number
func IsNumberPlate(s string) bool {
	return platePattern.MatchString(s)
}

// IsClockTime reports whether s is a 24 hour H:MM or HH:MM time
func IsClockTime(s string) bool {
	return clockPattern.MatchString(s)
}

// ParsePositiveInt parses s as an integer greater than zero
func ParsePositiveInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !numberPattern.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
