package identity

import (
	"strings"
)

// MinContactDigits is the shortest contact number that can be matched.
const MinContactDigits = 10

const defaultCountryCode = "91"

// SanitizeContact keeps digits and a leading '+' and adds the +91 country code
// to domestic forms: a bare 10-digit number, 91 followed by 10 digits, or a
// trunk 0 followed by 10 digits. Other inputs are returned cleaned but
// otherwise unchanged.
func SanitizeContact(raw string) string {
	raw = strings.TrimSpace(raw)
	plus := strings.HasPrefix(raw, "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	if digits == "" {
		return ""
	}
	if plus {
		return "+" + digits
	}
	switch {
	case len(digits) == 10:
		return "+" + defaultCountryCode + digits
	case len(digits) == 12 && strings.HasPrefix(digits, defaultCountryCode):
		return "+" + digits
	case len(digits) == 11 && digits[0] == '0':
		return "+" + defaultCountryCode + digits[1:]
	}
	return digits
}

// ContactDigits counts the digits in raw.
func ContactDigits(raw string) int {
	n := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// ContactSuffix returns the last ten digits of a contact number, or "" when
// it has fewer than ten.
func ContactSuffix(raw string) string {
	s := SanitizeContact(raw)
	s = strings.TrimPrefix(s, "+")
	if len(s) < MinContactDigits {
		return ""
	}
	return s[len(s)-MinContactDigits:]
}

// NormalizeName trims and lower-cases a name. Inner spacing is kept, so
// matching stays exact apart from case.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
