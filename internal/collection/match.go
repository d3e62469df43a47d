package collection

import (
	"regexp"
	"strings"
)

// MinPhoneDigits is the fewest digits accepted as a phone number.
const MinPhoneDigits = 10

var (
	emailRE = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9\-]+(?:\.[a-z0-9\-]+)*\.[a-z]{2,}`)
	phoneRE = regexp.MustCompile(`[+(]?\d[\d\s().\-]*\d\)?`)
)

// MatchEmail returns the first email address in text, lower-cased.
func MatchEmail(text string) (string, bool) {
	m := emailRE.FindString(text)
	if m == "" {
		return "", false
	}
	return strings.ToLower(m), true
}

// MatchPhone returns the first run of phone characters in text carrying at
// least MinPhoneDigits digits.
func MatchPhone(text string) (string, bool) {
	for _, m := range phoneRE.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if CountDigits(m) >= MinPhoneDigits {
			return m, true
		}
	}
	return "", false
}

// CountDigits counts ASCII digits in s.
func CountDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
