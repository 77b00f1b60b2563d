package extract

import (
	"regexp"
	"strings"
)

// Dutch number shapes, tried in order. All matches of one pattern are
// considered before the next pattern.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+31[\s.-]?(?:\(0\))?[\s.-]?\d{1,2}[\s.-]?\d{3}[\s.-]?\d{4}`),
	regexp.MustCompile(`0\d{2}[\s.-]?\d{3}[\s.-]?\d{4}`),
	regexp.MustCompile(`06[\s.-]?\d{4}[\s.-]?\d{4}`),
	regexp.MustCompile(`\(0\d{2}\)[\s.-]?\d{3}[\s.-]?\d{4}`),
	regexp.MustCompile(`0\d{9}`),
}

var (
	phoneNoiseRe = regexp.MustCompile(`[\s.\-()]+`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

const (
	countryPrefix  = "+31"
	nationalDigits = 10
)

// Phone returns the first valid Dutch number in text in the canonical
// `ddd-ddd dddd` form, or "" when none validates.
func Phone(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range phonePatterns {
		for _, m := range re.FindAllString(text, -1) {
			if national, ok := nationalNumber(m); ok {
				return formatPhone(national)
			}
		}
	}
	return ""
}

// nationalNumber strips punctuation, rewrites the +31 country code (and an
// optional "(0)" trunk marker) to a leading 0, and checks digit count.
func nationalNumber(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, countryPrefix) {
		rest := strings.TrimLeft(s[len(countryPrefix):], " .-")
		rest = strings.TrimPrefix(rest, "(0)")
		s = "0" + rest
	}
	s = phoneNoiseRe.ReplaceAllString(s, "")
	if !strings.HasPrefix(s, "0") {
		return "", false
	}
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) != nationalDigits {
		return "", false
	}
	return digits, true
}

func formatPhone(digits string) string {
	return digits[:3] + "-" + digits[3:6] + " " + digits[6:]
}

// NormalizePhone canonicalizes a single number, returning "" if invalid.
func NormalizePhone(raw string) string {
	national, ok := nationalNumber(raw)
	if !ok {
		return ""
	}
	return formatPhone(national)
}
