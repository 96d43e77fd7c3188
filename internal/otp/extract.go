package otp

import "regexp"

// Ordered patterns for spotting a one-time passcode in notification text.
// A labeled code wins over bare digit heuristics, and a bare 6-digit run is
// preferred over the wider 4-8 digit fallback, since most OTPs are 6 digits.
var patterns = []*regexp.Regexp{
	// A label word followed by a 4-8 character alphanumeric run.
	regexp.MustCompile(`(?i)\b(?:otp|code|verification|passcode|auth|2fa|login)\b[\s:#-]*([0-9A-Za-z]{4,8})\b`),
	// A bare 6-digit run not adjacent to other digits.
	regexp.MustCompile(`(?:^|[^0-9])([0-9]{6})(?:[^0-9]|$)`),
	// A bare 4-8 digit run not adjacent to other digits.
	regexp.MustCompile(`(?:^|[^0-9])([0-9]{4,8})(?:[^0-9]|$)`),
}

// Extract scans notification text for a one-time passcode and returns the
// first match in pattern order, or "" when nothing matches.
func Extract(text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}
