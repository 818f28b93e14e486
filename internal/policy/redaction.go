// Package policy holds the rules for what handset data may leave the process in logs
// and error details.
package policy

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	keyPattern   = regexp.MustCompile(`(?i)([?&](?:key|api_key|access_token)=)[^&\s"]+`)
)

// RedactPII masks common high-risk PII patterns and credentials carried in URLs.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := keyPattern.ReplaceAllString(out, "${1}[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone, otherwise long card numbers match the phone pattern.
	next = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactError returns err's message with PII masked, or "" for a nil error.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	out, _ := RedactPII(err.Error())
	return out
}

// MaskNumber keeps the last two digits of a dialed number for log correlation.
func MaskNumber(number string) string {
	digits := 0
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 2 {
		return number
	}
	var b strings.Builder
	seen := 0
	for _, r := range number {
		if r < '0' || r > '9' {
			b.WriteRune(r)
			continue
		}
		seen++
		if seen > digits-2 {
			b.WriteRune(r)
		} else {
			b.WriteByte('*')
		}
	}
	return b.String()
}
