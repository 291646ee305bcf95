// Package phone normalises customer phone numbers for WhatsApp providers.
package phone

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalid is returned for numbers that cannot be turned into E.164 form.
var ErrInvalid = errors.New("invalid phone number")

// Normalize strips formatting characters and returns the number with a
// leading '+'. A leading "00" international prefix is converted to '+'.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")

	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalid
		}
	}

	digits := strings.TrimPrefix(b.String(), "00")
	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalid
	}

	return "+" + digits, nil
}
