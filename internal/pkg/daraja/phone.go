package daraja

import (
	"regexp"
	"strings"

	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

const MaxAmount = 70000

var normalizedPhonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone rewrites a leading "0" to the 254 country prefix and strips a leading "+".
// It does not validate the result.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	return strings.TrimPrefix(p, "+")
}

// ValidatePhone normalizes phone and requires 254 followed by a 1 or 7 and eight digits.
func ValidatePhone(phone string) (string, error) {
	p := NormalizePhone(phone)
	if !normalizedPhonePattern.MatchString(p) {
		return "", apperror.Validation("invalid phone number format, expected 254XXXXXXXXX")
	}
	return p, nil
}

func ValidateAmount(amount int64) error {
	if amount <= 0 || amount > MaxAmount {
		return apperror.Validation("amount must be between 1 and 70,000 KES")
	}
	return nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
