package domain

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// LegacyPasswordPrefix marks stored comparison values that are plain text.
// Such values are still accepted at login but never written for new accounts.
const LegacyPasswordPrefix = "plain:"

// HashPassword returns the bcrypt comparison value stored for a new password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", Invalid("password", "must not be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compares a login attempt with a stored comparison value.
func CheckPassword(stored, attempt string) bool {
	if stored == "" {
		return false
	}
	if legacy, ok := strings.CutPrefix(stored, LegacyPasswordPrefix); ok {
		return subtle.ConstantTimeCompare([]byte(legacy), []byte(attempt)) == 1
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(attempt)) == nil
}

// IsLegacyPassword reports whether a stored value is an unhashed legacy value.
func IsLegacyPassword(stored string) bool {
	return strings.HasPrefix(stored, LegacyPasswordPrefix)
}
