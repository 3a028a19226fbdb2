package authapp

import (
	"errors"
	"fmt"
	"unicode"
)

var ErrWeakPassword = errors.New("password does not meet requirements")

const minPasswordLength = 6

// ValidatePassword enforces the sign-up password policy: at least six
// characters with an uppercase letter, a lowercase letter, and a digit.
// Violations are reported before any network call is made.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.Join(
			fmt.Errorf("password must be at least %d characters", minPasswordLength),
			ErrWeakPassword,
		)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasUpper:
		return errors.Join(errors.New("password must contain an uppercase letter"), ErrWeakPassword)
	case !hasLower:
		return errors.Join(errors.New("password must contain a lowercase letter"), ErrWeakPassword)
	case !hasDigit:
		return errors.Join(errors.New("password must contain a digit"), ErrWeakPassword)
	}
	return nil
}
