package authapp

import (
	"errors"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Secret1pass", false},
		{"minimal", "Aa345z", false},
		{"too short", "Aa1", true},
		{"no uppercase", "secret1pass", true},
		{"no lowercase", "SECRET1PASS", true},
		{"no digit", "Secretpass", true},
		{"empty", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.wantErr && !errors.Is(err, ErrWeakPassword) {
				t.Errorf("ValidatePassword(%q) = %v, want ErrWeakPassword", tc.password, err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidatePassword(%q) = %v, want nil", tc.password, err)
			}
		})
	}
}
