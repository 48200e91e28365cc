package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("very-strong-password")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword("very-strong-password", hash))
	require.Error(t, VerifyPassword("wrong-password-value", hash))
}

func TestHashPassword_SaltsDiffer(t *testing.T) {
	first, err := HashPassword("very-strong-password")
	require.NoError(t, err)
	second, err := HashPassword("very-strong-password")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	require.Error(t, VerifyPassword("whatever-password", "not-a-hash"))
	require.Error(t, VerifyPassword("whatever-password", "$bcrypt$x$y$z$w"))
}

func TestValidatePassword_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{"11 chars rejected", 11, true},
		{"12 chars accepted", 12, false},
		{"128 chars accepted", 128, false},
		{"129 chars rejected", 129, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(strings.Repeat("p", tt.length))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Pilot@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "pilot@example.com", got)
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"pilot@example.com", "a@b.co"}
	for _, email := range valid {
		assert.NoError(t, ValidateEmail(email), email)
	}

	invalid := []string{
		"",
		"not-an-email",
		"@example.com",
		"pilot@",
		"pilot@nodot",
		"pilot@.example.com",
		"pilot@example.com.",
		"two@ats@example.com",
		"a@" + strings.Repeat("x", 260) + ".com",
	}
	for _, email := range invalid {
		assert.Error(t, ValidateEmail(email), email)
	}
}
