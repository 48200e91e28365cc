package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
)

// Password policy
const (
	MinPasswordLen = 12
	MaxPasswordLen = 128
)

// Argon2id parameters; encoded into the hash so they can evolve
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// HashPassword derives an Argon2id hash with a random 16-byte salt, encoded
// in PHC string format.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", slerrors.Internal("password salt generation failed", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against a stored hash. Any mismatch or
// malformed hash is Unauthorized with no further detail.
func VerifyPassword(password, encoded string) error {
	invalid := slerrors.Unauthorized("invalid credentials")

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return invalid
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return invalid
	}
	var memory uint32
	var timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return invalid
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return invalid
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return invalid
	}

	key := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(expected)))
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return invalid
	}
	return nil
}

// ValidatePassword enforces the 12..128 length policy
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return slerrors.Validation(fmt.Sprintf("password must be at least %d chars", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		return slerrors.Validation(fmt.Sprintf("password must be <= %d chars", MaxPasswordLen))
	}
	return nil
}

// NormalizeEmail trims, lowercases, and validates an email address
func NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateEmail applies the gateway's address policy: 3..254 bytes, a single
// @ with a non-empty local part and a dotted domain.
func ValidateEmail(email string) error {
	if len(email) < 3 || len(email) > 254 {
		return slerrors.Validation("email must be between 3 and 254 chars")
	}
	local, domain, found := strings.Cut(email, "@")
	if !found || strings.Contains(domain, "@") ||
		local == "" || domain == "" ||
		!strings.Contains(domain, ".") ||
		strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return slerrors.Validation("email format is invalid")
	}
	return nil
}
