// Package auth provides the token and credential primitives shared by the
// gateway (which issues tokens) and the replication server (which verifies
// them when binding transport sessions).
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
)

// Claims are the access-token claims. The embedded player_entity_id binds a
// token to exactly one owning actor.
type Claims struct {
	PlayerEntityID string `json:"player_entity_id"`
	jwt.RegisteredClaims
}

// EncodeAccessToken signs an HS256 access token for an account
func EncodeAccessToken(secret []byte, accountID uuid.UUID, playerEntityID string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		PlayerEntityID: playerEntityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", slerrors.Internal("failed to encode access token", err)
	}
	return signed, nil
}

// DecodeAccessToken verifies signature and expiration and returns the claims.
// Any failure is Unauthorized; no detail about the token leaks to the caller.
func DecodeAccessToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, slerrors.Unauthorized("invalid access token")
	}
	return claims, nil
}

// GenerateOpaqueToken returns a 32-byte random token, URL-safe base64 without
// padding. Used for refresh and password-reset tokens; the server only ever
// stores the hash.
func GenerateOpaqueToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", slerrors.Internal("token generation failed", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// HashToken returns the hex SHA-256 digest of an opaque token
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// PlayerEntityIDFor returns the fixed player entity id for an account
func PlayerEntityIDFor(accountID uuid.UUID) string {
	return "player:" + accountID.String()
}
