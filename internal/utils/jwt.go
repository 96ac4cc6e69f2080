package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"  // secure random number generation
	"encoding/hex" // hex encoding of random secrets
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed bearer token along with its expiry.  The
// Token field contains the JWT string and Exp the UTC expiration time.
// Clients send it in the Authorization header as an alternative to the
// session cookie.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the identity asserted by an access token.  The user id is the
// registered subject claim.
type Claims struct {
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired, or signed with another key or algorithm.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT asserting {user id, name,
// email}.  The token expires ttl after issue.
func NewAccessToken(secret, userID, nombre, email string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Nombre: nombre,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw against secret and returns its claims.
// Only HMAC-signed tokens are accepted.
func ParseAccessToken(secret, raw string) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens whose header names a non-HMAC algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

// RandomSecret returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  Accounts created through an
// external identity provider get one as an irrecoverable password.
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
