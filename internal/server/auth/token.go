// Package auth issues and decodes the signed, typed bearer tokens used by
// authkeeper.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType tells access tokens and refresh tokens apart. It travels in the
// "type" claim.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

// ParseTokenType maps the wire value of the "type" claim to a TokenType.
func ParseTokenType(s string) (TokenType, bool) {
	switch TokenType(s) {
	case TypeAccess:
		return TypeAccess, true
	case TypeRefresh:
		return TypeRefresh, true
	}
	return "", false
}

// Claims is the token payload. Subject carries the user id, ID the jti.
type Claims struct {
	jwt.RegisteredClaims
	Type  TokenType `json:"type,omitempty"`
	Email string    `json:"email,omitempty"`
}

// Decoded is the outcome of Decode. When Valid is false Claims is zero.
type Decoded struct {
	Valid  bool
	Claims Claims
}

// Typed returns the claims only if the token is valid and of the wanted
// type. A missing or unknown type never matches.
func (d Decoded) Typed(want TokenType) (Claims, bool) {
	if !d.Valid {
		return Claims{}, false
	}
	if _, known := ParseTokenType(string(want)); !known || d.Claims.Type != want {
		return Claims{}, false
	}
	return d.Claims, true
}

// Codec signs and verifies tokens with one HMAC secret.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewCodec builds a Codec. algorithm is one of HS256, HS384, HS512
// (case-insensitive); "" means HS256.
func NewCodec(secret []byte, algorithm string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}

	var method jwt.SigningMethod
	switch strings.ToUpper(algorithm) {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %q", algorithm)
	}

	return &Codec{secret: secret, method: method, now: time.Now}, nil
}

// Issue signs claims as a token of type typ that expires ttl from now.
// A fresh jti is assigned so that two tokens are never byte-identical.
func (c *Codec) Issue(claims Claims, typ TokenType, ttl time.Duration) (string, error) {
	claims.Type = typ
	claims.ID = uuid.NewString()
	claims.ExpiresAt = jwt.NewNumericDate(c.now().Add(ttl))

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Decode verifies signature, algorithm and expiry. Every failure collapses
// into Decoded{Valid: false}.
func (c *Codec) Decode(token string) Decoded {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return Decoded{}
	}

	return Decoded{Valid: true, Claims: *claims}
}
