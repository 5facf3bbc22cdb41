// Package common contains shared constants, the error taxonomy and small
// helpers used across authkeeper components.
package common

const (
	// AuthorizationHeaderName carries the bearer credential on HTTP requests
	// and, lower-cased, in gRPC metadata.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"

	// RequestIDHeaderName is echoed back on every HTTP response.
	RequestIDHeaderName = "X-Request-ID"

	// TokenTypeBearer is the OAuth2 token_type returned with token pairs.
	TokenTypeBearer = "bearer"

	// InvalidCredentialsMessage is the only login failure text a caller ever sees.
	InvalidCredentialsMessage = "invalid email or password"

	// InvalidTokenMessage is returned for every rejected bearer credential.
	InvalidTokenMessage = "could not validate credentials"
)
