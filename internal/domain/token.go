package domain

import "time"

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

func (t TokenType) Valid() bool {
	return t == TokenAccess || t == TokenRefresh
}

// IssuedToken is a signed bearer token together with the metadata needed to
// revoke it later or to set it as a cookie.
type IssuedToken struct {
	Token     string
	JTI       string
	Type      TokenType
	CSRF      string
	ExpiresAt time.Time
}

// TokenPair is what login, registration and refresh hand back to the transport layer.
// Refresh is nil when only an access token was minted.
type TokenPair struct {
	Access   IssuedToken
	Refresh  *IssuedToken
	Identity Identity
}
