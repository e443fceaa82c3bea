package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")

	// Registration state machine.
	ErrNotVerified         = errors.New("email not verified")
	ErrOrganizationExpired = errors.New("organization info expired")
	ErrOTPExpired          = errors.New("otp expired")
	ErrOTPInvalid          = errors.New("invalid otp")

	ErrInvalidCredentials = errors.New("invalid credentials")

	// Bearer token verification.
	ErrTokenMissing   = errors.New("missing token")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrTypeMismatch   = errors.New("token type mismatch")
	ErrTokenNotFresh  = errors.New("fresh token required")
	ErrCSRF           = errors.New("csrf token mismatch")

	// Password reset links.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	ErrResetTokenStale   = errors.New("reset token expired")

	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimitError carries the number of seconds until the exhausted window resets.
// It unwraps to ErrRateLimited.
type RateLimitError struct {
	Limit      string
	RetryAfter int64
}

func (e *RateLimitError) Error() string { return "rate limit exceeded: " + e.Limit }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
