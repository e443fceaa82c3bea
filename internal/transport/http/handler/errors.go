package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-auth-nosql/internal/domain"
)

type errorMapping struct {
	err     error
	status  int
	message string
	outcome string
}

// errorTable is checked in order, so more specific sentinels come first.
var errorTable = []errorMapping{
	{domain.ErrRateLimited, http.StatusTooManyRequests, "Too many requests", "rate_limited"},
	{domain.ErrConflict, http.StatusConflict, "Email already registered", "conflict"},
	{domain.ErrNotVerified, http.StatusForbidden, "Email not verified", "not_verified"},
	{domain.ErrOrganizationExpired, http.StatusGone, "Organization info expired", "organization_expired"},
	{domain.ErrOTPExpired, http.StatusGone, "OTP expired", "otp_expired"},
	{domain.ErrOTPInvalid, http.StatusUnauthorized, "Invalid OTP", "otp_invalid"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials", "invalid_credentials"},
	{domain.ErrTokenMissing, http.StatusUnauthorized, "Missing token", "token_missing"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "Token has expired", "token_expired"},
	{domain.ErrTokenRevoked, http.StatusUnauthorized, "Token has been revoked", "token_revoked"},
	{domain.ErrTokenMalformed, http.StatusUnauthorized, "Invalid token", "token_malformed"},
	{domain.ErrTypeMismatch, http.StatusUnauthorized, "Wrong token type", "type_mismatch"},
	{domain.ErrTokenNotFresh, http.StatusUnauthorized, "Fresh token required", "not_fresh"},
	{domain.ErrCSRF, http.StatusUnauthorized, "CSRF token mismatch", "csrf"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "Forbidden", "forbidden"},
	{domain.ErrResetTokenInvalid, http.StatusBadRequest, "The link is invalid or has expired.", "reset_invalid"},
	{domain.ErrResetTokenStale, http.StatusBadRequest, "The link is invalid or has expired.", "reset_stale"},
	{domain.ErrNotFound, http.StatusNotFound, "User not found", "not_found"},
}

func lookup(err error) (errorMapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	if errors.Is(err, domain.ErrBadRequest) {
		msg := strings.TrimSuffix(err.Error(), ": "+domain.ErrBadRequest.Error())
		return errorMapping{domain.ErrBadRequest, http.StatusBadRequest, capitalize(msg), "bad_request"}, true
	}
	return errorMapping{}, false
}

// httpError maps a service error to its status code and public message.
// Anything unrecognised is logged and reported as a bare 500.
func httpError(w http.ResponseWriter, err error) {
	m, ok := lookup(err)
	if !ok {
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var rle *domain.RateLimitError
	if errors.As(err, &rle) {
		w.Header().Set("Retry-After", strconv.FormatInt(rle.RetryAfter, 10))
	}
	writeError(w, m.status, m.message)
}

// outcomeOf is the metrics label for the result of an operation.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if m, ok := lookup(err); ok {
		return m.outcome
	}
	return "error"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
