package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/domain"
)

// maxPeek bounds how much of a request body is buffered to find the email.
const maxPeek = 64 << 10

// RejectionRecorder is notified of every request a policy turns away.
type RejectionRecorder interface {
	RateLimited(policy string)
}

// Quota enforces a fixed-window policy. The identity part of the key is the
// authenticated subject when an earlier middleware verified a token, else the
// email submitted in the JSON body. Store failures reject the request.
func Quota(l *ratelimit.Limiter, p ratelimit.Policy, rec RejectionRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var subject string
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				subject = claims.Subject
			}
			s := ratelimit.Subject{IP: ClientIP(r), Identity: ratelimit.ResolveIdentity(subject, peekEmail(r))}

			err := l.Allow(r.Context(), p, s)
			var rle *domain.RateLimitError
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.As(err, &rle):
				if rec != nil {
					rec.RateLimited(p.Name)
				}
				w.Header().Set("Retry-After", strconv.FormatInt(rle.RetryAfter, 10))
				writeJSONError(w, http.StatusTooManyRequests, rle.Error())
			default:
				slog.Error("rate limiter unavailable", "policy", p.Name, "err", err)
				writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
		})
	}
}

// peekEmail reads the "email" field of a JSON body and restores the body for
// the handler.
func peekEmail(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxPeek))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}
	if err != nil {
		return ""
	}
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(buf, &body) != nil {
		return ""
	}
	return body.Email
}
