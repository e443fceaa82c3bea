package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper. Registration and session
// routes answer with msg, password reset routes with message.
type MessageEnvelope struct {
	Msg     string `json:"msg,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenEnvelope wraps responses that hand out an access token.
type TokenEnvelope struct {
	Msg         string `json:"msg,omitempty"`
	AccessToken string `json:"access_token"`
}

// ResetTokenEnvelope answers a reset link check.
type ResetTokenEnvelope struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

// Outcomes counts finished auth operations. *obs.Metrics satisfies it.
type Outcomes interface {
	AuthOutcome(operation, outcome string)
}

type nopOutcomes struct{}

func (nopOutcomes) AuthOutcome(string, string) {}

func orNop(o Outcomes) Outcomes {
	if o == nil {
		return nopOutcomes{}
	}
	return o
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// bind reads a JSON body into v and checks its validate tags. An empty body
// leaves v zero so the service reports which fields are missing.
func bind(r *http.Request, v interface{}) error {
	if r.Body != nil && r.Body != http.NoBody {
		err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(v)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("invalid request body: %w", domain.ErrBadRequest)
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	return nil
}
