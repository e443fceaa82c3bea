package handler

import (
	"errors"
	"net/http"

	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-chi/chi/v5"
)

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"maxbytes=72"`
}

// PasswordResetHandler handles the forgotten-password flow.
type PasswordResetHandler struct {
	svc      password.Service
	outcomes Outcomes
}

func NewPasswordResetHandler(svc password.Service, outcomes Outcomes) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc, outcomes: orNop(outcomes)}
}

// Forgot answers the same way whether or not the account exists.
func (h *PasswordResetHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	err := bind(r, &req)
	if err == nil {
		err = h.svc.RequestReset(r.Context(), req.Email)
	}
	h.outcomes.AuthOutcome("forgot_password", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password reset link sent"})
}

// Check handles GET /auth/reset-password/{token}.
func (h *PasswordResetHandler) Check(w http.ResponseWriter, r *http.Request) {
	email, err := h.svc.CheckToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetTokenEnvelope{Message: "Valid reset token", Email: email})
}

// Reset handles POST /auth/reset-password/{token}.
func (h *PasswordResetHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	err := bind(r, &req)
	if err == nil {
		err = h.svc.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password)
	}
	h.outcomes.AuthOutcome("reset_password", outcomeOf(err))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password has been reset successfully."})
	case errors.Is(err, domain.ErrBadRequest) && req.Password == "":
		writeError(w, http.StatusBadRequest, "Password is required.")
	default:
		httpError(w, err)
	}
}
