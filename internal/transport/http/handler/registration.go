package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/registration"
	"github.com/go-auth-nosql/internal/application/session"
)

type startRegistrationRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
	OTP   string `json:"otp" validate:"omitempty,numeric,max=10"`
}

type completeRegistrationRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"maxbytes=72"`
}

// RegistrationHandler drives the three-step OTP registration.
type RegistrationHandler struct {
	svc      registration.Service
	sessions session.Service
	cookies  *Cookies
	outcomes Outcomes
}

func NewRegistrationHandler(svc registration.Service, sessions session.Service, cookies *Cookies, outcomes Outcomes) *RegistrationHandler {
	return &RegistrationHandler{svc: svc, sessions: sessions, cookies: cookies, outcomes: orNop(outcomes)}
}

// Start handles POST /auth/register?org_id=.
func (h *RegistrationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRegistrationRequest
	err := bind(r, &req)
	if err == nil {
		err = h.svc.StartRegistration(r.Context(), req.Email, r.URL.Query().Get("org_id"))
	}
	h.outcomes.AuthOutcome("register", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Msg: "OTP sent to email"})
}

func (h *RegistrationHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	err := bind(r, &req)
	if err == nil {
		err = h.svc.VerifyOTP(r.Context(), req.Email, req.OTP)
	}
	h.outcomes.AuthOutcome("verify_otp", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Msg: "OTP verified"})
}

// Complete creates the credential and signs the new user in.
func (h *RegistrationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRegistrationRequest
	if err := bind(r, &req); err != nil {
		h.outcomes.AuthOutcome("complete_registration", outcomeOf(err))
		httpError(w, err)
		return
	}
	identity, err := h.svc.CompleteRegistration(r.Context(), req.Email, req.Password)
	h.outcomes.AuthOutcome("complete_registration", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	pair, err := h.sessions.IssuePair(r.Context(), identity)
	if err != nil {
		httpError(w, err)
		return
	}
	h.cookies.SetTokens(w, pair)
	writeJSON(w, http.StatusCreated, TokenEnvelope{Msg: "Registration complete", AccessToken: pair.Access.Token})
}
