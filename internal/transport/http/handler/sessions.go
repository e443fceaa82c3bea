package handler

import (
	"net/http"

	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

type loginRequest struct {
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"maxbytes=72"`
}

type revokeRequest struct {
	Token string `json:"token" validate:"required"`
}

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc      session.Service
	cookies  *Cookies
	outcomes Outcomes
}

func NewSessionHandler(svc session.Service, cookies *Cookies, outcomes Outcomes) *SessionHandler {
	return &SessionHandler{svc: svc, cookies: cookies, outcomes: orNop(outcomes)}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	var pair *domain.TokenPair
	err := bind(r, &req)
	if err == nil {
		pair, err = h.svc.Login(r.Context(), req.Email, req.Password)
	}
	h.outcomes.AuthOutcome("login", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	h.cookies.SetTokens(w, pair)
	writeJSON(w, http.StatusOK, TokenEnvelope{AccessToken: pair.Access.Token})
}

// Refresh expects the refresh claims injected by middleware.Authenticate.
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, domain.ErrTokenMissing)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), claims)
	h.outcomes.AuthOutcome("refresh", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	h.cookies.SetTokens(w, pair)
	writeJSON(w, http.StatusOK, TokenEnvelope{AccessToken: pair.Access.Token})
}

// Logout revokes the access token in the request and the refresh cookie, if any.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, domain.ErrTokenMissing)
		return
	}
	var refresh string
	if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
		refresh = c.Value
	}
	err := h.svc.Logout(r.Context(), claims, refresh)
	h.outcomes.AuthOutcome("logout", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	h.cookies.Unset(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Msg: "Access and refresh tokens blacklisted"})
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, domain.ErrTokenMissing)
		return
	}
	profile, err := h.svc.Me(r.Context(), claims)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Revoke lets an employer blacklist a token of their organization.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httpError(w, domain.ErrTokenMissing)
		return
	}
	var req revokeRequest
	err := bind(r, &req)
	if err == nil {
		err = h.svc.ForceRevoke(r.Context(), claims, req.Token)
	}
	h.outcomes.AuthOutcome("revoke", outcomeOf(err))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Msg: "Token revoked"})
}
