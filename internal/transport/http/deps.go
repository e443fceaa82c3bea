package http

import (
	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/registration"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/obs"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	"github.com/go-auth-nosql/internal/transport/http/middleware"
)

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Registration registration.Service
	Sessions     session.Service
	Passwords    password.Service
	Tokens       middleware.Verifier
	Limiter      *ratelimit.Limiter
	Policies     ratelimit.Policies
	Metrics      *obs.Metrics
	// Stores are pinged by /health-check/ready.
	Stores []handler.Pinger
}
