package ratelimit

import (
	"errors"

	"github.com/go-auth-nosql/internal/config"
)

// Policies are the per-route limits of the auth surface.
type Policies struct {
	Default        Policy
	Register       Policy
	VerifyOTP      Policy
	Complete       Policy
	Login          Policy
	ForgotPassword Policy
	ResetPassword  Policy
}

func PoliciesFromConfig(cfg config.RateLimits) (Policies, error) {
	var errs []error
	build := func(name, expr string, key KeyFunc) Policy {
		p, err := NewPolicy(name, expr, key)
		if err != nil {
			errs = append(errs, err)
		}
		return p
	}
	p := Policies{
		Default:        build("default", cfg.Default, IPOnly),
		Register:       build("register", cfg.Registration, IPAndIdentity),
		VerifyOTP:      build("verify-otp", cfg.Registration, IPAndIdentity),
		Complete:       build("complete-registration", cfg.Complete, IPOnly),
		Login:          build("login", cfg.Login, IPAndIdentity),
		ForgotPassword: build("forgot-password", cfg.Reset, IPAndIdentity),
		ResetPassword:  build("reset-password", cfg.Reset, IPAndIdentity),
	}
	return p, errors.Join(errs...)
}
