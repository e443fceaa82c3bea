// Package password handles forgotten-password links and resets.
package password

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/mail"
	snsinfra "github.com/go-auth-nosql/internal/infrastructure/sns"
	pkgpassword "github.com/go-auth-nosql/internal/pkg/password"
	pkgtoken "github.com/go-auth-nosql/internal/pkg/token"
)

const usedPrefix = "RESET_USED:"

// Signer mints and checks self-contained reset tokens.
type Signer interface {
	Generate(email string) (string, error)
	Verify(token string, maxAge time.Duration) (string, error)
}

type CredentialStore interface {
	Get(ctx context.Context, email string) (*domain.Credential, error)
	UpdatePassword(ctx context.Context, email, hash string) (bool, error)
}

// MarkerStore records consumed tokens when single-use links are enabled.
type MarkerStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

type Service interface {
	Generate(email string) (string, error)
	Verify(token string) (string, error)
	// RequestReset mails a reset link when the account exists. It reports
	// success either way.
	RequestReset(ctx context.Context, email string) error
	CheckToken(ctx context.Context, token string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type service struct {
	signer      Signer
	credentials CredentialStore
	markers     MarkerStore
	mailer      mail.Mailer
	events      snsinfra.Publisher
	maxAge      time.Duration
	singleUse   bool
	frontendURL string
	nowF        func() time.Time
}

func NewService(cfg *config.Config, signer Signer, credentials CredentialStore, markers MarkerStore, mailer mail.Mailer, events snsinfra.Publisher) Service {
	return &service{
		signer:      signer,
		credentials: credentials,
		markers:     markers,
		mailer:      mailer,
		events:      events,
		maxAge:      cfg.ResetTokenMaxAge,
		singleUse:   cfg.ResetSingleUse,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		nowF:        time.Now,
	}
}

func (s *service) Generate(email string) (string, error) {
	return s.signer.Generate(domain.NormalizeEmail(email))
}

func (s *service) Verify(token string) (string, error) {
	return s.signer.Verify(token, s.maxAge)
}

// ResetLink is where the frontend serves the reset form for token.
func (s *service) ResetLink(token string) string {
	return s.frontendURL + "/login/reset-password/" + url.PathEscape(token)
}

func (s *service) RequestReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required: %w", domain.ErrBadRequest)
	}
	_, err := s.credentials.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup credential: %w", err)
	}

	token, err := s.Generate(email)
	if err != nil {
		return err
	}
	if err := s.mailer.SendEmail(ctx, email, mail.SubjectReset, mail.ResetBody(s.ResetLink(token), s.maxAge)); err != nil {
		slog.Warn("reset email not sent", "email", email, "err", err)
	}
	slog.Info("password reset link issued", "email", email)
	return nil
}

func (s *service) CheckToken(ctx context.Context, token string) (string, error) {
	email, err := s.Verify(token)
	if err != nil {
		return "", err
	}
	if s.singleUse {
		used, err := s.markers.Exists(ctx, usedKey(token))
		if err != nil {
			return "", fmt.Errorf("check reset marker: %w", err)
		}
		if used {
			return "", fmt.Errorf("reset link already used: %w", domain.ErrResetTokenInvalid)
		}
	}
	return email, nil
}

func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.Verify(token)
	if err != nil {
		return err
	}
	if newPassword == "" {
		return fmt.Errorf("password is required: %w", domain.ErrBadRequest)
	}
	hash, err := pkgpassword.Hash(newPassword)
	if errors.Is(err, pkgpassword.ErrTooLong) {
		return fmt.Errorf("password must be at most %d bytes: %w", pkgpassword.MaxBytes, domain.ErrBadRequest)
	}
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if s.singleUse {
		first, err := s.markers.SetNX(ctx, usedKey(token), "1", s.maxAge)
		if err != nil {
			return fmt.Errorf("mark reset link used: %w", err)
		}
		if !first {
			return fmt.Errorf("reset link already used: %w", domain.ErrResetTokenInvalid)
		}
	}

	updated, err := s.credentials.UpdatePassword(ctx, email, hash)
	if err != nil {
		if s.singleUse {
			// Let the user retry the same link after a storage failure.
			if derr := s.markers.Delete(ctx, usedKey(token)); derr != nil {
				slog.Warn("reset marker not released", "err", derr)
			}
		}
		return fmt.Errorf("update password: %w", err)
	}
	if !updated {
		return fmt.Errorf("no account for reset link: %w", domain.ErrNotFound)
	}

	snsinfra.Emit(ctx, s.events, domain.AuthEvent{Type: domain.EventPasswordReset, Email: email, OccurredAt: s.nowF().UTC()})
	slog.Info("password reset", "email", email)
	return nil
}

func usedKey(token string) string { return usedPrefix + pkgtoken.Fingerprint(token) }
