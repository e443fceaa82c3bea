// Package registration runs the email-verified sign-up flow:
// start (OTP sent) -> verify OTP -> complete with a password.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/mail"
	snsinfra "github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/go-auth-nosql/internal/pkg/otp"
	"github.com/go-auth-nosql/internal/pkg/password"
)

func otpKey(email string) string      { return "OTP:" + email }
func verifiedKey(email string) string { return "VERIFIED:" + email }
func orgKey(email string) string      { return "ORG_ID:" + email }

// SecretStore holds the short-lived registration state.
type SecretStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

type CredentialStore interface {
	Get(ctx context.Context, email string) (*domain.Credential, error)
	Insert(ctx context.Context, c *domain.Credential) error
}

type EmployeeDirectory interface {
	ResolveOrCreate(ctx context.Context, email, orgID string) (string, error)
}

type Service interface {
	StartRegistration(ctx context.Context, email, organizationID string) error
	VerifyOTP(ctx context.Context, email, code string) error
	CompleteRegistration(ctx context.Context, email, plainPassword string) (domain.Identity, error)
}

type service struct {
	secrets     SecretStore
	credentials CredentialStore
	employees   EmployeeDirectory
	mailer      mail.Mailer
	events      snsinfra.Publisher
	generate    func(length int) (string, error)
	nowF        func() time.Time

	otpLength   int
	otpTTL      time.Duration
	orgTTL      time.Duration
	verifiedTTL time.Duration
}

// Option configures the service.
type Option func(*service)

// WithCodeGenerator replaces the random OTP source.
func WithCodeGenerator(gen func(length int) (string, error)) Option {
	return func(s *service) { s.generate = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.nowF = now }
}

func NewService(
	cfg *config.Config,
	secrets SecretStore,
	credentials CredentialStore,
	employees EmployeeDirectory,
	mailer mail.Mailer,
	events snsinfra.Publisher,
	opts ...Option,
) Service {
	s := &service{
		secrets:     secrets,
		credentials: credentials,
		employees:   employees,
		mailer:      mailer,
		events:      events,
		generate:    otp.Generate,
		nowF:        time.Now,
		otpLength:   cfg.OTPLength,
		otpTTL:      cfg.OTPTTL,
		orgTTL:      cfg.OrgAssociationTTL,
		verifiedTTL: cfg.VerifiedTTL,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) StartRegistration(ctx context.Context, email, organizationID string) error {
	email = domain.NormalizeEmail(email)
	organizationID = strings.TrimSpace(organizationID)
	if email == "" || organizationID == "" {
		return fmt.Errorf("email and org_id are required: %w", domain.ErrBadRequest)
	}
	if err := s.ensureUnregistered(ctx, email); err != nil {
		return err
	}

	code, err := s.generate(s.otpLength)
	if err != nil {
		return err
	}
	// A new challenge revokes any verification left over from an earlier attempt.
	if err := s.secrets.Delete(ctx, verifiedKey(email)); err != nil {
		return fmt.Errorf("clear verification: %w", err)
	}
	if err := s.secrets.Set(ctx, otpKey(email), code, s.otpTTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if err := s.secrets.Set(ctx, orgKey(email), organizationID, s.orgTTL); err != nil {
		return fmt.Errorf("store organization: %w", err)
	}

	if err := s.mailer.SendEmail(ctx, email, mail.SubjectVerify, mail.OTPBody(code, s.otpTTL)); err != nil {
		slog.Warn("otp email not sent", "email", email, "err", err)
	}
	slog.Info("registration started", "email", email, "org_id", organizationID)
	return nil
}

func (s *service) VerifyOTP(ctx context.Context, email, code string) error {
	email = domain.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return fmt.Errorf("email and otp are required: %w", domain.ErrBadRequest)
	}

	stored, err := s.secrets.Get(ctx, otpKey(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrOTPExpired
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}
	if !otp.Equal(stored, code) {
		slog.Info("otp mismatch", "email", email)
		return domain.ErrOTPInvalid
	}
	consumed, err := s.secrets.CompareAndDelete(ctx, otpKey(email), stored)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		// Another request consumed or replaced the challenge first.
		return domain.ErrOTPExpired
	}
	if err := s.secrets.Set(ctx, verifiedKey(email), "1", s.verifiedTTL); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	slog.Info("otp verified", "email", email)
	return nil
}

func (s *service) CompleteRegistration(ctx context.Context, email, plainPassword string) (domain.Identity, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || plainPassword == "" {
		return domain.Identity{}, fmt.Errorf("email and password are required: %w", domain.ErrBadRequest)
	}
	if err := s.ensureUnregistered(ctx, email); err != nil {
		return domain.Identity{}, err
	}

	verified, err := s.secrets.Exists(ctx, verifiedKey(email))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("check verification: %w", err)
	}
	if !verified {
		return domain.Identity{}, domain.ErrNotVerified
	}
	orgID, err := s.secrets.Get(ctx, orgKey(email))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, domain.ErrOrganizationExpired
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load organization: %w", err)
	}

	hash, err := password.Hash(plainPassword)
	if errors.Is(err, password.ErrTooLong) {
		return domain.Identity{}, fmt.Errorf("password must be at most %d bytes: %w", password.MaxBytes, domain.ErrBadRequest)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	// Nothing is written before this point, so a failure here is retryable.
	empID, err := s.employees.ResolveOrCreate(ctx, email, orgID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve employee: %w", err)
	}

	now := s.nowF().UTC()
	cred := &domain.Credential{
		Email:          email,
		PasswordHash:   hash,
		OrganizationID: orgID,
		Role:           domain.RoleEmployee,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.credentials.Insert(ctx, cred); err != nil {
		return domain.Identity{}, err
	}
	if err := s.secrets.Delete(ctx, verifiedKey(email), orgKey(email)); err != nil {
		slog.Warn("registration state not cleared", "email", email, "err", err)
	}

	snsinfra.Emit(ctx, s.events, domain.AuthEvent{
		Type:           domain.EventRegistrationCompleted,
		Email:          email,
		OrganizationID: orgID,
		OccurredAt:     now,
	})
	slog.Info("registration complete", "email", email, "org_id", orgID)
	return domain.Identity{
		Email:          email,
		OrganizationID: orgID,
		Role:           cred.RoleOrDefault(),
		EmployeeID:     empID,
	}, nil
}

func (s *service) ensureUnregistered(ctx context.Context, email string) error {
	_, err := s.credentials.Get(ctx, email)
	switch {
	case err == nil:
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	case errors.Is(err, domain.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("lookup credential: %w", err)
	}
}
