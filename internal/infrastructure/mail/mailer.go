// Package mail delivers OTP and password reset emails.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/go-auth-nosql/internal/config"
	awsinfra "github.com/go-auth-nosql/internal/infrastructure/aws"
)

// Mailer sends emails. Bodies are HTML.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// New picks the backend named by cfg.MailBackend.
func New(ctx context.Context, cfg *config.Config) (Mailer, error) {
	switch cfg.MailBackend {
	case "smtp":
		return NewSMTPMailer(cfg), nil
	case "ses":
		awsCfg, err := awsinfra.LoadConfig(ctx, cfg, cfg.SESRegion)
		if err != nil {
			return nil, err
		}
		client := ses.NewFromConfig(awsCfg, func(o *ses.Options) { o.BaseEndpoint = awsinfra.Endpoint(cfg) })
		return NewSESMailer(client, cfg.MailFrom), nil
	case "console":
		return ConsoleMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.MailBackend)
	}
}

// ConsoleMailer logs the recipient and subject instead of sending. Bodies carry
// secrets and are not logged.
type ConsoleMailer struct{}

func (ConsoleMailer) SendEmail(_ context.Context, to, subject, _ string) error {
	slog.Info("email (console backend)", "to", to, "subject", subject)
	return nil
}
