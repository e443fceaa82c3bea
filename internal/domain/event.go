package domain

import "time"

// Auth event types published to the events topic.
const (
	EventRegistrationCompleted = "registration.completed"
	EventLogin                 = "session.login"
	EventLogout                = "session.logout"
	EventTokenRevoked          = "token.revoked"
	EventPasswordReset         = "password.reset"
)

// AuthEvent is a lifecycle notification for downstream consumers.
// It never carries secrets.
type AuthEvent struct {
	Type           string    `json:"type"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organization_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
