package domain

import (
	"strings"
	"time"
)

// Credential is a registered account in the credentials table. PK: email.
type Credential struct {
	Email          string    `json:"email" dynamodbav:"email"`
	PasswordHash   string    `json:"-" dynamodbav:"password_hash"`
	OrganizationID string    `json:"organization_id" dynamodbav:"org_id"`
	Role           string    `json:"role" dynamodbav:"role"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// RoleOrDefault returns the stored role, falling back to RoleEmployee for
// records written before roles were tracked.
func (c *Credential) RoleOrDefault() string {
	if c.Role == "" {
		return RoleEmployee
	}
	return c.Role
}

// Identity is the set of attributes embedded into issued tokens.
type Identity struct {
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	EmployeeID     string `json:"employee_id"`
}

// DisplayName is the local part of an email address.
func DisplayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// NormalizeEmail trims whitespace and lowercases the address so that all keys
// derived from it are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
