package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents an end user reconciled from an external identity provider
type User struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ExternalID  *string   `json:"external_id,omitempty" db:"external_id"` // provider subject, nil until linked
	Email       string    `json:"email" db:"email"`
	Name        string    `json:"name" db:"name"`
	AvatarURL   string    `json:"picture" db:"avatar_url"`
	IsSuperuser bool      `json:"is_superuser" db:"is_superuser"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, name, avatarURL string, externalID *string) *User {
	now := time.Now().UTC()
	return &User{
		ID:         uuid.New(),
		ExternalID: externalID,
		Email:      NormalizeEmail(email),
		Name:       name,
		AvatarURL:  avatarURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasExternalID returns true if the user is linked to a provider identity
func (u *User) HasExternalID() bool {
	return u.ExternalID != nil && *u.ExternalID != ""
}

// LinkedTo returns true if the user is linked to the given provider identity
func (u *User) LinkedTo(externalID string) bool {
	return u.HasExternalID() && *u.ExternalID == externalID
}

// Summary returns the public projection of the user
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// UserSummary is the user view returned to clients
type UserSummary struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"picture"`
}

// NormalizeEmail lowercases and trims an email address.
// Emails are unique case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
