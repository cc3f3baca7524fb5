package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a persisted, revocable authentication session.
// Token is the signed credential; it is only populated on the value returned
// at creation time and is never read back from storage.
type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Token     string    `json:"-" db:"-"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// IsExpired reports whether the session has expired at the given instant
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
