package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/upb/auth-service/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the authenticated session
	SessionKey contextKey = "session"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSessionFromContext retrieves the authenticated session from context
func GetSessionFromContext(ctx context.Context) *models.Session {
	if val := ctx.Value(SessionKey); val != nil {
		if session, ok := val.(*models.Session); ok {
			return session
		}
	}
	return nil
}

// GetUserIDFromContext retrieves the authenticated user ID from context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	session := GetSessionFromContext(ctx)
	if session == nil {
		return uuid.Nil, false
	}
	return session.UserID, true
}
