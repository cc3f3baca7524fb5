package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

// SessionValidator resolves a presented credential to a live session.
// A nil session with a nil error means the credential is not valid.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.Session, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator  SessionValidator
	logger     *zap.Logger
	retryAfter time.Duration
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator SessionValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator:  validator,
		logger:     logger,
		retryAfter: 5 * time.Second,
	}
}

// SessionCookieName is set by the auth handler after the OAuth callback
const SessionCookieName = "session"

// RequireAuth rejects requests without a live session
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := ExtractToken(r)
		if token == "" {
			m.logger.Debug("missing credential",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		session, err := m.validator.ValidateSession(ctx, token)
		if err != nil {
			m.logger.Error("session validation unavailable",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteServiceUnavailable(w, "Session store unavailable", m.retryAfter)
			return
		}
		if session == nil {
			m.logger.Debug("session rejected",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Invalid or expired session")
			return
		}

		ctx = WithSession(ctx, session)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", session.UserID.String()),
			zap.String("session_id", session.ID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken returns the credential from the Authorization header ("Bearer TOKEN"),
// or from the session cookie when no Authorization header is sent. A header
// that is present but not a well-formed bearer credential yields "" even if
// the cookie is set.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return parseBearer(authHeader)
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func parseBearer(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
