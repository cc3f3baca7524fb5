package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/auth"
	"github.com/upb/auth-service/middleware"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/services/authn"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

// Authenticator is the subset of authn.Service used by the JSON API
type Authenticator interface {
	LoginWithProviderToken(ctx context.Context, idToken string) (*authn.LoginResult, error)
	RenewSession(ctx context.Context, current *models.Session) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	LogoutEverywhere(ctx context.Context, userID uuid.UUID) (int64, error)
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// ProviderLoginRequest carries a provider ID token obtained by the front end
type ProviderLoginRequest struct {
	Token string `json:"token" validate:"required,max=8192"`
}

// SessionResponse is returned whenever a session is issued
type SessionResponse struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
	User      *models.UserSummary `json:"user,omitempty"`
}

// RevokedResponse reports how many sessions a bulk logout removed
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// AuthHandler handles the JSON authentication endpoints
type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. secureCookie marks the session
// cookie Secure and should be set whenever the service is served over TLS.
func NewAuthHandler(authenticator Authenticator, secureCookie bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         authenticator,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleProviderLogin handles POST /auth/google
func (h *AuthHandler) HandleProviderLogin(w http.ResponseWriter, r *http.Request) {
	var req ProviderLoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		HandleServiceError(w, services.ErrInvalidInput, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	result, err := h.auth.LoginWithProviderToken(r.Context(), req.Token)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.SetSessionCookie(w, result.Session.Token, result.Session.ExpiresAt, h.secureCookie)
	summary := result.User.Summary()
	h.writeJSON(w, http.StatusOK, SessionResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt,
		User:      &summary,
	})
}

// HandleRenew handles POST /auth/session
func (h *AuthHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	current := middleware.GetSessionFromContext(r.Context())
	if current == nil {
		HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}

	renewed, err := h.auth.RenewSession(r.Context(), current)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.SetSessionCookie(w, renewed.Token, renewed.ExpiresAt, h.secureCookie)
	h.writeJSON(w, http.StatusOK, SessionResponse{
		Token:     renewed.Token,
		ExpiresAt: renewed.ExpiresAt,
	})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	current := middleware.GetSessionFromContext(r.Context())
	if current == nil {
		HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}

	if err := h.auth.Logout(r.Context(), current.Token); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.ClearSessionCookie(w, h.secureCookie)
	utils.WriteNoContent(w)
}

// HandleLogoutEverywhere handles DELETE /auth/sessions
func (h *AuthHandler) HandleLogoutEverywhere(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}

	n, err := h.auth.LogoutEverywhere(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.ClearSessionCookie(w, h.secureCookie)
	h.writeJSON(w, http.StatusOK, RevokedResponse{Revoked: n})
}

// HandleMe handles GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.writeJSON(w, http.StatusOK, user.Summary())
}

func (h *AuthHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Cache-Control", "no-store")
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
