package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/auth-service/config"
	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/middleware"
	"github.com/upb/auth-service/services/authn"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// SessionCookieName is the cookie name for the session token
	SessionCookieName = middleware.SessionCookieName
	stateCookieMaxAge = 600

	loginErrorPath = "/login?error=session_creation_failed"
)

// ConsentURLBuilder builds the provider consent page URL
type ConsentURLBuilder interface {
	AuthCodeURL(state string) string
}

// CodeLogin completes a login from an authorization code
type CodeLogin interface {
	LoginWithAuthorizationCode(ctx context.Context, code string) (*authn.LoginResult, error)
}

// Handler handles the browser redirect flow (consent redirect and callback).
type Handler struct {
	cfg     *config.Config
	consent ConsentURLBuilder
	login   CodeLogin
	logger  *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(cfg *config.Config, consent ConsentURLBuilder, login CodeLogin, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		consent: consent,
		login:   login,
		logger:  logger,
	}
}

// HandleLogin redirects to the Google consent page
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.GoogleEnabled() || h.consent == nil {
		h.logger.Error("google sign-in not configured")
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured", 0)
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.consent.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, opens a session, sets the
// session cookie and sends the browser back to the front end.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("provider denied consent", zap.String("error", providerErr))
		http.Redirect(w, r, h.frontEnd(loginErrorPath), http.StatusFound)
		return
	}

	code := query.Get("code")
	state := query.Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	if h.login == nil {
		h.logger.Error("login service not configured")
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured", 0)
		return
	}

	result, err := h.login.LoginWithAuthorizationCode(r.Context(), code)
	if err != nil {
		observability.WithRequestID(r.Context(), h.logger).Warn("callback login failed", zap.Error(err))
		http.Redirect(w, r, h.frontEnd(loginErrorPath), http.StatusFound)
		return
	}

	SetSessionCookie(w, result.Session.Token, result.Session.ExpiresAt, h.secure())
	http.Redirect(w, r, h.frontEnd(""), http.StatusFound)
}

func (h *Handler) secure() bool {
	return IsSecureURL(h.cfg.Google.CallbackURL)
}

func (h *Handler) frontEnd(path string) string {
	base := strings.TrimSuffix(h.cfg.FrontEndURL, "/")
	if base == "" && path == "" {
		return "/"
	}
	return base + path
}

// SetSessionCookie stores the session credential in an HttpOnly cookie that
// expires together with the session.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time, secure bool) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// IsSecureURL reports whether cookies issued for rawURL should be Secure
func IsSecureURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme == "https"
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
