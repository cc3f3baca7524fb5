package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/auth-service/config"
	"github.com/upb/auth-service/services"
	"go.uber.org/zap"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
	defaultGoogleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// googleIssuers are the issuer values Google puts in ID tokens
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// boolish decodes both JSON booleans and "true"/"false" strings;
// Google has emitted email_verified in both forms.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "true":
		*b = true
	case "false", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// GoogleClaims are the ID token claims the service reads
type GoogleClaims struct {
	Email         string  `json:"email"`
	EmailVerified boolish `json:"email_verified"`
	Name          string  `json:"name"`
	Picture       string  `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier verifies Google ID tokens against Google's published keys
type GoogleVerifier struct {
	clientID string
	jwksURL  string
	timeout  time.Duration
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger

	mu      sync.Mutex
	keyfunc jwt.Keyfunc
	jwks    *keyfunc.JWKS
	ctx     context.Context
	cancel  context.CancelFunc
}

// VerifierOption configures a GoogleVerifier
type VerifierOption func(*GoogleVerifier)

// WithKeyfunc supplies signing keys directly instead of fetching the JWKS
func WithKeyfunc(kf jwt.Keyfunc) VerifierOption {
	return func(v *GoogleVerifier) {
		v.keyfunc = kf
	}
}

// WithVerifierClock overrides the time source used for expiry checks
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *GoogleVerifier) {
		v.now = now
	}
}

// NewGoogleVerifier creates a verifier. Keys are fetched on first use.
func NewGoogleVerifier(cfg config.GoogleConfig, logger *zap.Logger, opts ...VerifierOption) *GoogleVerifier {
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = defaultGoogleJWKSURL
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &GoogleVerifier{
		clientID: cfg.ClientID,
		jwksURL:  jwksURL,
		timeout:  cfg.HTTPTimeout,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		now:      time.Now,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *GoogleVerifier) keys() (jwt.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keyfunc != nil {
		return v.keyfunc, nil
	}

	jwks, err := keyfunc.Get(v.jwksURL, keyfunc.Options{
		Client: v.client,
		Ctx:    v.ctx,
		RefreshErrorHandler: func(err error) {
			v.logger.Warn("google jwks refresh failed", zap.Error(err))
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    v.timeout,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, err
	}

	v.jwks = jwks
	v.keyfunc = jwks.Keyfunc
	return v.keyfunc, nil
}

// Verify validates idToken and returns the identity it asserts
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Assertion, error) {
	if v.clientID == "" {
		return nil, services.ErrProviderNotEnabled
	}

	kf, err := v.keys()
	if err != nil {
		return nil, services.ErrProviderUnavailable.WithCause(fmt.Errorf("fetch google signing keys: %w", err))
	}

	claims := &GoogleClaims{}
	_, err = jwt.ParseWithClaims(idToken, claims, kf,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, services.ErrInvalidIdentity.WithCause(err)
	}

	if !googleIssuers[claims.Issuer] {
		return nil, services.ErrInvalidIdentity.WithCause(fmt.Errorf("unexpected issuer %q", claims.Issuer))
	}
	if claims.Subject == "" {
		return nil, services.ErrInvalidIdentity.WithCause(errors.New("missing subject"))
	}
	if !claims.EmailVerified {
		return nil, services.WrapUnauthenticated("google account email is not verified", nil)
	}

	return &Assertion{
		ExternalID:    claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		EmailVerified: bool(claims.EmailVerified),
	}, nil
}

// Close stops the background key refresh
func (v *GoogleVerifier) Close() {
	v.cancel()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// TokenResponse represents the OAuth2 token endpoint response from Google
type TokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// GoogleCodeExchanger runs the authorization-code leg of Google sign-in
type GoogleCodeExchanger struct {
	cfg        config.GoogleConfig
	authURL    string
	tokenURL   string
	httpClient *http.Client
}

// ExchangerOption configures a GoogleCodeExchanger
type ExchangerOption func(*GoogleCodeExchanger)

// WithEndpoints overrides Google's authorization and token URLs
func WithEndpoints(authURL, tokenURL string) ExchangerOption {
	return func(e *GoogleCodeExchanger) {
		e.authURL = authURL
		e.tokenURL = tokenURL
	}
}

// NewGoogleCodeExchanger creates a new code exchanger
func NewGoogleCodeExchanger(cfg config.GoogleConfig, opts ...ExchangerOption) *GoogleCodeExchanger {
	e := &GoogleCodeExchanger{
		cfg:        cfg,
		authURL:    defaultGoogleAuthURL,
		tokenURL:   defaultGoogleTokenURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AuthCodeURL returns the consent page URL carrying state
func (e *GoogleCodeExchanger) AuthCodeURL(state string) string {
	params := url.Values{
		"client_id":     {e.cfg.ClientID},
		"redirect_uri":  {e.cfg.CallbackURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"state":         {state},
		"prompt":        {"select_account"},
	}
	return e.authURL + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for an ID token
func (e *GoogleCodeExchanger) ExchangeCode(ctx context.Context, code string) (string, error) {
	if e.cfg.ClientID == "" {
		return "", services.ErrProviderNotEnabled
	}

	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {e.cfg.ClientID},
		"code":         {code},
		"redirect_uri": {e.cfg.CallbackURL},
	}
	if e.cfg.ClientSecret != "" {
		data.Set("client_secret", e.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", services.WrapInternal("create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", services.ErrProviderUnavailable.WithCause(fmt.Errorf("token request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.ErrProviderUnavailable.WithCause(fmt.Errorf("read token response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", services.ErrProviderUnavailable.WithCause(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		// invalid_grant and friends: the code is bad, not the provider
		return "", services.WrapUnauthenticated("authorization code rejected",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", services.ErrProviderUnavailable.WithCause(fmt.Errorf("parse token response: %w", err))
	}

	if tokenResp.IDToken == "" {
		return "", services.ErrProviderUnavailable.WithCause(errors.New("no id_token in token response"))
	}

	return tokenResp.IDToken, nil
}
