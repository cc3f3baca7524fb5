// Package authn ties identity reconciliation and session issuance together
// into the login, renewal and logout flows exposed over HTTP.
package authn

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/services/identity"
	"go.uber.org/zap"
)

// Reconciler resolves provider assertions to users
type Reconciler interface {
	Reconcile(ctx context.Context, assertion identity.Assertion) (*identity.Result, error)
}

// SessionManager issues and revokes sessions
type SessionManager interface {
	CreateSession(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteAllSessions(ctx context.Context, userID uuid.UUID) (int64, error)
}

// TokenVerifier turns a provider ID token into an assertion
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*identity.Assertion, error)
}

// CodeExchanger trades an authorization code for a provider ID token
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// RoleRegistrar announces new users to the role service
type RoleRegistrar interface {
	RegisterUser(ctx context.Context, user *models.User) error
}

// LoginResult is a freshly issued session and the user it belongs to
type LoginResult struct {
	Session *models.Session
	User    *models.User
	Outcome identity.Outcome
}

// Service implements the authentication flows
type Service struct {
	reconciler Reconciler
	sessions   SessionManager
	users      repositories.UserRepository
	verifier   TokenVerifier
	exchanger  CodeExchanger
	roles      RoleRegistrar
	metrics    observability.Metrics
	logger     *zap.Logger

	storeTimeout time.Duration
}

// Deps holds the collaborators of Service. Verifier, Exchanger and Roles may be nil.
type Deps struct {
	Reconciler Reconciler
	Sessions   SessionManager
	Users      repositories.UserRepository
	Verifier   TokenVerifier
	Exchanger  CodeExchanger
	Roles      RoleRegistrar
	Metrics    observability.Metrics
	Logger     *zap.Logger

	// StoreTimeout bounds direct user lookups. Zero disables the bound.
	StoreTimeout time.Duration
}

// NewService creates the authentication service
func NewService(d Deps) *Service {
	if d.Metrics == nil {
		d.Metrics = observability.NopMetrics{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		reconciler: d.Reconciler,
		sessions:   d.Sessions,
		users:      d.Users,
		verifier:   d.Verifier,
		exchanger:  d.Exchanger,
		roles:      d.Roles,
		metrics:    d.Metrics,
		logger:     d.Logger,

		storeTimeout: d.StoreTimeout,
	}
}

// LoginWithAssertion reconciles the assertion and opens a session for the user.
// New users are announced to the role service; a failure there is logged only.
func (s *Service) LoginWithAssertion(ctx context.Context, assertion identity.Assertion) (*LoginResult, error) {
	res, err := s.reconciler.Reconcile(ctx, assertion)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, res.User.ID)
	if err != nil {
		return nil, err
	}

	if res.Outcome == identity.OutcomeCreated {
		s.registerRoles(ctx, res.User)
	}

	return &LoginResult{Session: session, User: res.User, Outcome: res.Outcome}, nil
}

// LoginWithProviderToken verifies a provider ID token and logs its subject in
func (s *Service) LoginWithProviderToken(ctx context.Context, idToken string) (*LoginResult, error) {
	if s.verifier == nil {
		return nil, services.ErrProviderNotEnabled
	}

	assertion, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("provider token verification failed", zap.Error(err))
		return nil, err
	}

	return s.LoginWithAssertion(ctx, *assertion)
}

// LoginWithAuthorizationCode completes the redirect flow
func (s *Service) LoginWithAuthorizationCode(ctx context.Context, code string) (*LoginResult, error) {
	if s.exchanger == nil {
		return nil, services.ErrProviderNotEnabled
	}

	idToken, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.LoginWithProviderToken(ctx, idToken)
}

// RenewSession replaces current with a fresh session for the same user
func (s *Service) RenewSession(ctx context.Context, current *models.Session) (*models.Session, error) {
	renewed, err := s.sessions.CreateSession(ctx, current.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.DeleteSession(ctx, current.Token); err != nil {
		if rbErr := s.sessions.DeleteSession(ctx, renewed.Token); rbErr != nil {
			s.logger.Error("failed to discard renewed session", zap.Error(rbErr))
		}
		return nil, err
	}

	s.logger.Info("session renewed",
		zap.String("user_id", current.UserID.String()),
		zap.String("previous_session_id", current.ID.String()),
		zap.String("session_id", renewed.ID.String()))
	return renewed, nil
}

// Logout revokes the session bound to token
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// LogoutEverywhere revokes every session of userID
func (s *Service) LogoutEverywhere(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.sessions.DeleteAllSessions(ctx, userID)
}

// CurrentUser loads the user behind an authenticated request
func (s *Service) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.ErrStoreUnavailable.WithCause(err)
	}
	return user, nil
}

func (s *Service) registerRoles(ctx context.Context, user *models.User) {
	if s.roles == nil {
		return
	}
	if err := s.roles.RegisterUser(ctx, user); err != nil {
		s.metrics.RecordRoleRegistrationFailure()
		s.logger.Error("failed to register user with role service",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}
}
