// Package session issues, validates and revokes login sessions.
//
// A session is valid only while two independent checks pass: the presented
// credential carries a good signature and unexpired claims, and a matching
// unexpired record exists in the session store. Deleting the record revokes
// the session immediately even though the credential still verifies.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/services/credential"
	"go.uber.org/zap"
)

// DefaultTTL is used when no TTL is configured
const DefaultTTL = time.Hour

// Config holds Authority settings
type Config struct {
	TTL          time.Duration
	StoreTimeout time.Duration
}

// Authority is the single gate through which sessions are created and checked
type Authority struct {
	sessions repositories.SessionRepository
	codec    *credential.Codec
	cfg      Config
	now      func() time.Time
	metrics  observability.Metrics
	logger   *zap.Logger
}

// Option configures an Authority
type Option func(*Authority)

// WithClock overrides the time source used for the store-side expiry check
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m observability.Metrics) Option {
	return func(a *Authority) {
		a.metrics = m
	}
}

// NewAuthority creates a session authority
func NewAuthority(sessions repositories.SessionRepository, codec *credential.Codec, cfg Config, logger *zap.Logger, opts ...Option) *Authority {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	a := &Authority{
		sessions: sessions,
		codec:    codec,
		cfg:      cfg,
		now:      time.Now,
		metrics:  observability.NopMetrics{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TTL returns the configured session lifetime
func (a *Authority) TTL() time.Duration {
	return a.cfg.TTL
}

func (a *Authority) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.cfg.StoreTimeout)
}

// CreateSession issues a credential for userID and persists the matching
// record. The returned session carries the raw credential; it is the only
// place the credential is ever observable.
func (a *Authority) CreateSession(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	cred, err := a.codec.Sign(userID.String(), credential.PurposeAuth, a.cfg.TTL)
	if err != nil {
		return nil, services.ErrInternal.WithCause(fmt.Errorf("sign credential: %w", err))
	}

	id, err := uuid.Parse(cred.ID)
	if err != nil {
		return nil, services.ErrInternal.WithCause(fmt.Errorf("credential id is not a uuid: %w", err))
	}

	session := &models.Session{
		ID:        id,
		UserID:    userID,
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		CreatedAt: cred.IssuedAt,
	}

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	if err := a.sessions.Create(sctx, session); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return nil, services.WrapError(services.ErrorTypeConflict, "session already exists", err)
		case errors.Is(err, repositories.ErrNotFound):
			return nil, services.WrapError(services.ErrorTypeNotFound, "user not found", err)
		}
		return nil, services.ErrStoreUnavailable.WithCause(fmt.Errorf("persist session: %w", err))
	}

	a.metrics.RecordSessionIssued()
	a.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Time("expires_at", session.ExpiresAt))

	return session, nil
}

// ValidateSession returns the live session for token, or nil when the token
// is not a valid session for any reason. A non-nil error means the store
// could not be consulted; the caller must not treat it as "invalid".
func (a *Authority) ValidateSession(ctx context.Context, token string) (*models.Session, error) {
	verified, err := a.codec.Verify(token, credential.PurposeAuth)
	if err != nil {
		a.metrics.RecordSessionValidation(observability.ValidationInvalid)
		return nil, nil
	}

	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	stored, err := a.sessions.GetByToken(sctx, token)
	if err != nil {
		a.metrics.RecordSessionValidation(observability.ValidationError)
		return nil, services.ErrStoreUnavailable.WithCause(fmt.Errorf("session lookup: %w", err))
	}

	if stored == nil || stored.IsExpired(a.now()) || stored.UserID.String() != verified.Subject {
		a.metrics.RecordSessionValidation(observability.ValidationInvalid)
		return nil, nil
	}

	stored.Token = token
	a.metrics.RecordSessionValidation(observability.ValidationValid)
	return stored, nil
}

// DeleteSession revokes the session bound to token. The credential is not
// verified first, so malformed or expired credentials can still be purged.
func (a *Authority) DeleteSession(ctx context.Context, token string) error {
	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	n, err := a.sessions.DeleteByToken(sctx, token)
	if err != nil {
		return services.ErrStoreUnavailable.WithCause(fmt.Errorf("delete session: %w", err))
	}

	if n > 0 {
		a.metrics.RecordSessionsRevoked(n)
	}
	return nil
}

// DeleteAllSessions revokes every session owned by userID
func (a *Authority) DeleteAllSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	n, err := a.sessions.DeleteByUserID(sctx, userID)
	if err != nil {
		return 0, services.ErrStoreUnavailable.WithCause(fmt.Errorf("delete user sessions: %w", err))
	}

	a.metrics.RecordSessionsRevoked(n)
	a.logger.Info("user sessions revoked",
		zap.String("user_id", userID.String()),
		zap.Int64("count", n))
	return n, nil
}

// PurgeExpired removes records whose expiry has passed
func (a *Authority) PurgeExpired(ctx context.Context) (int64, error) {
	sctx, cancel := a.storeContext(ctx)
	defer cancel()

	n, err := a.sessions.DeleteExpired(sctx, a.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}
