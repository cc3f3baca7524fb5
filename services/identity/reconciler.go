// Package identity maps identities asserted by an external provider onto
// internal user records, and verifies the provider tokens those assertions
// are read from.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/models"
	"github.com/upb/auth-service/repositories"
	"github.com/upb/auth-service/services"
	"github.com/upb/auth-service/utils"
	"go.uber.org/zap"
)

// Outcome describes what reconciliation did to the user record
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeLinked  Outcome = "linked"
	OutcomeUpdated Outcome = "updated"
)

// Assertion is an identity vouched for by the provider
type Assertion struct {
	ExternalID    string `validate:"required,max=255"`
	Email         string `validate:"required,email,max=255"`
	Name          string `validate:"max=255"`
	AvatarURL     string `validate:"omitempty,url,max=2048"`
	EmailVerified bool
}

func (a *Assertion) normalize() {
	a.ExternalID = strings.TrimSpace(a.ExternalID)
	a.Email = models.NormalizeEmail(a.Email)
	a.Name = strings.TrimSpace(a.Name)
	a.AvatarURL = strings.TrimSpace(a.AvatarURL)
}

// Result is the reconciled user and how it was reached
type Result struct {
	User    *models.User
	Outcome Outcome
}

// Reconciler finds, links or creates the user behind an assertion
type Reconciler struct {
	users   repositories.UserRepository
	txMgr   repositories.TransactionManager
	metrics observability.Metrics
	logger  *zap.Logger
	now     func() time.Time

	storeTimeout time.Duration
}

// ReconcilerOption configures a Reconciler
type ReconcilerOption func(*Reconciler)

// WithStoreTimeout bounds each reconciliation's store work. Zero leaves it
// bounded by the caller's context only.
func WithStoreTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.storeTimeout = d
	}
}

// NewReconciler creates a reconciler
func NewReconciler(users repositories.UserRepository, txMgr repositories.TransactionManager, metrics observability.Metrics, logger *zap.Logger, opts ...ReconcilerOption) *Reconciler {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	r := &Reconciler{
		users:   users,
		txMgr:   txMgr,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the assertion to a user. Lookup is by external id first,
// then by email. An email match whose record is already linked to a different
// external id is reported as a conflict and left untouched.
func (r *Reconciler) Reconcile(ctx context.Context, assertion Assertion) (*Result, error) {
	assertion.normalize()
	if err := utils.ValidateStruct(&assertion); err != nil {
		domainErr := services.ErrInvalidAssertion.WithCause(err)
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			domainErr.Details = validationErr.Details()
		}
		return nil, domainErr
	}

	if r.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.storeTimeout)
		defer cancel()
	}

	result, err := services.WithTransactionResult(ctx, r.txMgr, func(ctx context.Context, tx repositories.Transaction) (*Result, error) {
		return r.reconcile(ctx, r.users.WithTx(tx), assertion)
	})
	if err != nil {
		var domainErr *services.DomainError
		switch {
		case errors.As(err, &domainErr):
			return nil, err
		case errors.Is(err, repositories.ErrConflict):
			// lost a race against a concurrent registration
			return nil, services.ErrConcurrentUpdate.WithCause(err).
				WithDetail("retryable", true)
		}
		return nil, services.ErrStoreUnavailable.WithCause(err)
	}

	r.metrics.RecordReconciliation(string(result.Outcome))
	r.logger.Info("identity reconciled",
		zap.String("user_id", result.User.ID.String()),
		zap.String("outcome", string(result.Outcome)))

	return result, nil
}

func (r *Reconciler) reconcile(ctx context.Context, users repositories.UserRepository, a Assertion) (*Result, error) {
	user, err := users.GetByExternalID(ctx, a.ExternalID)
	if err == nil {
		if user.Email != a.Email {
			if err := r.ensureEmailFree(ctx, users, user, a.Email); err != nil {
				return nil, err
			}
			user.Email = a.Email
		}
		r.refresh(user, a)
		if err := users.Update(ctx, user); err != nil {
			return nil, err
		}
		return &Result{User: user, Outcome: OutcomeUpdated}, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	user, err = users.GetByEmail(ctx, a.Email)
	if err == nil {
		if user.HasExternalID() {
			return nil, services.NewDomainError(services.ErrorTypeConflict, "email is linked to a different identity", nil).
				WithDetail("retryable", false)
		}
		externalID := a.ExternalID
		user.ExternalID = &externalID
		r.refresh(user, a)
		if err := users.Update(ctx, user); err != nil {
			return nil, err
		}
		return &Result{User: user, Outcome: OutcomeLinked}, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	externalID := a.ExternalID
	user = models.NewUser(a.Email, a.Name, a.AvatarURL, &externalID)
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return &Result{User: user, Outcome: OutcomeCreated}, nil
}

func (r *Reconciler) ensureEmailFree(ctx context.Context, users repositories.UserRepository, owner *models.User, email string) error {
	other, err := users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != owner.ID:
		return services.NewDomainError(services.ErrorTypeConflict, "email belongs to another user", nil).
			WithDetail("retryable", false)
	}
	return nil
}

func (r *Reconciler) refresh(user *models.User, a Assertion) {
	if a.Name != "" {
		user.Name = a.Name
	}
	if a.AvatarURL != "" {
		user.AvatarURL = a.AvatarURL
	}
	user.UpdatedAt = r.now().UTC()
}
