package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes elapsed sessions
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired sessions from the store
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper that runs every interval
func NewSweeper(purger Purger, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		purger:   purger,
		interval: interval,
		logger:   logger,
	}
}

// Start runs until ctx is cancelled. It sweeps once immediately.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and logs the outcome
func (s *Sweeper) RunOnce(ctx context.Context) {
	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("session sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions purged", zap.Int64("count", n))
	}
}
