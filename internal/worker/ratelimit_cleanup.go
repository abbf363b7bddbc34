package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/logger"
)

// RateLimitCleanupWorker removes expired fallback rate-limit windows.
type RateLimitCleanupWorker struct {
	repo     repository.RateLimitRepository
	interval time.Duration
	clock    clock.Clock
	logger   *logger.Logger
}

func NewRateLimitCleanupWorker(repo repository.RateLimitRepository, interval time.Duration, clk clock.Clock, log *logger.Logger) *RateLimitCleanupWorker {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RateLimitCleanupWorker{
		repo:     repo,
		interval: interval,
		clock:    clk,
		logger:   log,
	}
}

func (w *RateLimitCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Error cleaning up rate limit windows")
			}
		}
	}
}

func (w *RateLimitCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	now := w.clock.Now()

	rows, err := w.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit windows: %w", err)
	}

	if rows > 0 {
		w.logger.Debug("Cleaned up rate limit windows", "rows", rows, "before", now)
	}
	return rows, nil
}
