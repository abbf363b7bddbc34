package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/repository"
	"github.com/jwalitptl/booking-api/pkg/clock"
	"github.com/jwalitptl/booking-api/pkg/logger"
	"github.com/jwalitptl/booking-api/pkg/messaging"
	"github.com/jwalitptl/booking-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// MaxAttempts is how many publishes an event gets before it is
	// marked failed.
	MaxAttempts  int
	RetryBackoff time.Duration
	// Retention is how long processed events are kept. Zero disables
	// cleanup.
	Retention       time.Duration
	CleanupInterval time.Duration
}

func (c OutboxProcessorConfig) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.New("BatchSize must be greater than 0")
	case c.PollInterval <= 0:
		return errors.New("PollInterval must be greater than 0")
	case c.MaxAttempts <= 0:
		return errors.New("MaxAttempts must be greater than 0")
	case c.RetryBackoff <= 0:
		return errors.New("RetryBackoff must be greater than 0")
	case c.Retention > 0 && c.CleanupInterval <= 0:
		return errors.New("CleanupInterval must be greater than 0 when Retention is set")
	}
	return nil
}

// OutboxProcessor publishes queued notification events to the broker.
type OutboxProcessor struct {
	txm     repository.TxManager
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	txm repository.TxManager,
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &OutboxProcessor{
		txm:     txm,
		repo:    repo,
		broker:  broker,
		config:  config,
		clock:   clk,
		logger:  log,
		metrics: m,
	}, nil
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if p.config.Retention > 0 {
		t := time.NewTicker(p.config.CleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		case <-cleanup:
			if _, err := p.Cleanup(ctx); err != nil {
				p.logger.Error(err, "Failed to clean up processed events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events and returns how many were
// delivered. Rows stay locked until the batch's status updates commit.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	start := p.clock.Now()
	defer func() {
		p.metrics.ObserveOutbox(p.clock.Now().Sub(start).Seconds())
	}()

	delivered := 0
	err := p.txm.WithTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}

		for _, event := range events {
			if err := p.processEvent(ctx, event); err != nil {
				p.logger.Warn(err, "Failed to process event",
					"event_id", event.ID.String(),
					"event_type", event.EventType,
					"attempt", event.RetryCount+1)
				continue
			}
			delivered++
		}
		return nil
	})
	return delivered, err
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := p.broker.Publish(ctx, messaging.Channel(event.EventType), event.Payload)
	if err != nil {
		p.metrics.OutboxFailed()
		errStr := err.Error()

		status, retryAt := model.OutboxStatusFailed, (*time.Time)(nil)
		if event.RetryCount+1 < p.config.MaxAttempts {
			next := p.clock.Now().Add(p.backoff(event.RetryCount))
			status, retryAt = model.OutboxStatusRetry, &next
		}
		if updateErr := p.repo.UpdateStatus(ctx, event.ID, status, &errStr, retryAt); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxProcessed()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}
	return nil
}

// backoff doubles per prior attempt, capped at 64x the base delay.
func (p *OutboxProcessor) backoff(attempts int) time.Duration {
	if attempts > 6 {
		attempts = 6
	}
	return p.config.RetryBackoff << attempts
}

// Cleanup deletes processed events older than the retention period.
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.config.Retention)
	rows, err := p.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	if rows > 0 {
		p.logger.Info("Cleaned up processed outbox events", "rows", rows, "cutoff", cutoff)
	}
	return rows, nil
}
