package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/notify"
)

// Retry policy defaults.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 10 * time.Minute
)

// RetryManager is the sole authority on reschedule vs terminal dead-letter.
// On every processor failure it either parks the cycle in AWAITING_RETRY
// with exponential backoff or, once the retry budget is spent, in
// DEAD_LETTER with an operator alert.
type RetryManager struct {
	cycles     domain.CycleStore
	audit      domain.AuditStore
	notifier   *notify.Notifier
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetryManager creates a RetryManager. Non-positive maxRetries or
// baseDelay fall back to the defaults.
func NewRetryManager(
	cycles domain.CycleStore,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	maxRetries int,
	baseDelay time.Duration,
	logger *slog.Logger,
) *RetryManager {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &RetryManager{
		cycles:     cycles,
		audit:      audit,
		notifier:   notifier,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger.With(slog.String("component", "retry_manager")),
	}
}

// Backoff returns the delay before the given retry attempt:
// baseDelay × 2^(retryCount−1).
func (r *RetryManager) Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return r.baseDelay << (retryCount - 1)
}

// HandleFailure records one processing failure against the cycle and
// decides its fate. Notification failures are logged, never propagated: an
// unreachable messenger must not change the state machine.
func (r *RetryManager) HandleFailure(ctx context.Context, c domain.Cycle, cause error) error {
	now := time.Now().UTC()
	reason := cause.Error()
	c.RetryCount++
	c.FailureReason = &reason
	c.LastRetryAt = &now
	c.LockedAt = nil

	if c.RetryCount >= r.maxRetries {
		c.Status = domain.CycleDeadLetter
		c.NextRetryAt = nil
		c.EndTime = &now
		if err := r.cycles.Update(ctx, c); err != nil {
			return fmt.Errorf("engine: park dead letter %s: %w", c.ID, err)
		}

		r.logger.ErrorContext(ctx, "cycle dead-lettered",
			slog.String("cycle_id", c.ID),
			slog.Int("retry_count", c.RetryCount),
			slog.String("reason", reason),
		)
		r.auditLog(ctx, "cycle.dead_letter", map[string]any{
			"cycle_id":    c.ID,
			"retry_count": c.RetryCount,
			"reason":      reason,
		})
		if err := r.notifier.Notify(ctx, notify.EventDeadLetter,
			"Cycle dead-lettered",
			fmt.Sprintf("cycle %s failed %d times; manual intervention required.\nlast error: %s",
				c.ID, c.RetryCount, reason),
		); err != nil {
			r.logger.WarnContext(ctx, "dead-letter alert failed", slog.String("error", err.Error()))
		}
		return nil
	}

	delay := r.Backoff(c.RetryCount)
	next := now.Add(delay)
	c.Status = domain.CycleAwaitingRetry
	c.NextRetryAt = &next
	if err := r.cycles.Update(ctx, c); err != nil {
		return fmt.Errorf("engine: schedule retry for %s: %w", c.ID, err)
	}

	r.logger.WarnContext(ctx, "cycle scheduled for retry",
		slog.String("cycle_id", c.ID),
		slog.Int("retry_count", c.RetryCount),
		slog.Duration("delay", delay),
		slog.String("reason", reason),
	)
	return nil
}

// SweepDueRetries re-enqueues every AWAITING_RETRY cycle whose backoff has
// elapsed and returns how many were reset.
func (r *RetryManager) SweepDueRetries(ctx context.Context) (int64, error) {
	n, err := r.cycles.ResetDueRetries(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "retry sweep re-enqueued cycles", slog.Int64("count", n))
	}
	return n, nil
}

// RecoverDeadLetter is the manual, audited recovery operation: it resets
// retry bookkeeping, re-enqueues the cycle, and fires a recovery
// notification.
func (r *RetryManager) RecoverDeadLetter(ctx context.Context, id string) (domain.Cycle, error) {
	c, err := r.cycles.RecoverDeadLetter(ctx, id)
	if err != nil {
		return domain.Cycle{}, err
	}

	r.logger.InfoContext(ctx, "dead letter recovered", slog.String("cycle_id", c.ID))
	r.auditLog(ctx, "cycle.recovered", map[string]any{"cycle_id": c.ID})
	if err := r.notifier.Notify(ctx, notify.EventRecovery,
		"Cycle recovered",
		fmt.Sprintf("cycle %s was manually re-enqueued for rebalancing.", c.ID),
	); err != nil {
		r.logger.WarnContext(ctx, "recovery alert failed", slog.String("error", err.Error()))
	}
	return c, nil
}

func (r *RetryManager) auditLog(ctx context.Context, event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
