package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// Intervals configures the periodic passes. Zero values fall back to the
// defaults below.
type Intervals struct {
	Claim      time.Duration // claim + process pass
	RetrySweep time.Duration
	DeadLetter time.Duration
	Archive    time.Duration // 0 disables archival
	// LockTimeout is the stale-lease cutoff for claimed cycles. It must
	// exceed the worst-case processing latency; the stale reclaim is the
	// system's only crash recovery.
	LockTimeout time.Duration
}

func (iv *Intervals) applyDefaults() {
	if iv.Claim <= 0 {
		iv.Claim = 10 * time.Second
	}
	if iv.RetrySweep <= 0 {
		iv.RetrySweep = time.Minute
	}
	if iv.DeadLetter <= 0 {
		iv.DeadLetter = time.Hour
	}
	if iv.LockTimeout <= 0 {
		iv.LockTimeout = 10 * time.Minute
	}
}

// Scheduler runs the engine's periodic loops: cycle claiming, retry sweeps,
// dead-letter inspection, and optional archival. Several worker processes
// may run schedulers concurrently; exclusivity comes from the store's claim
// transaction, with the distributed mutex guarding only the execution span
// outside it.
type Scheduler struct {
	workerID  string
	processor *Processor
	retry     *RetryManager
	inspector *DeadLetterInspector
	audit     domain.AuditStore
	archiver  domain.Archiver
	locks     domain.LockManager
	intervals Intervals
	retention time.Duration
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler. audit, archiver, and locks may be nil;
// the corresponding behavior is skipped.
func NewScheduler(
	workerID string,
	processor *Processor,
	retry *RetryManager,
	inspector *DeadLetterInspector,
	audit domain.AuditStore,
	archiver domain.Archiver,
	locks domain.LockManager,
	intervals Intervals,
	retention time.Duration,
	logger *slog.Logger,
) *Scheduler {
	intervals.applyDefaults()
	return &Scheduler{
		workerID:  workerID,
		processor: processor,
		retry:     retry,
		inspector: inspector,
		audit:     audit,
		archiver:  archiver,
		locks:     locks,
		intervals: intervals,
		retention: retention,
		logger: logger.With(
			slog.String("component", "scheduler"),
			slog.String("worker_id", workerID),
		),
	}
}

// Run starts all loops and blocks until the context is cancelled or a loop
// fails with a non-context error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler starting",
		slog.Duration("claim_interval", s.intervals.Claim),
		slog.Duration("retry_sweep_interval", s.intervals.RetrySweep),
		slog.Duration("lock_timeout", s.intervals.LockTimeout),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.loop(ctx, s.intervals.Claim, s.claimPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("claim loop: %w", err)
	})
	g.Go(func() error {
		err := s.loop(ctx, s.intervals.RetrySweep, s.retryPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("retry sweep loop: %w", err)
	})
	g.Go(func() error {
		err := s.loop(ctx, s.intervals.DeadLetter, s.deadLetterPass)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dead-letter loop: %w", err)
	})
	if s.archiver != nil && s.intervals.Archive > 0 {
		g.Go(func() error {
			err := s.loop(ctx, s.intervals.Archive, s.archivePass)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archive loop: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.InfoContext(ctx, "scheduler stopped cleanly")
	return nil
}

// loop runs fn immediately, then on every tick. A failed pass is logged and
// the loop keeps going; only context cancellation stops it.
func (s *Scheduler) loop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		s.logger.ErrorContext(ctx, "pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.ErrorContext(ctx, "pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// claimPass claims at most one cycle and processes it. "Nothing claimed" is
// the normal idle outcome, never an error.
func (s *Scheduler) claimPass(ctx context.Context) error {
	cycle, reclaimed, err := s.processor.cycles.ClaimNext(ctx, s.intervals.LockTimeout)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		s.logger.InfoContext(ctx, "stale leases reclaimed", slog.Int64("count", reclaimed))
		// Audited here, after the claim transaction committed; the audit
		// write must never hold up or roll back the claim itself.
		if s.audit != nil {
			if err := s.audit.Log(ctx, "cycle.lease_reclaimed", map[string]any{
				"count":     reclaimed,
				"worker_id": s.workerID,
			}); err != nil {
				s.logger.WarnContext(ctx, "audit log write failed",
					slog.String("event", "cycle.lease_reclaimed"),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if cycle == nil {
		return nil
	}

	// The claim transaction already guarantees exclusivity on the row; the
	// advisory lock additionally fences the venue-side execution span,
	// which cannot run inside the database transaction.
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "rebalance:"+cycle.ID, s.intervals.LockTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.DebugContext(ctx, "execution lock held elsewhere",
					slog.String("cycle_id", cycle.ID))
				return nil
			}
			return err
		}
		defer unlock()
	}

	return s.processor.ProcessClaimed(ctx, cycle)
}

func (s *Scheduler) retryPass(ctx context.Context) error {
	_, err := s.retry.SweepDueRetries(ctx)
	return err
}

func (s *Scheduler) deadLetterPass(ctx context.Context) error {
	_, err := s.inspector.Inspect(ctx)
	return err
}

func (s *Scheduler) archivePass(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)
	if _, err := s.archiver.ArchiveCycles(ctx, cutoff); err != nil {
		return err
	}
	_, err := s.archiver.ArchivePortfolio(ctx, cutoff)
	return err
}
