package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

const cycleColumns = `id, status, symbol, start_time, end_time,
	initial_investment_krw, total_net_profit_krw, total_net_profit_percent,
	initial_trade_id, rebalance_trade_id, retry_count, failure_reason,
	last_retry_at, next_retry_at, locked_at`

// CycleStore implements domain.CycleStore using PostgreSQL. All multi-step
// transitions (claim, reclaim, retry sweep) run as single statements or
// single transactions holding the row lock for their full span.
type CycleStore struct {
	pool   *pgxpool.Pool
	trades *TradeStore
	logger *slog.Logger
}

// NewCycleStore creates a CycleStore backed by the given connection pool.
func NewCycleStore(pool *pgxpool.Pool, trades *TradeStore, logger *slog.Logger) *CycleStore {
	return &CycleStore{
		pool:   pool,
		trades: trades,
		logger: logger.With(slog.String("component", "cycle_store")),
	}
}

// Create inserts a new cycle. The stored status is always STARTED no matter
// what the caller supplies; callers that want AWAITING_REBALANCE flip it via
// Update after recording the opening leg.
func (s *CycleStore) Create(ctx context.Context, c domain.Cycle) (domain.Cycle, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().UTC()
	}
	c.Status = domain.CycleStarted
	c.InitialInvestmentKRW = domain.Finite(c.InitialInvestmentKRW)
	c.TotalNetProfitKRW = domain.Finite(c.TotalNetProfitKRW)
	c.TotalNetProfitPercent = domain.Finite(c.TotalNetProfitPercent)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycles (id, status, symbol, start_time,
			initial_investment_krw, total_net_profit_krw, total_net_profit_percent,
			initial_trade_id, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, string(c.Status), c.Symbol, c.StartTime,
		c.InitialInvestmentKRW, c.TotalNetProfitKRW, c.TotalNetProfitPercent,
		c.InitialTradeID, c.RetryCount,
	)
	if err != nil {
		return domain.Cycle{}, fmt.Errorf("postgres: insert cycle: %w", err)
	}
	return c, nil
}

// GetByID returns a single cycle without its trades.
func (s *CycleStore) GetByID(ctx context.Context, id string) (domain.Cycle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE id = $1`, id)
	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cycle{}, domain.ErrNotFound
		}
		return domain.Cycle{}, fmt.Errorf("postgres: get cycle %s: %w", id, err)
	}
	return c, nil
}

// GetWithTrades returns a cycle with its Trades slice populated.
func (s *CycleStore) GetWithTrades(ctx context.Context, id string) (domain.Cycle, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Cycle{}, err
	}
	trades, err := s.trades.ListByCycle(ctx, id)
	if err != nil {
		return domain.Cycle{}, err
	}
	c.Trades = trades
	return c, nil
}

// Update persists every mutable field. Non-finite KRW/percent values are
// sanitized to zero before the write. A cycle whose stored status is already
// terminal is never modified; that is a hard fault, not a business outcome.
func (s *CycleStore) Update(ctx context.Context, c domain.Cycle) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE cycles SET
			status = $2, symbol = $3, end_time = $4,
			initial_investment_krw = $5, total_net_profit_krw = $6,
			total_net_profit_percent = $7, initial_trade_id = $8,
			rebalance_trade_id = $9, retry_count = $10, failure_reason = $11,
			last_retry_at = $12, next_retry_at = $13, locked_at = $14
		WHERE id = $1
		  AND status NOT IN ('COMPLETED', 'DEAD_LETTER', 'FAILED')`,
		c.ID, string(c.Status), c.Symbol, c.EndTime,
		domain.Finite(c.InitialInvestmentKRW), domain.Finite(c.TotalNetProfitKRW),
		domain.Finite(c.TotalNetProfitPercent), c.InitialTradeID,
		c.RebalanceTradeID, c.RetryCount, c.FailureReason,
		c.LastRetryAt, c.NextRetryAt, c.LockedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update cycle %s: %w", c.ID, err)
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a missing row from a terminal one.
		if _, getErr := s.GetByID(ctx, c.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("postgres: update cycle %s: %w", c.ID, domain.ErrCycleTerminal)
	}
	return nil
}

// ClaimNext implements the claim protocol: inside one transaction it first
// reclaims stale leases, then takes a pessimistic write lock on the oldest
// AWAITING_REBALANCE row and flips it to REBALANCING_IN_PROGRESS. A second
// worker's SELECT ... FOR UPDATE cannot observe the row until this
// transaction commits the status change, which is what gives exclusivity.
func (s *CycleStore) ClaimNext(ctx context.Context, lockTimeout time.Duration) (*domain.Cycle, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	cutoff := now.Add(-lockTimeout)

	// Stale-lock reclaim must happen before selection, in the same
	// transaction, so a worker never selects a row another live worker
	// still legitimately holds.
	ct, err := tx.Exec(ctx, `
		UPDATE cycles SET status = 'AWAITING_REBALANCE', locked_at = NULL
		WHERE status = 'REBALANCING_IN_PROGRESS' AND locked_at < $1`,
		cutoff,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: reclaim stale locks: %w", err)
	}
	reclaimed := ct.RowsAffected()
	if reclaimed > 0 {
		s.logger.WarnContext(ctx, "reclaimed stale cycle locks",
			slog.Int64("count", reclaimed),
			slog.Duration("lock_timeout", lockTimeout),
		)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+cycleColumns+` FROM cycles
		WHERE status = 'AWAITING_REBALANCE'
		ORDER BY start_time ASC
		LIMIT 1
		FOR UPDATE`)
	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Nothing pending. Still commit so the reclaim sticks.
			if err := tx.Commit(ctx); err != nil {
				return nil, 0, fmt.Errorf("postgres: commit reclaim: %w", err)
			}
			return nil, reclaimed, nil
		}
		return nil, 0, fmt.Errorf("postgres: select claimable cycle: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE cycles SET status = 'REBALANCING_IN_PROGRESS', locked_at = $2
		WHERE id = $1`,
		c.ID, now,
	); err != nil {
		return nil, 0, fmt.Errorf("postgres: lock cycle %s: %w", c.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("postgres: commit claim: %w", err)
	}

	c.Status = domain.CycleRebInProgress
	c.LockedAt = &now
	return &c, reclaimed, nil
}

// ResetDueRetries moves every AWAITING_RETRY cycle whose backoff has elapsed
// back to AWAITING_REBALANCE in a single atomic statement.
func (s *CycleStore) ResetDueRetries(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE cycles SET status = 'AWAITING_REBALANCE',
			next_retry_at = NULL, locked_at = NULL
		WHERE status = 'AWAITING_RETRY' AND next_retry_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: reset due retries: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListDeadLetters returns all cycles parked in DEAD_LETTER, oldest first.
func (s *CycleStore) ListDeadLetters(ctx context.Context) ([]domain.Cycle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cycleColumns+` FROM cycles
		WHERE status = 'DEAD_LETTER'
		ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list dead letters: %w", err)
	}
	defer rows.Close()
	return collectCycles(rows)
}

// RecoverDeadLetter resets retry bookkeeping on a DEAD_LETTER cycle and
// re-enqueues it as AWAITING_REBALANCE. Returns ErrNotFound if the id does
// not reference a dead-lettered cycle.
func (s *CycleStore) RecoverDeadLetter(ctx context.Context, id string) (domain.Cycle, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE cycles SET status = 'AWAITING_REBALANCE',
			retry_count = 0, failure_reason = NULL, end_time = NULL,
			last_retry_at = NULL, next_retry_at = NULL, locked_at = NULL
		WHERE id = $1 AND status = 'DEAD_LETTER'
		RETURNING `+cycleColumns,
		id,
	)
	c, err := scanCycle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Cycle{}, domain.ErrNotFound
		}
		return domain.Cycle{}, fmt.Errorf("postgres: recover dead letter %s: %w", id, err)
	}
	return c, nil
}

// ListTerminalBefore returns terminal cycles that ended strictly before the
// cutoff, for archival.
func (s *CycleStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Cycle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+cycleColumns+` FROM cycles
		WHERE status IN ('COMPLETED', 'DEAD_LETTER', 'FAILED')
		  AND end_time IS NOT NULL AND end_time < $1
		ORDER BY end_time ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal cycles: %w", err)
	}
	defer rows.Close()
	return collectCycles(rows)
}

func scanCycle(row pgx.Row) (domain.Cycle, error) {
	var c domain.Cycle
	var status string
	err := row.Scan(&c.ID, &status, &c.Symbol, &c.StartTime, &c.EndTime,
		&c.InitialInvestmentKRW, &c.TotalNetProfitKRW, &c.TotalNetProfitPercent,
		&c.InitialTradeID, &c.RebalanceTradeID, &c.RetryCount, &c.FailureReason,
		&c.LastRetryAt, &c.NextRetryAt, &c.LockedAt,
	)
	if err != nil {
		return domain.Cycle{}, err
	}
	c.Status = domain.CycleStatus(status)
	return c, nil
}

func collectCycles(rows pgx.Rows) ([]domain.Cycle, error) {
	var list []domain.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan cycle: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.CycleStore = (*CycleStore)(nil)
