package domain

import (
	"context"
	"time"
)

// CycleStore persists arbitrage cycles. All state-machine transitions go
// through this interface; the implementation is responsible for row-level
// locking and for sanitizing non-finite numeric fields on every write.
type CycleStore interface {
	// Create inserts a new cycle. The stored status is always STARTED
	// regardless of what the caller supplies; the processor moves it to
	// AWAITING_REBALANCE once the opening leg is recorded.
	Create(ctx context.Context, c Cycle) (Cycle, error)
	GetByID(ctx context.Context, id string) (Cycle, error)
	// GetWithTrades returns the cycle with its Trades slice populated.
	GetWithTrades(ctx context.Context, id string) (Cycle, error)
	// Update persists every mutable field of the cycle. Updating a cycle
	// already in a terminal state returns ErrCycleTerminal.
	Update(ctx context.Context, c Cycle) error

	// ClaimNext atomically reclaims stale REBALANCING_IN_PROGRESS rows whose
	// lease is older than lockTimeout, then selects and locks the oldest
	// AWAITING_REBALANCE cycle, flipping it to REBALANCING_IN_PROGRESS with
	// a fresh lease. It returns (nil, reclaimed, nil) when no cycle is
	// pending; contention is never an error.
	ClaimNext(ctx context.Context, lockTimeout time.Duration) (*Cycle, int64, error)

	// ResetDueRetries moves all AWAITING_RETRY cycles whose next_retry_at
	// has passed back to AWAITING_REBALANCE in one atomic statement and
	// returns the affected count.
	ResetDueRetries(ctx context.Context, now time.Time) (int64, error)

	ListDeadLetters(ctx context.Context) ([]Cycle, error)
	// RecoverDeadLetter resets retry bookkeeping on a DEAD_LETTER cycle and
	// re-enqueues it as AWAITING_REBALANCE. Manual, auditable operation.
	RecoverDeadLetter(ctx context.Context, id string) (Cycle, error)

	// ListTerminalBefore returns COMPLETED/DEAD_LETTER/FAILED cycles that
	// ended strictly before the cutoff, for cold-storage archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Cycle, error)
}

// TradeStore persists executed legs. Append-only in practice.
type TradeStore interface {
	Create(ctx context.Context, t Trade) (Trade, error)
	GetByID(ctx context.Context, id string) (Trade, error)
	ListByCycle(ctx context.Context, cycleID string) ([]Trade, error)
}

// SettingsStore persists runtime-tunable numeric thresholds by key.
type SettingsStore interface {
	Get(ctx context.Context, key string) (float64, error)
	Set(ctx context.Context, key string, value float64) error
	All(ctx context.Context) (map[string]float64, error)
}

// PortfolioStore is the append-only portfolio ledger. The engine appends
// snapshots and reads back only the latest total balance.
type PortfolioStore interface {
	Append(ctx context.Context, snap PortfolioSnapshot) error
	Latest(ctx context.Context) (PortfolioSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]PortfolioSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of operator-relevant events
// (stale-lock reclaims, dead-letter transitions, recoveries, archives).
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

// LockManager is an advisory cross-process lock for exclusion scopes that
// sit outside a database transaction. Backend failures must surface as
// "not acquired", never as a held lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
	IsLocked(ctx context.Context, key string) (bool, error)
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)
}
