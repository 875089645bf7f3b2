package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// PortfolioStore implements the append-only portfolio ledger.
type PortfolioStore struct {
	pool *pgxpool.Pool
}

// NewPortfolioStore creates a PortfolioStore backed by the given pool.
func NewPortfolioStore(pool *pgxpool.Pool) *PortfolioStore {
	return &PortfolioStore{pool: pool}
}

// Append records one snapshot. KRW/percent fields are sanitized on write.
func (s *PortfolioStore) Append(ctx context.Context, snap domain.PortfolioSnapshot) error {
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	balances, err := json.Marshal(snap.Balances)
	if err != nil {
		return fmt.Errorf("postgres: marshal balances: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO portfolio_log (recorded_at, total_balance_krw,
			cycle_pnl_krw, cycle_pnl_percent, cycle_id, balances)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.RecordedAt, domain.Finite(snap.TotalBalanceKRW),
		domain.Finite(snap.CyclePnLKRW), domain.Finite(snap.CyclePnLPercent),
		snap.CycleID, balances,
	)
	if err != nil {
		return fmt.Errorf("postgres: append portfolio snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or ErrNotFound when the ledger is
// empty.
func (s *PortfolioStore) Latest(ctx context.Context) (domain.PortfolioSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, recorded_at, total_balance_krw, cycle_pnl_krw,
			cycle_pnl_percent, cycle_id, balances
		FROM portfolio_log ORDER BY recorded_at DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PortfolioSnapshot{}, domain.ErrNotFound
		}
		return domain.PortfolioSnapshot{}, fmt.Errorf("postgres: latest portfolio snapshot: %w", err)
	}
	return snap, nil
}

// ListBefore returns snapshots recorded strictly before the cutoff.
func (s *PortfolioStore) ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recorded_at, total_balance_krw, cycle_pnl_krw,
			cycle_pnl_percent, cycle_id, balances
		FROM portfolio_log WHERE recorded_at < $1 ORDER BY recorded_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list portfolio snapshots: %w", err)
	}
	defer rows.Close()

	var list []domain.PortfolioSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan portfolio snapshot: %w", err)
		}
		list = append(list, snap)
	}
	return list, rows.Err()
}

func scanSnapshot(row pgx.Row) (domain.PortfolioSnapshot, error) {
	var snap domain.PortfolioSnapshot
	var balances []byte
	err := row.Scan(&snap.ID, &snap.RecordedAt, &snap.TotalBalanceKRW,
		&snap.CyclePnLKRW, &snap.CyclePnLPercent, &snap.CycleID, &balances,
	)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	if len(balances) > 0 {
		if err := json.Unmarshal(balances, &snap.Balances); err != nil {
			return domain.PortfolioSnapshot{}, fmt.Errorf("unmarshal balances: %w", err)
		}
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.PortfolioStore = (*PortfolioStore)(nil)
