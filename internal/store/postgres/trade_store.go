package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Create inserts one executed leg. Legs are append-only; they go away only
// through the parent cycle's cascade delete.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.InvestmentKRW = domain.Finite(t.InvestmentKRW)
	t.NetProfitKRW = domain.Finite(t.NetProfitKRW)

	details, err := json.Marshal(t.Details)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: marshal trade details: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (id, cycle_id, trade_type, symbol, status,
			investment_krw, net_profit_krw, details, tx_id, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.CycleID, string(t.TradeType), t.Symbol, string(t.Status),
		t.InvestmentKRW, t.NetProfitKRW, details, t.TxID, t.ErrorMessage, t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: insert trade: %w", err)
	}
	return t, nil
}

// GetByID returns a single trade.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, cycle_id, trade_type, symbol, status, investment_krw,
			net_profit_krw, details, tx_id, error_message, created_at
		FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListByCycle returns all legs of a cycle in execution order.
func (s *TradeStore) ListByCycle(ctx context.Context, cycleID string) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cycle_id, trade_type, symbol, status, investment_krw,
			net_profit_krw, details, tx_id, error_message, created_at
		FROM trades WHERE cycle_id = $1 ORDER BY created_at ASC`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for cycle %s: %w", cycleID, err)
	}
	defer rows.Close()

	var list []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	var tradeType, status string
	var details []byte
	err := row.Scan(&t.ID, &t.CycleID, &tradeType, &t.Symbol, &status,
		&t.InvestmentKRW, &t.NetProfitKRW, &details, &t.TxID, &t.ErrorMessage,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.TradeType = domain.TradeType(tradeType)
	t.Status = domain.TradeStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return domain.Trade{}, fmt.Errorf("unmarshal trade details: %w", err)
		}
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
