package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// SettingsStore implements domain.SettingsStore as a small key/value table
// of numeric thresholds.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a SettingsStore backed by the given pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Get returns the value for a key, or ErrNotFound when unset.
func (s *SettingsStore) Get(ctx context.Context, key string) (float64, error) {
	var v float64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM settings WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: get setting %s: %w", key, err)
	}
	return v, nil
}

// Set upserts a setting value.
func (s *SettingsStore) Set(ctx context.Context, key string, value float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()`,
		key, domain.Finite(value),
	)
	if err != nil {
		return fmt.Errorf("postgres: set setting %s: %w", key, err)
	}
	return nil
}

// All returns every setting as a map.
func (s *SettingsStore) All(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.SettingsStore = (*SettingsStore)(nil)
