package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticSettings is a SettingsProvider with fixed values for tests.
type staticSettings map[string]float64

func (s staticSettings) Float(_ context.Context, key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// memTrades is an in-memory TradeStore.
type memTrades struct {
	mu     sync.Mutex
	seq    int
	trades map[string]domain.Trade
}

func newMemTrades() *memTrades {
	return &memTrades{trades: make(map[string]domain.Trade)}
}

func (m *memTrades) Create(_ context.Context, t domain.Trade) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = fmt.Sprintf("trade-%d", m.seq)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.trades[t.ID] = t
	return t, nil
}

func (m *memTrades) GetByID(_ context.Context, id string) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return domain.Trade{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTrades) ListByCycle(_ context.Context, cycleID string) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trade
	for _, t := range m.trades {
		if t.CycleID == cycleID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memCycles is an in-memory CycleStore honoring the claim contract: stale
// lease reclaim, oldest-first claiming, terminal-state write protection.
type memCycles struct {
	mu     sync.Mutex
	seq    int
	cycles map[string]domain.Cycle
	trades *memTrades
}

func newMemCycles(trades *memTrades) *memCycles {
	return &memCycles{cycles: make(map[string]domain.Cycle), trades: trades}
}

func (m *memCycles) put(c domain.Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.ID] = c
}

func (m *memCycles) get(id string) domain.Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles[id]
}

func (m *memCycles) Create(_ context.Context, c domain.Cycle) (domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if c.ID == "" {
		c.ID = fmt.Sprintf("cycle-%d", m.seq)
	}
	if c.StartTime.IsZero() {
		c.StartTime = time.Now().UTC()
	}
	c.Status = domain.CycleStarted
	m.cycles[c.ID] = c
	return c, nil
}

func (m *memCycles) GetByID(_ context.Context, id string) (domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return domain.Cycle{}, domain.ErrNotFound
	}
	return c, nil
}

func (m *memCycles) GetWithTrades(ctx context.Context, id string) (domain.Cycle, error) {
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return domain.Cycle{}, err
	}
	c.Trades, err = m.trades.ListByCycle(ctx, id)
	if err != nil {
		return domain.Cycle{}, err
	}
	return c, nil
}

func (m *memCycles) Update(_ context.Context, c domain.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.cycles[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status.Terminal() {
		return domain.ErrCycleTerminal
	}
	c.Trades = nil
	m.cycles[c.ID] = c
	return nil
}

func (m *memCycles) ClaimNext(_ context.Context, lockTimeout time.Duration) (*domain.Cycle, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-lockTimeout)

	var reclaimed int64
	for id, c := range m.cycles {
		if c.Status == domain.CycleRebInProgress && c.LockedAt != nil && c.LockedAt.Before(cutoff) {
			c.Status = domain.CycleAwaitingReb
			c.LockedAt = nil
			m.cycles[id] = c
			reclaimed++
		}
	}

	var oldest *domain.Cycle
	for id := range m.cycles {
		c := m.cycles[id]
		if c.Status != domain.CycleAwaitingReb {
			continue
		}
		if oldest == nil || c.StartTime.Before(oldest.StartTime) {
			oldest = &c
		}
	}
	if oldest == nil {
		return nil, reclaimed, nil
	}

	oldest.Status = domain.CycleRebInProgress
	oldest.LockedAt = &now
	m.cycles[oldest.ID] = *oldest
	claimed := *oldest
	return &claimed, reclaimed, nil
}

func (m *memCycles) ResetDueRetries(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.cycles {
		if c.Status == domain.CycleAwaitingRetry && c.NextRetryAt != nil && !c.NextRetryAt.After(now) {
			c.Status = domain.CycleAwaitingReb
			c.NextRetryAt = nil
			c.LockedAt = nil
			m.cycles[id] = c
			n++
		}
	}
	return n, nil
}

func (m *memCycles) ListDeadLetters(_ context.Context) ([]domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Cycle
	for _, c := range m.cycles {
		if c.Status == domain.CycleDeadLetter {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memCycles) RecoverDeadLetter(_ context.Context, id string) (domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok || c.Status != domain.CycleDeadLetter {
		return domain.Cycle{}, domain.ErrNotFound
	}
	c.Status = domain.CycleAwaitingReb
	c.RetryCount = 0
	c.FailureReason = nil
	c.EndTime = nil
	c.LastRetryAt = nil
	c.NextRetryAt = nil
	c.LockedAt = nil
	m.cycles[id] = c
	return c, nil
}

func (m *memCycles) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Cycle
	for _, c := range m.cycles {
		if c.Status.Terminal() && c.EndTime != nil && c.EndTime.Before(before) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(*out[j].EndTime) })
	return out, nil
}

// memPortfolio is an in-memory append-only portfolio ledger.
type memPortfolio struct {
	mu    sync.Mutex
	snaps []domain.PortfolioSnapshot
}

func (m *memPortfolio) Append(_ context.Context, snap domain.PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.ID = int64(len(m.snaps) + 1)
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memPortfolio) Latest(_ context.Context) (domain.PortfolioSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return domain.PortfolioSnapshot{}, domain.ErrNotFound
	}
	return m.snaps[len(m.snaps)-1], nil
}

func (m *memPortfolio) ListBefore(_ context.Context, before time.Time) ([]domain.PortfolioSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PortfolioSnapshot
	for _, s := range m.snaps {
		if s.RecordedAt.Before(before) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memPortfolio) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

// memAudit records audit entries in memory.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, limit int) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

// captureSender records every notification it receives.
type captureSender struct {
	mu     sync.Mutex
	titles []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.titles))
	copy(out, c.titles)
	return out
}

func newCaptureNotifier() (*notify.Notifier, *captureSender) {
	sender := &captureSender{}
	return notify.NewNotifier([]notify.Sender{sender}, nil, discardLogger()), sender
}

// Compile-time interface checks for the fakes.
var (
	_ domain.CycleStore     = (*memCycles)(nil)
	_ domain.TradeStore     = (*memTrades)(nil)
	_ domain.PortfolioStore = (*memPortfolio)(nil)
	_ domain.AuditStore     = (*memAudit)(nil)
)
