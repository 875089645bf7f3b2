package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/exchange/sim"
	"github.com/yunseo-park/kimpbot/internal/finmath"
	"github.com/yunseo-park/kimpbot/internal/strategy"
)

type fixture struct {
	cycles    *memCycles
	trades    *memTrades
	portfolio *memPortfolio
	audit     *memAudit
	sender    *captureSender
	upbit     *sim.Exchange
	binance   *sim.Exchange
	processor *Processor
	retry     *RetryManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := discardLogger()

	trades := newMemTrades()
	cycles := newMemCycles(trades)
	portfolio := &memPortfolio{}
	audit := &memAudit{}
	notifier, sender := newCaptureNotifier()

	upbit := sim.New("upbit", map[string]float64{"krw": 10_000_000, "xrp": 1_000_000})
	binance := sim.New("binance", map[string]float64{"usdt": 1_000_000})

	retry := NewRetryManager(cycles, audit, notifier, 5, 10*time.Minute, logger)

	addrs := strategy.Addresses{UpbitDeposit: "up-addr", BinanceDeposit: "bn-addr"}
	strategies := []domain.ExecutionStrategy{
		strategy.NewHighPremium(upbit, binance, addrs, logger),
		strategy.NewLowPremium(upbit, binance, addrs, logger),
	}

	processor := NewProcessor(
		cycles, trades, portfolio,
		finmath.NewEvaluator(staticSettings{}, logger),
		strategies,
		upbit, binance,
		retry,
		logger,
	)

	return &fixture{
		cycles:    cycles,
		trades:    trades,
		portfolio: portfolio,
		audit:     audit,
		sender:    sender,
		upbit:     upbit,
		binance:   binance,
		processor: processor,
		retry:     retry,
	}
}

// seedRichUpbit prices XRP about 2.1% richer on Upbit than on Binance,
// comfortably above the default 0.5% spread gate.
func (f *fixture) seedRichUpbit() {
	now := time.Now().UTC()
	f.upbit.SetTicker("xrp", 715, 10_000_000)
	f.upbit.SetTicker("usdt", 1400, 50_000_000)
	f.upbit.SetOrderBook("xrp", domain.OrderBook{
		Asks:      []domain.BookLevel{{Price: 716, Amount: 500_000}},
		Bids:      []domain.BookLevel{{Price: 715, Amount: 500_000}},
		Timestamp: now,
	})
	f.binance.SetTicker("xrp", 0.5, 40_000_000)
	f.binance.SetOrderBook("xrp", domain.OrderBook{
		Asks:      []domain.BookLevel{{Price: 0.5, Amount: 500_000}},
		Bids:      []domain.BookLevel{{Price: 0.4995, Amount: 500_000}},
		Timestamp: now,
	})
}

func (f *fixture) openAndClaim(t *testing.T) *domain.Cycle {
	t.Helper()
	ctx := context.Background()

	_, err := f.processor.OpenCycle(ctx, "xrp", 1_000_000, domain.Trade{
		TradeType: domain.TradeHighPremiumBuy,
		Status:    domain.TradeCompleted,
	})
	require.NoError(t, err)

	claimed, _, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

func TestOpenCycleRecordsOpeningLeg(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.processor.OpenCycle(ctx, "xrp", 1_000_000, domain.Trade{
		TradeType: domain.TradeHighPremiumBuy,
	})
	require.NoError(t, err)

	stored := f.cycles.get(c.ID)
	assert.Equal(t, domain.CycleAwaitingReb, stored.Status)
	require.NotNil(t, stored.InitialTradeID)

	legs, err := f.trades.ListByCycle(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, domain.TradeHighPremiumBuy, legs[0].TradeType)
	assert.Equal(t, "xrp", legs[0].Symbol)
	assert.Equal(t, domain.TradeCompleted, legs[0].Status)
}

func TestProcessClaimedCompletesCycle(t *testing.T) {
	f := newFixture(t)
	f.seedRichUpbit()
	claimed := f.openAndClaim(t)

	require.NoError(t, f.processor.ProcessClaimed(context.Background(), claimed))

	final := f.cycles.get(claimed.ID)
	assert.Equal(t, domain.CycleCompleted, final.Status)
	require.NotNil(t, final.RebalanceTradeID)
	require.NotNil(t, final.EndTime)
	assert.Nil(t, final.LockedAt)
	assert.Greater(t, final.TotalNetProfitKRW, 0.0)
	assert.Greater(t, final.TotalNetProfitPercent, 0.0)

	legs, err := f.trades.ListByCycle(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Len(t, legs, 2)

	// Exactly one ledger append per completed cycle.
	assert.Equal(t, 1, f.portfolio.count())
}

func TestProcessClaimedNoOpportunityLeavesCycleInPlace(t *testing.T) {
	f := newFixture(t)
	f.seedRichUpbit()
	// Shrink the premium to ~0.1%, below the 0.5% gate.
	f.upbit.SetTicker("xrp", 700.7, 10_000_000)
	claimed := f.openAndClaim(t)

	require.NoError(t, f.processor.ProcessClaimed(context.Background(), claimed))

	final := f.cycles.get(claimed.ID)
	assert.Equal(t, domain.CycleRebInProgress, final.Status)
	assert.Zero(t, final.RetryCount)
	assert.Equal(t, 0, f.portfolio.count())

	legs, err := f.trades.ListByCycle(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Len(t, legs, 1)
}

func TestProcessClaimedExecutionFailureSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	f.seedRichUpbit()
	claimed := f.openAndClaim(t)

	f.binance.FailNext = errors.New("venue unavailable")

	require.NoError(t, f.processor.ProcessClaimed(context.Background(), claimed))

	final := f.cycles.get(claimed.ID)
	assert.Equal(t, domain.CycleAwaitingRetry, final.Status)
	assert.Equal(t, 1, final.RetryCount)
	require.NotNil(t, final.FailureReason)
	assert.Contains(t, *final.FailureReason, "venue unavailable")
	require.NotNil(t, final.NextRetryAt)
	assert.Nil(t, final.LockedAt)
	assert.Equal(t, 0, f.portfolio.count())
}

func TestProcessClaimedUnexpectedStatusParksFailed(t *testing.T) {
	f := newFixture(t)
	f.seedRichUpbit()
	claimed := f.openAndClaim(t)

	// Simulate an out-of-band mutation between claim and processing.
	mutated := f.cycles.get(claimed.ID)
	mutated.Status = domain.CycleStarted
	f.cycles.put(mutated)

	require.NoError(t, f.processor.ProcessClaimed(context.Background(), claimed))

	final := f.cycles.get(claimed.ID)
	assert.Equal(t, domain.CycleFailed, final.Status)
	require.NotNil(t, final.FailureReason)
	assert.Contains(t, *final.FailureReason, "unexpected status")
	require.NotNil(t, final.EndTime)
	assert.Nil(t, final.LockedAt)
}

func TestClaimNextReclaimsStaleLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	f.cycles.put(domain.Cycle{
		ID:        "stuck",
		Status:    domain.CycleRebInProgress,
		Symbol:    "xrp",
		StartTime: stale,
		LockedAt:  &stale,
	})

	claimed, reclaimed, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reclaimed)
	require.NotNil(t, claimed)
	assert.Equal(t, "stuck", claimed.ID)
	assert.Equal(t, domain.CycleRebInProgress, claimed.Status)
	require.NotNil(t, claimed.LockedAt)
	assert.WithinDuration(t, time.Now().UTC(), *claimed.LockedAt, time.Minute)
}

func TestClaimNextPrefersOldestCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	f.cycles.put(domain.Cycle{ID: "newer", Status: domain.CycleAwaitingReb, StartTime: now})
	f.cycles.put(domain.Cycle{ID: "older", Status: domain.CycleAwaitingReb, StartTime: now.Add(-time.Hour)})

	claimed, _, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "older", claimed.ID)

	// The second claim picks the remaining cycle; the third finds nothing.
	second, _, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "newer", second.ID)

	third, _, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestClaimNextConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cycles.put(domain.Cycle{
		ID:        "contested",
		Status:    domain.CycleAwaitingReb,
		Symbol:    "xrp",
		StartTime: time.Now().UTC(),
	})

	const workers = 16
	results := make(chan *domain.Cycle, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := f.cycles.ClaimNext(ctx, 10*time.Minute)
			assert.NoError(t, err)
			results <- claimed
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one worker may win the single pending cycle; everyone else
	// must see an empty queue, never an error and never a duplicate claim.
	var winners int
	for claimed := range results {
		if claimed != nil {
			winners++
			assert.Equal(t, "contested", claimed.ID)
			assert.Equal(t, domain.CycleRebInProgress, claimed.Status)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, domain.CycleRebInProgress, f.cycles.get("contested").Status)
}
