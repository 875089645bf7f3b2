package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/engine"
	"github.com/yunseo-park/kimpbot/internal/exchange/sim"
	"github.com/yunseo-park/kimpbot/internal/finmath"
	"github.com/yunseo-park/kimpbot/internal/strategy"
)

// buildEngine assembles the processor, retry manager, and dead-letter
// inspector on top of the wired dependencies and the given venue pair.
func (a *App) buildEngine(deps *Dependencies, upbit, binance domain.Exchange) (*engine.Processor, *engine.RetryManager, *engine.DeadLetterInspector) {
	logger := slog.Default()

	retry := engine.NewRetryManager(
		deps.CycleStore,
		deps.AuditStore,
		deps.Notifier,
		a.cfg.Engine.MaxRetries,
		a.cfg.Engine.RetryBaseDelay.Duration,
		logger,
	)

	addrs := strategy.Addresses{
		UpbitDeposit:   a.cfg.Trading.UpbitDepositAddr,
		BinanceDeposit: a.cfg.Trading.BinanceDepositAddr,
	}
	strategies := []domain.ExecutionStrategy{
		strategy.NewHighPremium(upbit, binance, addrs, logger),
		strategy.NewLowPremium(upbit, binance, addrs, logger),
	}

	processor := engine.NewProcessor(
		deps.CycleStore,
		deps.TradeStore,
		deps.PortfolioStore,
		finmath.NewEvaluator(deps.Settings, logger),
		strategies,
		upbit, binance,
		retry,
		logger,
	)

	inspector := engine.NewDeadLetterInspector(deps.CycleStore, deps.AuditStore, deps.Notifier, logger)
	return processor, retry, inspector
}

// venues builds the simulated venue pair. Live venue connectors are not
// part of this service; the simulation exchange stands in behind the same
// capability contract.
func (a *App) venues() (upbit, binance *sim.Exchange) {
	symbol := a.cfg.Trading.Symbol
	upbit = sim.New("upbit", map[string]float64{
		"krw":  a.cfg.Trading.InvestmentKRW * 10,
		symbol: 1_000_000,
	})
	binance = sim.New("binance", map[string]float64{
		"usdt": 1_000_000,
	})
	return upbit, binance
}

// seedMarket injects a static market snapshot into both venues: the asset
// trades rich on Upbit so the evaluator sees a HIGH_PREMIUM opportunity.
func (a *App) seedMarket(upbit, binance *sim.Exchange) {
	symbol := a.cfg.Trading.Symbol
	now := time.Now().UTC()

	upbit.SetTicker(symbol, 715, 10_000_000)
	upbit.SetTicker("usdt", 1400, 50_000_000)
	upbit.SetOrderBook(symbol, domain.OrderBook{
		Symbol:    symbol,
		Asks:      []domain.BookLevel{{Price: 716, Amount: 500_000}},
		Bids:      []domain.BookLevel{{Price: 715, Amount: 500_000}},
		Timestamp: now,
	})

	binance.SetTicker(symbol, 0.5, 40_000_000)
	binance.SetOrderBook(symbol, domain.OrderBook{
		Symbol:    symbol,
		Asks:      []domain.BookLevel{{Price: 0.5, Amount: 500_000}},
		Bids:      []domain.BookLevel{{Price: 0.4995, Amount: 500_000}},
		Timestamp: now,
	})
}

// WorkerMode runs the full periodic engine: claim/process, retry sweep,
// dead-letter inspection, and optional archival. It blocks until the
// context is cancelled.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	upbit, binance := a.venues()
	a.seedMarket(upbit, binance)

	processor, retry, inspector := a.buildEngine(deps, upbit, binance)

	scheduler := engine.NewScheduler(
		a.cfg.Engine.WorkerID,
		processor,
		retry,
		inspector,
		deps.AuditStore,
		deps.Archiver,
		deps.Locks,
		engine.Intervals{
			Claim:       a.cfg.Engine.ClaimInterval.Duration,
			RetrySweep:  a.cfg.Engine.RetrySweepInterval.Duration,
			DeadLetter:  a.cfg.Engine.DeadLetterInterval.Duration,
			Archive:     a.cfg.Engine.ArchiveInterval.Duration,
			LockTimeout: a.cfg.Engine.LockTimeout.Duration,
		},
		a.cfg.Engine.ArchiveRetention.Duration,
		slog.Default(),
	)

	return scheduler.Run(ctx)
}

// SimMode drives one cycle end to end against the simulation exchanges:
// open the cycle, claim it, execute the rebalance, and report the outcome.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	upbit, binance := a.venues()
	a.seedMarket(upbit, binance)

	processor, _, _ := a.buildEngine(deps, upbit, binance)

	symbol := a.cfg.Trading.Symbol
	opened, err := processor.OpenCycle(ctx, symbol, a.cfg.Trading.InvestmentKRW, domain.Trade{
		TradeType: domain.TradeHighPremiumBuy,
		Status:    domain.TradeCompleted,
		Details: domain.TradeDetails{
			Direction: string(domain.DirectionHighPremium),
		},
		InvestmentKRW: a.cfg.Trading.InvestmentKRW,
	})
	if err != nil {
		return fmt.Errorf("app: sim open cycle: %w", err)
	}

	claimed, _, err := deps.CycleStore.ClaimNext(ctx, a.cfg.Engine.LockTimeout.Duration)
	if err != nil {
		return fmt.Errorf("app: sim claim: %w", err)
	}
	if claimed == nil {
		return fmt.Errorf("app: sim claim returned no cycle (opened %s)", opened.ID)
	}

	if err := processor.ProcessClaimed(ctx, claimed); err != nil {
		return fmt.Errorf("app: sim process: %w", err)
	}

	final, err := deps.CycleStore.GetWithTrades(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("app: sim reload: %w", err)
	}

	a.logger.InfoContext(ctx, "simulation finished",
		slog.String("cycle_id", final.ID),
		slog.String("status", string(final.Status)),
		slog.Float64("net_profit_krw", final.TotalNetProfitKRW),
		slog.Float64("net_profit_pct", final.TotalNetProfitPercent),
		slog.Int("trades", len(final.Trades)),
	)
	return nil
}

// RecoverMode lists the dead-letter queue and, when a cycle id is
// configured, resurrects that cycle back into the retry flow.
func (a *App) RecoverMode(ctx context.Context, deps *Dependencies) error {
	upbit, binance := a.venues()
	_, retry, inspector := a.buildEngine(deps, upbit, binance)

	count, err := inspector.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("app: inspect dead letters: %w", err)
	}
	a.logger.InfoContext(ctx, "dead-letter queue inspected", slog.Int("count", count))

	if a.cfg.RecoverCycleID == "" {
		return nil
	}

	c, err := retry.RecoverDeadLetter(ctx, a.cfg.RecoverCycleID)
	if err != nil {
		return fmt.Errorf("app: recover cycle %s: %w", a.cfg.RecoverCycleID, err)
	}
	a.logger.InfoContext(ctx, "dead-letter cycle recovered",
		slog.String("cycle_id", c.ID),
		slog.String("status", string(c.Status)),
	)
	return nil
}
