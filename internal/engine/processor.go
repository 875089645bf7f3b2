// Package engine drives claimed arbitrage cycles through their remaining
// state transitions: plan building, strategy execution, finalization, and
// failure handoff to the retry manager.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/finmath"
	"github.com/yunseo-park/kimpbot/internal/strategy"
)

// usdtSymbol is the ticker used to read the KRW/USDT settlement rate from
// Upbit.
const usdtSymbol = "usdt"

// Processor finalizes claimed cycles. It never decides retry vs dead-letter
// itself; every execution failure is handed to the RetryManager.
type Processor struct {
	cycles     domain.CycleStore
	trades     domain.TradeStore
	portfolio  domain.PortfolioStore
	evaluator  *finmath.Evaluator
	strategies []domain.ExecutionStrategy
	upbit      domain.Exchange
	binance    domain.Exchange
	retry      *RetryManager
	logger     *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(
	cycles domain.CycleStore,
	trades domain.TradeStore,
	portfolio domain.PortfolioStore,
	evaluator *finmath.Evaluator,
	strategies []domain.ExecutionStrategy,
	upbit, binance domain.Exchange,
	retry *RetryManager,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		cycles:     cycles,
		trades:     trades,
		portfolio:  portfolio,
		evaluator:  evaluator,
		strategies: strategies,
		upbit:      upbit,
		binance:    binance,
		retry:      retry,
		logger:     logger.With(slog.String("component", "processor")),
	}
}

// OpenCycle records the opening leg of a new arbitrage attempt: it creates
// the cycle row, persists the initial trade, and moves the cycle to
// AWAITING_REBALANCE so a later claim pass can close it.
func (p *Processor) OpenCycle(ctx context.Context, symbol string, investmentKRW float64, opening domain.Trade) (domain.Cycle, error) {
	c, err := p.cycles.Create(ctx, domain.Cycle{
		Symbol:               symbol,
		InitialInvestmentKRW: investmentKRW,
	})
	if err != nil {
		return domain.Cycle{}, err
	}

	opening.CycleID = c.ID
	opening.Symbol = symbol
	if opening.Status == "" {
		opening.Status = domain.TradeCompleted
	}
	t, err := p.trades.Create(ctx, opening)
	if err != nil {
		return domain.Cycle{}, err
	}

	c.InitialTradeID = &t.ID
	c.Status = domain.CycleAwaitingReb
	if err := p.cycles.Update(ctx, c); err != nil {
		return domain.Cycle{}, err
	}

	p.logger.InfoContext(ctx, "cycle opened",
		slog.String("cycle_id", c.ID),
		slog.String("symbol", symbol),
		slog.Float64("investment_krw", investmentKRW),
	)
	return c, nil
}

// ProcessClaimed drives one claimed cycle. A nil return means the pass is
// done: completed, rescheduled by the retry manager, or legitimately left
// in place for the next pass. Errors are reserved for faults the retry
// manager itself could not record.
func (p *Processor) ProcessClaimed(ctx context.Context, claimed *domain.Cycle) error {
	c, err := p.cycles.GetWithTrades(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("engine: reload cycle %s: %w", claimed.ID, err)
	}

	// Defensive branch: a claimed cycle must be mid-rebalance. Anything
	// else means the row was mutated behind our back; park it as FAILED.
	if c.Status != domain.CycleRebInProgress {
		p.logger.ErrorContext(ctx, "claimed cycle in unexpected status",
			slog.String("cycle_id", c.ID),
			slog.String("status", string(c.Status)),
		)
		reason := fmt.Sprintf("unexpected status %s during processing", c.Status)
		now := time.Now().UTC()
		c.Status = domain.CycleFailed
		c.FailureReason = &reason
		c.EndTime = &now
		c.LockedAt = nil
		return p.cycles.Update(ctx, c)
	}

	plan, err := p.buildPlan(ctx, c)
	if err != nil {
		return p.retry.HandleFailure(ctx, c, err)
	}
	if plan == nil {
		// No profitable plan this pass. The cycle deliberately stays in
		// REBALANCING_IN_PROGRESS; the stale-lock reclaim frees it after
		// the lock timeout.
		p.logger.DebugContext(ctx, "no profitable rebalance plan",
			slog.String("cycle_id", c.ID),
			slog.String("symbol", c.Symbol),
		)
		return nil
	}

	strat, err := strategy.ForDirection(p.strategies, plan.Direction)
	if err != nil {
		return fmt.Errorf("engine: cycle %s: %w", c.ID, err)
	}

	result, err := strat.Execute(ctx, c.ID, *plan)
	if err != nil {
		return p.retry.HandleFailure(ctx, c, err)
	}

	if err := p.finalize(ctx, c, *plan, result); err != nil {
		return p.retry.HandleFailure(ctx, c, err)
	}
	return nil
}

// buildPlan fetches current prices on both venues and runs the opportunity
// evaluator for the cycle's symbol and investment. A (nil, nil) return is
// the recoverable "no opportunity" outcome.
func (p *Processor) buildPlan(ctx context.Context, c domain.Cycle) (*domain.RebalancePlan, error) {
	upbitTk, err := p.upbit.GetTickerInfo(ctx, c.Symbol)
	if err != nil {
		return nil, fmt.Errorf("engine: upbit ticker %s: %w", c.Symbol, err)
	}
	binanceTk, err := p.binance.GetTickerInfo(ctx, c.Symbol)
	if err != nil {
		return nil, fmt.Errorf("engine: binance ticker %s: %w", c.Symbol, err)
	}
	rateTk, err := p.upbit.GetTickerInfo(ctx, usdtSymbol)
	if err != nil {
		return nil, fmt.Errorf("engine: usdt/krw rate: %w", err)
	}

	// Liquidity guard uses the thinner venue's 24h volume, in KRW.
	volKRW := upbitTk.Volume24h * upbitTk.Price
	if binVol := binanceTk.Volume24h * binanceTk.Price * rateTk.Price; binVol > 0 && (volKRW == 0 || binVol < volKRW) {
		volKRW = binVol
	}

	opp, err := p.evaluator.Evaluate(ctx, finmath.EvalInput{
		Symbol:        c.Symbol,
		UpbitPrice:    upbitTk.Price,
		BinancePrice:  binanceTk.Price,
		USDTKRWRate:   rateTk.Price,
		InvestmentKRW: c.InitialInvestmentKRW,
		Volume24hKRW:  volKRW,
	})
	if err != nil || opp == nil {
		return nil, err
	}

	return &domain.RebalancePlan{
		Symbol:         c.Symbol,
		Direction:      opp.Direction,
		UpbitPrice:     upbitTk.Price,
		BinancePrice:   binanceTk.Price,
		USDTKRWRate:    rateTk.Price,
		InvestmentKRW:  c.InitialInvestmentKRW,
		Amount:         opp.Amount,
		ExpectedNetKRW: opp.NetProfitKRW,
		ExpectedNetPct: opp.NetProfitPercent,
		SpreadPercent:  opp.SpreadPercent,
		TotalFeeKRW:    opp.Fees.TotalFeeKRW,
	}, nil
}

// finalize persists the rebalance leg, completes the cycle, and appends the
// portfolio snapshot. A snapshot failure after the cycle committed as
// COMPLETED is logged rather than retried: the cycle is terminal by then
// and the ledger entry can be reconstructed from the trade row.
func (p *Processor) finalize(ctx context.Context, c domain.Cycle, plan domain.RebalancePlan, result domain.RebalanceResult) error {
	tradeType := domain.TradeHighPremiumSell
	if plan.Direction == domain.DirectionLowPremium {
		tradeType = domain.TradeLowPremiumSell
	}

	leg, err := p.trades.Create(ctx, domain.Trade{
		CycleID:       c.ID,
		TradeType:     tradeType,
		Symbol:        c.Symbol,
		Status:        domain.TradeCompleted,
		InvestmentKRW: plan.InvestmentKRW,
		NetProfitKRW:  result.NetProfitKRW,
		Details:       result.Details,
		TxID:          result.TxID,
	})
	if err != nil {
		return fmt.Errorf("engine: persist rebalance trade: %w", err)
	}

	now := time.Now().UTC()
	c.Status = domain.CycleCompleted
	c.RebalanceTradeID = &leg.ID
	c.TotalNetProfitKRW = result.NetProfitKRW
	if c.InitialInvestmentKRW > 0 {
		c.TotalNetProfitPercent = result.NetProfitKRW / c.InitialInvestmentKRW * 100
	}
	c.EndTime = &now
	c.LockedAt = nil
	if err := p.cycles.Update(ctx, c); err != nil {
		return fmt.Errorf("engine: complete cycle %s: %w", c.ID, err)
	}

	p.logger.InfoContext(ctx, "cycle completed",
		slog.String("cycle_id", c.ID),
		slog.Float64("net_profit_krw", c.TotalNetProfitKRW),
		slog.Float64("net_profit_pct", c.TotalNetProfitPercent),
	)

	if err := p.appendSnapshot(ctx, c); err != nil {
		p.logger.ErrorContext(ctx, "portfolio snapshot append failed",
			slog.String("cycle_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (p *Processor) appendSnapshot(ctx context.Context, c domain.Cycle) error {
	balances := make(map[string]float64)
	for _, ex := range []domain.Exchange{p.upbit, p.binance} {
		bals, err := ex.GetBalances(ctx)
		if err != nil {
			return fmt.Errorf("engine: balances on %s: %w", ex.Name(), err)
		}
		for _, b := range bals {
			balances[ex.Name()+":"+b.Currency] += b.Available + b.Locked
		}
	}

	var total float64
	if latest, err := p.portfolio.Latest(ctx); err == nil {
		total = latest.TotalBalanceKRW
	}
	total += c.TotalNetProfitKRW

	return p.portfolio.Append(ctx, domain.PortfolioSnapshot{
		RecordedAt:      time.Now().UTC(),
		TotalBalanceKRW: total,
		CyclePnLKRW:     c.TotalNetProfitKRW,
		CyclePnLPercent: c.TotalNetProfitPercent,
		CycleID:         &c.ID,
		Balances:        balances,
	})
}
