package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// LowPremium closes a cycle when the premium has inverted: buy spot on
// Upbit, hedge the travelling leg with a Binance futures short, move the
// asset to Binance, sell it there, then close the hedge.
type LowPremium struct {
	upbit   domain.Exchange
	binance domain.Exchange
	addrs   Addresses
	logger  *slog.Logger
}

// NewLowPremium creates the LOW_PREMIUM strategy.
func NewLowPremium(upbit, binance domain.Exchange, addrs Addresses, logger *slog.Logger) *LowPremium {
	return &LowPremium{
		upbit:   upbit,
		binance: binance,
		addrs:   addrs,
		logger:  logger.With(slog.String("strategy", "low_premium")),
	}
}

// Direction returns LOW_PREMIUM.
func (s *LowPremium) Direction() domain.TradeDirection {
	return domain.DirectionLowPremium
}

// Execute runs the buy → hedge → transfer → sell → unhedge sequence against
// the inverted premium.
func (s *LowPremium) Execute(ctx context.Context, cycleID string, plan domain.RebalancePlan) (domain.RebalanceResult, error) {
	s.logger.InfoContext(ctx, "executing rebalance",
		slog.String("cycle_id", cycleID),
		slog.String("symbol", plan.Symbol),
		slog.Float64("amount", plan.Amount),
	)

	buy, err := s.upbit.CreateOrder(ctx, plan.Symbol, domain.OrderSideBuy, plan.UpbitPrice, plan.Amount)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: upbit spot buy: %w", err)
	}

	hedge, err := s.binance.CreateFuturesOrder(ctx, plan.Symbol, domain.OrderSideSell, plan.BinancePrice, buy.FilledAmt)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: futures hedge entry: %w", err)
	}

	sendAmt, err := withdrawable(ctx, s.upbit, plan.Symbol, buy.FilledAmt)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	wd, err := s.upbit.Withdraw(ctx, plan.Symbol, s.addrs.BinanceDeposit, sendAmt)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: withdraw to binance: %w", err)
	}

	sell, err := s.binance.CreateOrder(ctx, plan.Symbol, domain.OrderSideSell, plan.BinancePrice, wd.Amount)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: binance spot sell: %w", err)
	}

	if _, err := s.binance.CreateFuturesOrder(ctx, plan.Symbol, domain.OrderSideBuy, plan.BinancePrice, hedge.FilledAmt); err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: futures hedge exit: %w", err)
	}

	return settle(cycleID, plan, buy, sell, wd.TxID)
}

// Compile-time interface check.
var _ domain.ExecutionStrategy = (*LowPremium)(nil)
