package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// HighPremium closes a cycle when the asset trades rich on Upbit: buy spot
// on Binance, short an equal futures position as the transfer hedge, move
// the asset to Upbit, sell it there, then close the hedge.
type HighPremium struct {
	upbit   domain.Exchange
	binance domain.Exchange
	addrs   Addresses
	logger  *slog.Logger
}

// NewHighPremium creates the HIGH_PREMIUM strategy.
func NewHighPremium(upbit, binance domain.Exchange, addrs Addresses, logger *slog.Logger) *HighPremium {
	return &HighPremium{
		upbit:   upbit,
		binance: binance,
		addrs:   addrs,
		logger:  logger.With(slog.String("strategy", "high_premium")),
	}
}

// Direction returns HIGH_PREMIUM.
func (s *HighPremium) Direction() domain.TradeDirection {
	return domain.DirectionHighPremium
}

// Execute runs the buy → hedge → transfer → sell → unhedge sequence. Any
// step failure aborts and is returned to the caller with the step named.
func (s *HighPremium) Execute(ctx context.Context, cycleID string, plan domain.RebalancePlan) (domain.RebalanceResult, error) {
	s.logger.InfoContext(ctx, "executing rebalance",
		slog.String("cycle_id", cycleID),
		slog.String("symbol", plan.Symbol),
		slog.Float64("amount", plan.Amount),
	)

	buy, err := s.binance.CreateOrder(ctx, plan.Symbol, domain.OrderSideBuy, plan.BinancePrice, plan.Amount)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: binance spot buy: %w", err)
	}

	hedge, err := s.binance.CreateFuturesOrder(ctx, plan.Symbol, domain.OrderSideSell, plan.BinancePrice, buy.FilledAmt)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: futures hedge entry: %w", err)
	}

	sendAmt, err := withdrawable(ctx, s.binance, plan.Symbol, buy.FilledAmt)
	if err != nil {
		return domain.RebalanceResult{}, err
	}
	wd, err := s.binance.Withdraw(ctx, plan.Symbol, s.addrs.UpbitDeposit, sendAmt)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: withdraw to upbit: %w", err)
	}

	sell, err := s.upbit.CreateOrder(ctx, plan.Symbol, domain.OrderSideSell, plan.UpbitPrice, wd.Amount)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: upbit spot sell: %w", err)
	}

	if _, err := s.binance.CreateFuturesOrder(ctx, plan.Symbol, domain.OrderSideBuy, plan.BinancePrice, hedge.FilledAmt); err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: futures hedge exit: %w", err)
	}

	return settle(cycleID, plan, buy, sell, wd.TxID)
}

// Compile-time interface check.
var _ domain.ExecutionStrategy = (*HighPremium)(nil)
