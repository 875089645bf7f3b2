// Package strategy implements the venue-side execution strategies for both
// premium directions. Each strategy drives the buy/hedge/transfer/sell
// sequence against the Exchange capability contract and reports every
// failure to the caller; retry decisions belong to the engine, not here.
package strategy

import (
	"context"
	"fmt"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/finmath"
)

// Addresses holds the deposit addresses used for cross-venue transfers.
type Addresses struct {
	UpbitDeposit   string
	BinanceDeposit string
}

// ForDirection returns the strategy matching the plan's direction from the
// given set, or ErrInvalidDirection for an unknown one.
func ForDirection(strategies []domain.ExecutionStrategy, dir domain.TradeDirection) (domain.ExecutionStrategy, error) {
	for _, s := range strategies {
		if s.Direction() == dir {
			return s, nil
		}
	}
	return nil, fmt.Errorf("strategy: direction %q: %w", dir, domain.ErrInvalidDirection)
}

// settle recomputes the fee breakdown at the actually filled prices and
// builds the result reported back to the processor.
func settle(cycleID string, plan domain.RebalancePlan, buyFill, sellFill domain.Order, txID string) (domain.RebalanceResult, error) {
	in := finmath.FeeInput{
		Symbol:      plan.Symbol,
		Amount:      buyFill.FilledAmt,
		USDTKRWRate: plan.USDTKRWRate,
		Direction:   plan.Direction,
	}
	switch plan.Direction {
	case domain.DirectionHighPremium:
		in.BinancePrice = fillPrice(buyFill, plan.BinancePrice)
		in.UpbitPrice = fillPriceKRW(sellFill, plan.UpbitPrice)
	case domain.DirectionLowPremium:
		in.UpbitPrice = fillPriceKRW(buyFill, plan.UpbitPrice)
		in.BinancePrice = fillPrice(sellFill, plan.BinancePrice)
	}

	fees, err := finmath.CalculateFees(in)
	if err != nil {
		return domain.RebalanceResult{}, fmt.Errorf("strategy: settle cycle %s: %w", cycleID, err)
	}

	return domain.RebalanceResult{
		TxID:         txID,
		FilledAmount: buyFill.FilledAmt,
		NetProfitKRW: fees.NetProfitKRW,
		TotalFeeKRW:  fees.TotalFeeKRW,
		Details: domain.TradeDetails{
			UpbitPrice:     in.UpbitPrice,
			BinancePrice:   in.BinancePrice,
			USDTKRWRate:    plan.USDTKRWRate,
			Amount:         buyFill.FilledAmt,
			TotalFeeKRW:    fees.TotalFeeKRW,
			Direction:      string(plan.Direction),
			TransferFeeKRW: fees.TransferFeeKRW,
		},
	}, nil
}

func fillPrice(o domain.Order, fallback float64) float64 {
	if o.AvgPrice > 0 {
		return o.AvgPrice
	}
	return fallback
}

func fillPriceKRW(o domain.Order, fallback float64) float64 {
	return fillPrice(o, fallback)
}

// withdrawable subtracts the network fee from the filled amount so the
// withdrawal never overdraws the venue balance.
func withdrawable(ctx context.Context, ex domain.Exchange, currency string, amount float64) (float64, error) {
	fee, err := ex.GetWithdrawalFee(ctx, currency)
	if err != nil {
		return 0, fmt.Errorf("strategy: withdrawal fee for %s: %w", currency, err)
	}
	if amount <= fee {
		return 0, fmt.Errorf("strategy: amount %.8f does not cover withdrawal fee %.8f: %w",
			amount, fee, domain.ErrInsufficientFund)
	}
	return amount - fee, nil
}
