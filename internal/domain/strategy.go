package domain

import "context"

// TradeDirection selects which venue is rich and which is cheap.
//
// HIGH_PREMIUM: the asset trades at a premium on Upbit, so it is bought on
// Binance (hedged with a short futures position) and sold on Upbit.
// LOW_PREMIUM: the premium has inverted; the asset is bought on Upbit and
// sold on Binance.
type TradeDirection string

const (
	DirectionHighPremium TradeDirection = "HIGH_PREMIUM"
	DirectionLowPremium  TradeDirection = "LOW_PREMIUM"
)

// RebalancePlan is a validated, profitable closing plan produced by the
// opportunity evaluator for a claimed cycle.
type RebalancePlan struct {
	Symbol         string
	Direction      TradeDirection
	UpbitPrice     float64
	BinancePrice   float64
	USDTKRWRate    float64
	InvestmentKRW  float64
	Amount         float64
	ExpectedNetKRW float64
	ExpectedNetPct float64
	SpreadPercent  float64
	TotalFeeKRW    float64
}

// RebalanceResult is what an execution strategy reports back on success.
type RebalanceResult struct {
	TxID         string
	FilledAmount float64
	NetProfitKRW float64
	TotalFeeKRW  float64
	Details      TradeDetails
}

// ExecutionStrategy performs the venue-side buy/transfer/sell (or hedge)
// sequence for one direction. Implementations must report every failure;
// a swallowed error here is money silently lost.
type ExecutionStrategy interface {
	Direction() TradeDirection
	Execute(ctx context.Context, cycleID string, plan RebalancePlan) (RebalanceResult, error)
}
