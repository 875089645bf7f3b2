package domain

import "time"

// TradeType identifies the direction and premium regime of one executed leg.
type TradeType string

const (
	TradeHighPremiumBuy  TradeType = "HIGH_PREMIUM_BUY"
	TradeHighPremiumSell TradeType = "HIGH_PREMIUM_SELL"
	TradeLowPremiumBuy   TradeType = "LOW_PREMIUM_BUY"
	TradeLowPremiumSell  TradeType = "LOW_PREMIUM_SELL"
)

// TradeStatus is the execution state of a single leg.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeCompleted TradeStatus = "COMPLETED"
	TradeFailed    TradeStatus = "FAILED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// TradeDetails is the opaque structured payload recorded with each leg:
// prices, fee breakdown, and market direction at execution time. Stored as
// JSONB; the engine never reads it back for decisions.
type TradeDetails struct {
	UpbitPrice     float64 `json:"upbitPrice,omitempty"`
	BinancePrice   float64 `json:"binancePrice,omitempty"`
	USDTKRWRate    float64 `json:"usdtKrwRate,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	TotalFeeKRW    float64 `json:"totalFeeKrw,omitempty"`
	SlippagePct    float64 `json:"slippagePercent,omitempty"`
	Direction      string  `json:"direction,omitempty"`
	TransferFeeKRW float64 `json:"transferFeeKrw,omitempty"`
}

// Trade is one executed leg belonging to exactly one cycle. Rows are
// append-only; they are removed only by the cycle's cascade delete.
type Trade struct {
	ID            string
	CycleID       string
	TradeType     TradeType
	Symbol        string
	Status        TradeStatus
	InvestmentKRW float64
	NetProfitKRW  float64
	Details       TradeDetails
	TxID          string
	ErrorMessage  string
	CreatedAt     time.Time
}
