package domain

import "context"

// OrderSide is the direction of a spot or futures order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is the venue's acknowledgement of a placed order.
type Order struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Price      float64
	Amount     float64
	FilledAmt  float64
	AvgPrice   float64
	FeePaid    float64
	Status     string
	RawPayload string
}

// Balance is a single-asset balance on one venue.
type Balance struct {
	Currency  string
	Available float64
	Locked    float64
}

// Withdrawal is the venue's acknowledgement of an asset transfer out.
type Withdrawal struct {
	TxID     string
	Currency string
	Amount   float64
	Fee      float64
}

// Exchange is the capability contract a trading venue must satisfy. The
// engine is polymorphic over venues; the simulation implementation in
// internal/exchange/sim satisfies the identical contract for tests and
// backtests.
type Exchange interface {
	Name() string
	CreateOrder(ctx context.Context, symbol string, side OrderSide, price, amount float64) (Order, error)
	GetOrderBook(ctx context.Context, symbol string) (OrderBook, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetTickerInfo(ctx context.Context, symbol string) (Ticker, error)
	Withdraw(ctx context.Context, currency, address string, amount float64) (Withdrawal, error)
	GetWithdrawalFee(ctx context.Context, currency string) (float64, error)
	CreateFuturesOrder(ctx context.Context, symbol string, side OrderSide, price, amount float64) (Order, error)
	InternalTransfer(ctx context.Context, currency string, amount float64, from, to string) error
}
