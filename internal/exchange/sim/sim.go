// Package sim is an in-memory Exchange implementation satisfying the exact
// venue capability contract. It backs unit tests and the `sim` run mode;
// order books, tickers, and balances are injectable and every call is
// deterministic.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/finmath"
)

// Exchange is a simulated trading venue.
type Exchange struct {
	name string

	mu       sync.Mutex
	balances map[string]float64
	books    map[string]domain.OrderBook
	tickers  map[string]domain.Ticker
	seq      int

	// FailNext, when set, causes the next mutating call to fail with the
	// given error. Used to exercise the retry path in tests.
	FailNext error
}

// New creates a simulated venue with the given name and starting balances.
func New(name string, balances map[string]float64) *Exchange {
	b := make(map[string]float64, len(balances))
	for k, v := range balances {
		b[k] = v
	}
	return &Exchange{
		name:     name,
		balances: b,
		books:    make(map[string]domain.OrderBook),
		tickers:  make(map[string]domain.Ticker),
	}
}

// Name returns the venue name.
func (e *Exchange) Name() string { return e.name }

// SetOrderBook injects the book snapshot returned by GetOrderBook.
func (e *Exchange) SetOrderBook(symbol string, book domain.OrderBook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	book.Symbol = symbol
	e.books[symbol] = book
}

// SetTicker injects the ticker returned by GetTickerInfo.
func (e *Exchange) SetTicker(symbol string, price, volume24h float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickers[symbol] = domain.Ticker{
		Symbol:    symbol,
		Price:     price,
		Volume24h: volume24h,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Exchange) nextID(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s-%s-%d", e.name, prefix, e.seq)
}

func (e *Exchange) takeFailure() error {
	if e.FailNext != nil {
		err := e.FailNext
		e.FailNext = nil
		return err
	}
	return nil
}

// CreateOrder fills a spot order immediately at the requested price.
func (e *Exchange) CreateOrder(_ context.Context, symbol string, side domain.OrderSide, price, amount float64) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return domain.Order{}, err
	}
	if price <= 0 || amount <= 0 {
		return domain.Order{}, fmt.Errorf("sim: %s order price=%.8f amount=%.8f: invalid", e.name, price, amount)
	}

	switch side {
	case domain.OrderSideBuy:
		e.balances[symbol] += amount
	case domain.OrderSideSell:
		if e.balances[symbol] < amount {
			return domain.Order{}, fmt.Errorf("sim: sell %.8f %s with balance %.8f: %w",
				amount, symbol, e.balances[symbol], domain.ErrInsufficientFund)
		}
		e.balances[symbol] -= amount
	default:
		return domain.Order{}, fmt.Errorf("sim: order side %q: invalid", side)
	}

	return domain.Order{
		ID:        e.nextID("ord"),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		FilledAmt: amount,
		AvgPrice:  price,
		Status:    "filled",
	}, nil
}

// GetOrderBook returns the injected snapshot for a symbol.
func (e *Exchange) GetOrderBook(_ context.Context, symbol string) (domain.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	book, ok := e.books[symbol]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("sim: order book %s on %s: %w", symbol, e.name, domain.ErrNotFound)
	}
	return book, nil
}

// GetBalances returns the venue balances snapshot.
func (e *Exchange) GetBalances(_ context.Context) ([]domain.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Balance, 0, len(e.balances))
	for cur, amt := range e.balances {
		out = append(out, domain.Balance{Currency: cur, Available: amt})
	}
	return out, nil
}

// GetTickerInfo returns the injected ticker for a symbol.
func (e *Exchange) GetTickerInfo(_ context.Context, symbol string) (domain.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tk, ok := e.tickers[symbol]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("sim: ticker %s on %s: %w", symbol, e.name, domain.ErrNotFound)
	}
	return tk, nil
}

// Withdraw moves the amount out of the venue balance, charging the network
// fee, and returns a deterministic transaction id.
func (e *Exchange) Withdraw(_ context.Context, currency, _ string, amount float64) (domain.Withdrawal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return domain.Withdrawal{}, err
	}

	fee := finmath.WithdrawalFee(currency)
	if e.balances[currency] < amount+fee {
		return domain.Withdrawal{}, fmt.Errorf("sim: withdraw %.8f %s with balance %.8f: %w",
			amount, currency, e.balances[currency], domain.ErrInsufficientFund)
	}
	e.balances[currency] -= amount + fee

	return domain.Withdrawal{
		TxID:     e.nextID("tx"),
		Currency: currency,
		Amount:   amount,
		Fee:      fee,
	}, nil
}

// GetWithdrawalFee returns the flat network fee for a currency.
func (e *Exchange) GetWithdrawalFee(_ context.Context, currency string) (float64, error) {
	return finmath.WithdrawalFee(currency), nil
}

// CreateFuturesOrder fills a futures order immediately. Futures positions
// are margin-settled, so spot balances are untouched.
func (e *Exchange) CreateFuturesOrder(_ context.Context, symbol string, side domain.OrderSide, price, amount float64) (domain.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(); err != nil {
		return domain.Order{}, err
	}
	if price <= 0 || amount <= 0 {
		return domain.Order{}, fmt.Errorf("sim: futures order price=%.8f amount=%.8f: invalid", price, amount)
	}
	return domain.Order{
		ID:        e.nextID("fut"),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		FilledAmt: amount,
		AvgPrice:  price,
		Status:    "filled",
	}, nil
}

// InternalTransfer moves funds between venue wallets; the simulation keeps
// one pot per currency so this only validates the amount.
func (e *Exchange) InternalTransfer(_ context.Context, currency string, amount float64, _, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.balances[currency] < amount {
		return fmt.Errorf("sim: transfer %.8f %s with balance %.8f: %w",
			amount, currency, e.balances[currency], domain.ErrInsufficientFund)
	}
	return nil
}

// Balance returns the current balance of one currency.
func (e *Exchange) Balance(currency string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[currency]
}

// Compile-time interface check.
var _ domain.Exchange = (*Exchange)(nil)
