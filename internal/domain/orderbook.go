package domain

import "time"

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is a snapshot of both sides of a venue's book for one symbol.
// Asks are sorted ascending by price, bids descending; best level first.
type OrderBook struct {
	Symbol    string
	Asks      []BookLevel
	Bids      []BookLevel
	Timestamp time.Time
}

// BestAsk returns the lowest ask price, or 0 when the side is empty.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// BestBid returns the highest bid price, or 0 when the side is empty.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// Ticker is the latest traded price and 24h volume for one symbol on one
// venue.
type Ticker struct {
	Symbol    string
	Price     float64
	Volume24h float64
	Timestamp time.Time
}
