package finmath

import (
	"fmt"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// SlippageResult describes the volume-weighted cost of filling a target
// notional against one side of an order book.
type SlippageResult struct {
	AveragePrice    float64
	TotalAmount     float64
	TotalCost       float64
	SlippagePercent float64
}

// WalkBook consumes levels of one book side best-first until the target
// notional is exhausted, partially consuming the final level if needed.
//
// For buys the levels are asks sorted ascending; for sells, bids sorted
// descending. SlippagePercent is (averagePrice/bestPrice − 1) × 100: positive
// when a buy must pay up, negative when a sell must concede. A zero notional
// returns an all-zero result without touching the book; an empty side with a
// positive notional is an error.
func WalkBook(levels []domain.BookLevel, notional float64, side domain.OrderSide) (SlippageResult, error) {
	if notional == 0 {
		return SlippageResult{}, nil
	}
	if len(levels) == 0 {
		return SlippageResult{}, fmt.Errorf("finmath: walk %s for %.2f: %w", side, notional, domain.ErrEmptyOrderBook)
	}

	best := levels[0].Price
	remaining := notional
	var totalCost, totalAmount float64

	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if lvl.Price <= 0 || lvl.Amount <= 0 {
			continue
		}
		levelCost := lvl.Price * lvl.Amount
		if levelCost >= remaining {
			totalAmount += remaining / lvl.Price
			totalCost += remaining
			remaining = 0
			break
		}
		totalAmount += lvl.Amount
		totalCost += levelCost
		remaining -= levelCost
	}

	res := SlippageResult{
		TotalAmount: totalAmount,
		TotalCost:   totalCost,
	}
	if totalAmount > 0 {
		res.AveragePrice = totalCost / totalAmount
	}
	if best > 0 && res.AveragePrice > 0 {
		res.SlippagePercent = (res.AveragePrice/best - 1) * 100
	}
	return res, nil
}
