package finmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

func TestWalkBookBuyAcrossLevels(t *testing.T) {
	asks := []domain.BookLevel{
		{Price: 100, Amount: 1.0},
		{Price: 200, Amount: 1.0},
		{Price: 300, Amount: 1.0},
	}

	res, err := WalkBook(asks, 600, domain.OrderSideBuy)
	require.NoError(t, err)

	assert.InDelta(t, 600, res.TotalCost, 1e-9)
	assert.InDelta(t, 3.0, res.TotalAmount, 1e-9)
	assert.InDelta(t, res.TotalCost, res.AveragePrice*res.TotalAmount, 1e-9)
	assert.InDelta(t, (res.AveragePrice/100-1)*100, res.SlippagePercent, 1e-9)
	assert.Greater(t, res.SlippagePercent, 0.0)
}

func TestWalkBookPartialFinalLevel(t *testing.T) {
	asks := []domain.BookLevel{
		{Price: 100, Amount: 1.0},
		{Price: 200, Amount: 5.0},
	}

	res, err := WalkBook(asks, 300, domain.OrderSideBuy)
	require.NoError(t, err)

	// 1.0 at 100, then 1.0 at 200 fills the remaining 200 of notional.
	assert.InDelta(t, 300, res.TotalCost, 1e-9)
	assert.InDelta(t, 2.0, res.TotalAmount, 1e-9)
	assert.InDelta(t, 150, res.AveragePrice, 1e-9)
}

func TestWalkBookSellConcedes(t *testing.T) {
	bids := []domain.BookLevel{
		{Price: 100, Amount: 1.0},
		{Price: 90, Amount: 10.0},
	}

	res, err := WalkBook(bids, 280, domain.OrderSideSell)
	require.NoError(t, err)
	assert.Less(t, res.SlippagePercent, 0.0)
	assert.InDelta(t, 280, res.TotalCost, 1e-9)
}

func TestWalkBookZeroNotional(t *testing.T) {
	res, err := WalkBook(nil, 0, domain.OrderSideBuy)
	require.NoError(t, err)
	assert.Zero(t, res.AveragePrice)
	assert.Zero(t, res.TotalAmount)
	assert.Zero(t, res.TotalCost)
	assert.Zero(t, res.SlippagePercent)
}

func TestWalkBookEmptySide(t *testing.T) {
	_, err := WalkBook(nil, 100, domain.OrderSideBuy)
	require.ErrorIs(t, err, domain.ErrEmptyOrderBook)
}

func TestWalkBookInsufficientDepth(t *testing.T) {
	asks := []domain.BookLevel{{Price: 100, Amount: 1.0}}

	res, err := WalkBook(asks, 500, domain.OrderSideBuy)
	require.NoError(t, err)
	assert.InDelta(t, 100, res.TotalCost, 1e-9)
	assert.InDelta(t, 1.0, res.TotalAmount, 1e-9)
}
