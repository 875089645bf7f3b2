package finmath

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// staticSettings is a SettingsProvider with fixed values for tests.
type staticSettings map[string]float64

func (s staticSettings) Float(_ context.Context, key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

func newTestEvaluator(s staticSettings) *Evaluator {
	return NewEvaluator(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluateRejectsBelowMinSpread(t *testing.T) {
	ev := newTestEvaluator(staticSettings{})

	// 0.2% spread against the 0.5% default minimum: no opportunity even
	// though the trade might otherwise clear fees.
	opp, err := ev.Evaluate(context.Background(), EvalInput{
		Symbol:        "xrp",
		UpbitPrice:    701.4,
		BinancePrice:  0.5,
		USDTKRWRate:   1400,
		InvestmentKRW: 1_000_000,
	})
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluateProfitableHighPremium(t *testing.T) {
	ev := newTestEvaluator(staticSettings{})

	opp, err := ev.Evaluate(context.Background(), EvalInput{
		Symbol:        "xrp",
		UpbitPrice:    710,
		BinancePrice:  0.5,
		USDTKRWRate:   1400,
		InvestmentKRW: 1_000_000,
	})
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.DirectionHighPremium, opp.Direction)
	assert.Greater(t, opp.NetProfitKRW, 0.0)
	assert.Greater(t, opp.NetProfitPercent, 0.0)
	assert.InDelta(t, opp.NetProfitKRW/opp.InvestmentKRW*100, opp.NetProfitPercent, 1e-9)
	// Investment sized at the Binance buy price.
	assert.InDelta(t, 1_000_000/700.0, opp.Amount, 1e-9)
}

func TestEvaluateReverseDirection(t *testing.T) {
	ev := newTestEvaluator(staticSettings{})

	// Binance in KRW well above Upbit: reverse premium, buy on Upbit.
	opp, err := ev.Evaluate(context.Background(), EvalInput{
		Symbol:        "xrp",
		UpbitPrice:    690,
		BinancePrice:  0.51,
		USDTKRWRate:   1400,
		InvestmentKRW: 1_000_000,
	})
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.DirectionLowPremium, opp.Direction)
}

func TestEvaluateLiquidityGuard(t *testing.T) {
	ev := newTestEvaluator(staticSettings{})

	// Investment is 10% of 24h volume against the 1% default cap.
	opp, err := ev.Evaluate(context.Background(), EvalInput{
		Symbol:        "xrp",
		UpbitPrice:    710,
		BinancePrice:  0.5,
		USDTKRWRate:   1400,
		InvestmentKRW: 1_000_000,
		Volume24hKRW:  10_000_000,
	})
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluateUnprofitableAfterFees(t *testing.T) {
	// Force a high minimum profit so the candidate is rejected on the
	// profitability gate rather than the spread gate.
	ev := newTestEvaluator(staticSettings{domain.SettingMinProfitPercent: 50})

	opp, err := ev.Evaluate(context.Background(), EvalInput{
		Symbol:        "xrp",
		UpbitPrice:    710,
		BinancePrice:  0.5,
		USDTKRWRate:   1400,
		InvestmentKRW: 1_000_000,
	})
	require.NoError(t, err)
	assert.Nil(t, opp)
}
