package finmath

import (
	"context"
	"log/slog"
	"math"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// Opportunity is a profitable candidate produced by the Evaluator. A nil
// Opportunity with a nil error means "no opportunity" — a normal outcome,
// not a failure.
type Opportunity struct {
	Symbol           string
	Direction        domain.TradeDirection
	SpreadPercent    float64
	Amount           float64
	InvestmentKRW    float64
	Fees             FeeResult
	NetProfitKRW     float64
	NetProfitPercent float64
}

// EvalInput carries the latest prices and the candidate sizing for one
// symbol.
type EvalInput struct {
	Symbol        string
	UpbitPrice    float64 // KRW
	BinancePrice  float64 // USDT
	USDTKRWRate   float64 // KRW per USDT
	InvestmentKRW float64
	// Volume24hKRW is the 24h volume on the thinner venue; 0 disables the
	// liquidity-impact guard.
	Volume24hKRW float64
}

// Evaluator decides whether a price divergence is worth trading. Thresholds
// come from the runtime-tunable settings provider with hardcoded defaults.
type Evaluator struct {
	settings domain.SettingsProvider
	logger   *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(settings domain.SettingsProvider, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		settings: settings,
		logger:   logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate checks the spread gate, delegates to CalculateFees for net
// profitability, applies the extra fixed slippage haircut on top of the fee
// calculator's own, and enforces the liquidity-impact guard. Every rejection
// returns (nil, nil) and logs at debug level.
func (e *Evaluator) Evaluate(ctx context.Context, in EvalInput) (*Opportunity, error) {
	if in.UpbitPrice <= 0 || in.BinancePrice <= 0 || in.USDTKRWRate <= 0 || in.InvestmentKRW <= 0 {
		return nil, nil
	}

	binanceKRW := in.BinancePrice * in.USDTKRWRate
	spread := math.Abs(in.UpbitPrice-binanceKRW) / in.UpbitPrice * 100

	minSpread := e.settings.Float(ctx, domain.SettingMinSpreadPercent, domain.DefaultMinSpreadPercent)
	if spread < minSpread {
		e.logger.DebugContext(ctx, "spread below minimum",
			slog.String("symbol", in.Symbol),
			slog.Float64("spread_pct", spread),
			slog.Float64("min_spread_pct", minSpread),
		)
		return nil, nil
	}

	// Normal premium: Upbit above Binance. Reverse: premium has inverted.
	direction := domain.DirectionHighPremium
	buyPriceKRW := binanceKRW
	if in.UpbitPrice <= binanceKRW {
		direction = domain.DirectionLowPremium
		buyPriceKRW = in.UpbitPrice
	}

	amount := in.InvestmentKRW / buyPriceKRW
	fees, err := CalculateFees(FeeInput{
		Symbol:       in.Symbol,
		Amount:       amount,
		UpbitPrice:   in.UpbitPrice,
		BinancePrice: in.BinancePrice,
		USDTKRWRate:  in.USDTKRWRate,
		Direction:    direction,
	})
	if err != nil {
		return nil, err
	}

	// A further fixed haircut beyond the fee calculator's own slippage.
	extraSlip := e.settings.Float(ctx, domain.SettingExtraSlippagePct, domain.DefaultExtraSlippagePct)
	minProfit := e.settings.Float(ctx, domain.SettingMinProfitPercent, domain.DefaultMinProfitPercent)
	net := fees.NetProfitKRW - in.InvestmentKRW*extraSlip/100
	netPct := net / in.InvestmentKRW * 100
	if net <= 0 || netPct < minProfit {
		e.logger.DebugContext(ctx, "not profitable after fees",
			slog.String("symbol", in.Symbol),
			slog.Float64("net_krw", net),
			slog.Float64("net_pct", netPct),
		)
		return nil, nil
	}

	if in.Volume24hKRW > 0 {
		maxFrac := e.settings.Float(ctx, domain.SettingMaxVolumeFraction, domain.DefaultMaxVolumeFraction)
		if in.InvestmentKRW > in.Volume24hKRW*maxFrac {
			e.logger.DebugContext(ctx, "investment exceeds liquidity cap",
				slog.String("symbol", in.Symbol),
				slog.Float64("investment_krw", in.InvestmentKRW),
				slog.Float64("volume_24h_krw", in.Volume24hKRW),
			)
			return nil, nil
		}
	}

	return &Opportunity{
		Symbol:           in.Symbol,
		Direction:        direction,
		SpreadPercent:    spread,
		Amount:           amount,
		InvestmentKRW:    in.InvestmentKRW,
		Fees:             fees,
		NetProfitKRW:     net,
		NetProfitPercent: netPct,
	}, nil
}
