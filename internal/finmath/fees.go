// Package finmath implements the deterministic financial math behind the
// arbitrage engine: fee accounting, order-book slippage, and spread
// evaluation. Everything here is a pure function of its inputs; no I/O, no
// shared state.
package finmath

import (
	"fmt"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// Venue fee rates. Upbit charges 0.05% on spot, Binance 0.1% on spot and
// 0.04% taker on USDT-margined futures.
const (
	UpbitSpotFeeRate      = 0.0005
	BinanceSpotFeeRate    = 0.001
	BinanceFuturesFeeRate = 0.0004

	// DefaultSlippageRate is the haircut applied to both effective prices
	// in the unfavorable direction before gross profit is computed.
	DefaultSlippageRate = 0.001
)

// withdrawalFees is the flat per-withdrawal network fee per symbol, in units
// of the asset itself. Symbols absent from the table withdraw free (venue
// internal-transfer exempt assets).
var withdrawalFees = map[string]float64{
	"btc":  0.0009,
	"eth":  0.01,
	"xrp":  0.25,
	"trx":  1.0,
	"sol":  0.008,
	"doge": 4.0,
}

// WithdrawalFee returns the flat withdrawal fee for a symbol in asset units.
func WithdrawalFee(symbol string) float64 {
	return withdrawalFees[symbol]
}

// FeeInput describes one candidate round trip for fee accounting.
type FeeInput struct {
	Symbol       string
	Amount       float64 // units of the asset
	UpbitPrice   float64 // KRW per unit
	BinancePrice float64 // USDT per unit
	USDTKRWRate  float64 // KRW per USDT
	Direction    domain.TradeDirection
	// SlippageRate overrides DefaultSlippageRate when > 0.
	SlippageRate float64
}

// FeeResult is the full fee breakdown of one candidate round trip. TotalFee
// is the exact sum of the five components; NetProfit = GrossProfit − TotalFee.
type FeeResult struct {
	GrossProfitKRW     float64
	UpbitFeeKRW        float64
	BinanceSpotFeeKRW  float64
	FuturesEntryFeeKRW float64
	FuturesExitFeeKRW  float64
	TransferFeeKRW     float64
	TotalFeeKRW        float64
	NetProfitKRW       float64
	NetProfitPercent   float64
	InvestmentKRW      float64
}

// CalculateFees computes gross profit, the five fee components, and net
// profitability for one candidate trade.
//
// The strategy always hedges the leg that must travel between venues with an
// offsetting Binance futures position, so both the entry and exit futures
// fees are charged regardless of direction. With a zero amount or a zero
// price on either venue the result is all zeros, never NaN. An unknown
// direction is a programming error and fails fast.
func CalculateFees(in FeeInput) (FeeResult, error) {
	if in.Direction != domain.DirectionHighPremium && in.Direction != domain.DirectionLowPremium {
		return FeeResult{}, fmt.Errorf("finmath: direction %q: %w", in.Direction, domain.ErrInvalidDirection)
	}
	if in.Amount == 0 || in.UpbitPrice == 0 || in.BinancePrice == 0 || in.USDTKRWRate == 0 {
		return FeeResult{}, nil
	}

	slip := in.SlippageRate
	if slip <= 0 {
		slip = DefaultSlippageRate
	}

	binanceKRW := in.BinancePrice * in.USDTKRWRate
	binanceNotional := binanceKRW * in.Amount
	upbitNotional := in.UpbitPrice * in.Amount

	var effBuy, effSell, investment, transferFee float64
	switch in.Direction {
	case domain.DirectionHighPremium:
		// Buy Binance spot, transfer to Upbit, sell Upbit.
		effBuy = binanceKRW * (1 + slip)
		effSell = in.UpbitPrice * (1 - slip)
		investment = binanceNotional
		transferFee = WithdrawalFee(in.Symbol) * binanceKRW
	case domain.DirectionLowPremium:
		// Buy Upbit, transfer to Binance, sell Binance spot.
		effBuy = in.UpbitPrice * (1 + slip)
		effSell = binanceKRW * (1 - slip)
		investment = upbitNotional
		transferFee = WithdrawalFee(in.Symbol) * in.UpbitPrice
	}

	res := FeeResult{
		GrossProfitKRW:     (effSell - effBuy) * in.Amount,
		UpbitFeeKRW:        upbitNotional * UpbitSpotFeeRate,
		BinanceSpotFeeKRW:  binanceNotional * BinanceSpotFeeRate,
		FuturesEntryFeeKRW: binanceNotional * BinanceFuturesFeeRate,
		FuturesExitFeeKRW:  binanceNotional * BinanceFuturesFeeRate,
		TransferFeeKRW:     transferFee,
		InvestmentKRW:      investment,
	}
	res.TotalFeeKRW = res.UpbitFeeKRW + res.BinanceSpotFeeKRW +
		res.FuturesEntryFeeKRW + res.FuturesExitFeeKRW + res.TransferFeeKRW
	res.NetProfitKRW = res.GrossProfitKRW - res.TotalFeeKRW
	if investment > 0 {
		res.NetProfitPercent = res.NetProfitKRW / investment * 100
	}
	return res, nil
}
