package domain

import "context"

// Well-known settings keys. Values live in the settings table and may be
// tuned at runtime; each has a hardcoded default used when unset.
const (
	SettingMinSpreadPercent  = "min_spread_percent"
	SettingMinProfitPercent  = "min_profit_percent"
	SettingExtraSlippagePct  = "extra_slippage_percent"
	SettingMaxVolumeFraction = "max_volume_fraction"
)

// Defaults for the settings keys above.
const (
	DefaultMinSpreadPercent  = 0.5
	DefaultMinProfitPercent  = 0.0
	DefaultExtraSlippagePct  = 0.1
	DefaultMaxVolumeFraction = 0.01
)

// SettingsProvider reads a tunable threshold, falling back to def when the
// key is unset or the backend is unreachable. Read-only convenience over
// SettingsStore; state-machine writes must never depend on it.
type SettingsProvider interface {
	Float(ctx context.Context, key string, def float64) float64
}
