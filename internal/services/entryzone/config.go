package entryzone

import "github.com/creasty/defaults"

// Config controls OTE anchoring and reaction-zone detection.
type Config struct {
	Pivot                int     `yaml:"pivot" default:"3" validate:"gte=1,lte=20"`
	MaxLookback          int     `yaml:"max_lookback" default:"100" validate:"gte=1"`
	ValidityBars         int     `yaml:"validity_bars" default:"30" validate:"gte=1"`
	RequireLiquidityGrab bool    `yaml:"require_liquidity_grab" default:"true"`
	StopPadTicks         float64 `yaml:"stop_pad_ticks" default:"2" validate:"gte=0"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
