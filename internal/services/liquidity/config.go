package liquidity

import "github.com/creasty/defaults"

// BufferMode selects how the sweep buffer is derived.
type BufferMode string

const (
	BufferAdaptive BufferMode = "adaptive"
	BufferNone     BufferMode = "none"
)

// Config controls zone construction and sweep detection.
type Config struct {
	SwingPivot          int        `yaml:"swing_pivot" default:"3" validate:"gte=1,lte=20"`
	PadTicks            float64    `yaml:"pad_ticks" default:"2" validate:"gte=0"`
	EqualToleranceTicks float64    `yaml:"equal_tolerance_ticks" default:"5" validate:"gte=0"`
	ZoneLifetime        int        `yaml:"zone_lifetime" default:"200" validate:"gte=1"`
	MaxZones            int        `yaml:"max_zones" default:"64" validate:"gte=1,lte=1024"`
	BufferMode          BufferMode `yaml:"buffer_mode" default:"adaptive" validate:"oneof=adaptive none"`
	BufferATRFactor     float64    `yaml:"buffer_atr_factor" default:"0.1" validate:"gte=0,lte=5"`
	ATRPeriod           int        `yaml:"atr_period" default:"14" validate:"gte=1"`
	UseSwings           bool       `yaml:"use_swings" default:"true"`
	UseEqualLevels      bool       `yaml:"use_equal_levels" default:"true"`
	UsePreviousDay      bool       `yaml:"use_previous_day" default:"true"`
	UseCurrentDay       bool       `yaml:"use_current_day" default:"true"`
	UsePreviousWeek     bool       `yaml:"use_previous_week" default:"true"`
	SweepWindowBars     int        `yaml:"sweep_window_bars" default:"10" validate:"gte=1"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
