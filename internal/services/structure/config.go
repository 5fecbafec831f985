package structure

import "github.com/creasty/defaults"

// CompositionMode selects which candle-composition test the break bar must pass.
type CompositionMode string

const (
	CompositionOff      CompositionMode = "off"
	CompositionBody     CompositionMode = "body"
	CompositionWick     CompositionMode = "wick"
	CompositionCombined CompositionMode = "combined"
	CompositionAny      CompositionMode = "any"
)

// Config controls the structure-shift gates.
type Config struct {
	Pivot                 int             `yaml:"pivot" default:"3" validate:"gte=1,lte=20"`
	MaxLookback           int             `yaml:"max_lookback" default:"100" validate:"gte=1"`
	ATRPeriod             int             `yaml:"atr_period" default:"14" validate:"gte=1"`
	MinBodyRatio          float64         `yaml:"min_body_ratio" default:"0.5" validate:"gte=0,lte=1"`
	MinDisplacementATR    float64         `yaml:"min_displacement_atr" default:"0.5" validate:"gte=0"`
	MedianFactor          float64         `yaml:"median_factor" default:"0.5" validate:"gte=0"`
	MedianWindow          int             `yaml:"median_window" default:"20" validate:"gte=1"`
	RequireBiasAlignment  bool            `yaml:"require_bias_alignment" default:"false"` // rejects every break while no bias is set
	RequireSweep          bool            `yaml:"require_sweep" default:"true"`
	SweepLookback         int             `yaml:"sweep_lookback" default:"10" validate:"gte=0"`
	InternalSweepLookback int             `yaml:"internal_sweep_lookback" default:"5" validate:"gte=1"`
	RequireGap            bool            `yaml:"require_gap" default:"false"`
	MinGapPercent         float64         `yaml:"min_gap_percent" default:"0" validate:"gte=0"`
	CompositionMode       CompositionMode `yaml:"composition_mode" default:"off" validate:"oneof=off body wick combined any"`
	BodyPctMin            float64         `yaml:"body_pct_min" default:"60" validate:"gte=0,lte=100"`
	WickPctMin            float64         `yaml:"wick_pct_min" default:"30" validate:"gte=0,lte=100"`
	CombinedPctMin        float64         `yaml:"combined_pct_min" default:"75" validate:"gte=0,lte=100"`
	ValidityBars          int             `yaml:"validity_bars" default:"20" validate:"gte=1"`
	ReactionLookback      int             `yaml:"reaction_lookback" default:"10" validate:"gte=1"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
