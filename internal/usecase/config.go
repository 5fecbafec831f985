package usecase

import (
	"github.com/creasty/defaults"

	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/services/cascade"
	"SmartFlow/internal/services/confirm"
	"SmartFlow/internal/services/entryzone"
	"SmartFlow/internal/services/liquidity"
	"SmartFlow/internal/services/phase"
	"SmartFlow/internal/services/structure"
)

// SessionConfig selects the timeframes each stage reads and bounds the session state.
type SessionConfig struct {
	ExecutionTF   string `yaml:"execution_tf" default:"15m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	StructureTF   string `yaml:"structure_tf" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	BiasTF        string `yaml:"bias_tf" default:"4h" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	BiasPivot     int    `yaml:"bias_pivot" default:"3" validate:"gte=1,lte=20"`
	OpenBars      int    `yaml:"open_bars" default:"2" validate:"gte=0,lte=10"`
	SignalHistory int    `yaml:"signal_history" default:"60" validate:"gte=1,lte=1000"`
	CatchUpBars   int    `yaml:"catch_up_bars" default:"50" validate:"gte=1,lte=1000"`
}

// InstrumentConfig describes the traded instrument's price grid.
type InstrumentConfig struct {
	TickSize float64 `yaml:"tick_size" default:"0.00001" validate:"gt=0"`
}

// StrategyConfig is the whole strategy surface. Invalid fields fall back to their defaults.
type StrategyConfig struct {
	Session      SessionConfig    `yaml:"session"`
	Instrument   InstrumentConfig `yaml:"instrument"`
	Liquidity    liquidity.Config `yaml:"liquidity"`
	Structure    structure.Config `yaml:"structure"`
	EntryZone    entryzone.Config `yaml:"entry_zone"`
	Confirmation confirm.Config   `yaml:"confirmation"`
	Cascades     cascade.Config   `yaml:"cascades"`
	Phase        phase.Config     `yaml:"phase"`
}

// DefaultStrategyConfig returns every documented default.
func DefaultStrategyConfig() StrategyConfig {
	var c StrategyConfig
	_ = defaults.Set(&c)
	c.Confirmation.Weights = confirm.DefaultWeights()
	return c
}

// Timeframes lists every timeframe the strategy reads, ascending.
func (c StrategyConfig) Timeframes() []domrepo.Timeframe {
	need := map[domrepo.Timeframe]bool{
		domrepo.Timeframe(c.Session.ExecutionTF): true,
		domrepo.Timeframe(c.Session.StructureTF): true,
		domrepo.Timeframe(c.Session.BiasTF):      true,
	}
	for _, n := range cascade.Names {
		st := c.Cascades.For(n)
		need[domrepo.Timeframe(st.HTF)] = true
		need[domrepo.Timeframe(st.Mid)] = true
		need[domrepo.Timeframe(st.LTF)] = true
	}
	var out []domrepo.Timeframe
	for _, tf := range domrepo.Timeframes {
		if need[tf] {
			out = append(out, tf)
		}
	}
	return out
}
