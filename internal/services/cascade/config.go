package cascade

import "time"

// Settings describes one named cascade.
type Settings struct {
	HTF     string        `yaml:"htf" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Mid     string        `yaml:"mid" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	LTF     string        `yaml:"ltf" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Config holds every cascade's settings.
type Config struct {
	Bias      Settings `yaml:"bias"`
	Execution Settings `yaml:"execution"`
}

// SetDefaults implements defaults.Setter. The two cascades default to
// different timeframe triples, so struct tags cannot express them.
func (c *Config) SetDefaults() {
	fill(&c.Bias, Settings{HTF: "1d", Mid: "4h", LTF: "1h", Timeout: 72 * time.Hour})
	fill(&c.Execution, Settings{HTF: "1h", Mid: "15m", LTF: "5m", Timeout: 4 * time.Hour})
}

func fill(s *Settings, def Settings) {
	if s.HTF == "" {
		s.HTF = def.HTF
	}
	if s.Mid == "" {
		s.Mid = def.Mid
	}
	if s.LTF == "" {
		s.LTF = def.LTF
	}
	if s.Timeout <= 0 {
		s.Timeout = def.Timeout
	}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// For returns the settings of a cascade.
func (c Config) For(n Name) Settings {
	if n == Bias {
		return c.Bias
	}
	return c.Execution
}
