package phase

import "github.com/creasty/defaults"

// RiskPair is the fixed risk percent and reward:risk target of one phase.
type RiskPair struct {
	RiskPercent float64 `yaml:"risk_percent" validate:"gt=0,lte=10"`
	RewardRisk  float64 `yaml:"reward_risk" validate:"gt=0,lte=20"`
}

// Config controls the phase state machine.
type Config struct {
	MaxPhase1Attempts int      `yaml:"max_phase1_attempts" default:"2" validate:"gte=1,lte=10"`
	Phase1            RiskPair `yaml:"phase1"`
	Phase3            RiskPair `yaml:"phase3"`
}

// SetDefaults implements defaults.Setter for the per-phase pairs.
func (c *Config) SetDefaults() {
	if c.Phase1.RiskPercent <= 0 {
		c.Phase1.RiskPercent = 0.5
	}
	if c.Phase1.RewardRisk <= 0 {
		c.Phase1.RewardRisk = 2
	}
	if c.Phase3.RiskPercent <= 0 {
		c.Phase3.RiskPercent = 1
	}
	if c.Phase3.RewardRisk <= 0 {
		c.Phase3.RewardRisk = 3
	}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}
