package confirm

import "github.com/creasty/defaults"

// Policy is a unified gating policy. The empty policy defers to the legacy flags.
type Policy string

const (
	PolicyLegacy      Policy = ""
	PolicyAny         Policy = "any"
	PolicyShiftOnly   Policy = "shift_only"
	PolicyShiftAndOTE Policy = "shift_and_ote"
	PolicyTriple      Policy = "triple"
	PolicyScoring     Policy = "scoring"
)

// Preset bundles of the legacy flags.
const (
	PresetAggressive   = "aggressive"
	PresetBalanced     = "balanced"
	PresetConservative = "conservative"
)

// Config selects the gating policy.
type Config struct {
	Policy            Policy             `yaml:"policy" default:"shift_and_ote" validate:"omitempty,oneof=any shift_only shift_and_ote triple scoring"`
	CollapseConfirmed bool               `yaml:"collapse_confirmed" default:"false"`
	TripleStrictOrder bool               `yaml:"triple_strict_order" default:"false"`
	Weights           map[string]float64 `yaml:"weights" validate:"dive,gte=0"`
	MinScore          float64            `yaml:"min_score" default:"4" validate:"gte=0"`

	RequireShift  bool   `yaml:"require_shift" default:"false"`
	RequireBoth   bool   `yaml:"require_both" default:"false"`
	RequireTriple bool   `yaml:"require_triple" default:"false"`
	Preset        string `yaml:"preset" validate:"omitempty,oneof=aggressive balanced conservative"`
}

// DefaultWeights are used for the scoring policy when none are configured.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		string(TagStructureShift):          2,
		string(TagStructureShiftConfirmed): 1,
		string(TagSweep):                   1.5,
		string(TagGap):                     1,
		string(TagBreaker):                 1,
		string(TagReactionZone):            0.5,
		string(TagOptimalEntry):            1.5,
	}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	c.Weights = DefaultWeights()
	return c
}

// legacySet reports whether any legacy flag or preset is configured.
func (c Config) legacySet() bool {
	return c.RequireShift || c.RequireBoth || c.RequireTriple || c.Preset != ""
}

// legacyPolicy maps the legacy flags onto a unified policy. The strictest
// requirement wins; with nothing set every non-empty tag set passes.
func (c Config) legacyPolicy() Policy {
	switch {
	case c.RequireTriple || c.Preset == PresetConservative:
		return PolicyTriple
	case c.RequireBoth || c.Preset == PresetBalanced:
		return PolicyShiftAndOTE
	case c.RequireShift || c.Preset == PresetAggressive:
		return PolicyShiftOnly
	default:
		return PolicyAny
	}
}
