package confirm

import (
	"sync"

	"SmartFlow/pkg/logger"
)

// Verdict is the admit/reject decision for one tag set.
type Verdict struct {
	Admit    bool    `json:"admit"`
	Policy   Policy  `json:"policy"`
	Score    float64 `json:"score,omitempty"`
	Missing  []Tag   `json:"missing,omitempty"`
	Tags     []Tag   `json:"tags"`
	Conflict bool    `json:"conflict,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Has reports whether the evaluated tag set contained tag.
func (v Verdict) Has(tag Tag) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Gate applies a single effective policy to canonicalized tags.
type Gate struct {
	cfg      Config
	policy   Policy
	conflict bool
	weights  map[Tag]float64
	log      *logger.Logger
	warnOnce sync.Once
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger attaches a logger used to report a policy conflict once.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// NewGate resolves the effective policy. An explicit unified policy always
// takes precedence over legacy flags; both being set is flagged as a conflict.
func NewGate(cfg Config, opts ...Option) *Gate {
	g := &Gate{cfg: cfg, policy: cfg.Policy}
	if g.policy == PolicyLegacy {
		g.policy = cfg.legacyPolicy()
	} else if cfg.legacySet() {
		g.conflict = true
	}
	weights := cfg.Weights
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	g.weights = foldWeights(weights)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// foldWeights maps weight keys onto canonical tags. A key spelled as the
// canonical tag wins over its aliases; among aliases the largest weight
// wins, so the result does not depend on map order.
func foldWeights(weights map[string]float64) map[Tag]float64 {
	out := make(map[Tag]float64, len(weights))
	exact := make(map[Tag]bool, len(weights))
	for k, w := range weights {
		key := normalize(k)
		tag, ok := synonyms[key]
		if !ok {
			tag = Tag(key)
		}
		isCanonical := string(tag) == key
		switch {
		case exact[tag]:
		case isCanonical:
			out[tag] = w
			exact[tag] = true
		default:
			if cur, seen := out[tag]; !seen || w > cur {
				out[tag] = w
			}
		}
	}
	return out
}

// Policy returns the effective policy.
func (g *Gate) Policy() Policy { return g.policy }

// Conflict reports whether legacy flags were overridden by a unified policy.
func (g *Gate) Conflict() bool { return g.conflict }

// Evaluate canonicalizes tags and applies the effective policy.
func (g *Gate) Evaluate(raw []string) Verdict {
	set := Canonicalize(raw, g.cfg.CollapseConfirmed)
	return g.EvaluateSet(set)
}

// EvaluateSet applies the effective policy to an already canonical set.
func (g *Gate) EvaluateSet(set TagSet) Verdict {
	if g.conflict && g.log != nil {
		g.warnOnce.Do(func() {
			g.log.Warn("confirmation policy overrides legacy flags",
				logger.String("policy", string(g.policy)),
				logger.String("legacy", string(g.cfg.legacyPolicy())),
			)
		})
	}
	v := Verdict{Policy: g.policy, Tags: set.Tags(), Conflict: g.conflict}
	switch g.policy {
	case PolicyShiftOnly:
		v.Missing = missing(set, TagStructureShift)
	case PolicyShiftAndOTE:
		v.Missing = missing(set, TagStructureShift, TagOptimalEntry)
	case PolicyTriple:
		v.Missing = missing(set, TagStructureShift, TagBreaker, TagGap)
		if len(v.Missing) == 0 && g.cfg.TripleStrictOrder && !strictOrder(set) {
			v.Reason = "order"
			return v
		}
	case PolicyScoring:
		v.Score = g.score(set)
		v.Admit = v.Score >= g.cfg.MinScore
		if !v.Admit {
			v.Reason = "score"
		}
		return v
	default:
		v.Admit = set.Len() > 0
		if !v.Admit {
			v.Reason = "empty"
		}
		return v
	}
	v.Admit = len(v.Missing) == 0
	if !v.Admit {
		v.Reason = "missing"
	}
	return v
}

func missing(set TagSet, required ...Tag) []Tag {
	var out []Tag
	for _, t := range required {
		if t == TagStructureShift {
			if !set.hasShift() {
				out = append(out, t)
			}
			continue
		}
		if !set.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// strictOrder requires sweep, shift, breaker and gap in that order.
func strictOrder(set TagSet) bool {
	idx := []int{set.Index(TagSweep), set.shiftIndex(), set.Index(TagBreaker), set.Index(TagGap)}
	if idx[0] < 0 {
		return false
	}
	return idx[0] < idx[1] && idx[1] < idx[2] && idx[2] < idx[3]
}

// score sums weights over distinct tags only.
func (g *Gate) score(set TagSet) float64 {
	total := 0.0
	for _, t := range set.tags {
		total += g.weights[t]
	}
	return total
}
