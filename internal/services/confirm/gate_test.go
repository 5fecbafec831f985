package confirm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/pkg/logger"
)

func TestCanonicalizeFoldsSynonyms(t *testing.T) {
	set := Canonicalize([]string{"FVG", " order-block ", "bos", "liquidity grab", "BOS", "", "custom"}, false)
	assert.Equal(t, []Tag{TagGap, TagReactionZone, TagStructureShift, TagSweep, Tag("custom")}, set.Tags())
	assert.Equal(t, 5, set.Len())
	assert.Equal(t, 2, set.Index(TagStructureShift))
	assert.Equal(t, -1, set.Index(TagBreaker))
}

func TestCanonicalizeCollapseConfirmed(t *testing.T) {
	plain := Canonicalize([]string{"bos_confirmed", "bos"}, false)
	assert.Equal(t, []Tag{TagStructureShiftConfirmed, TagStructureShift}, plain.Tags())

	collapsed := Canonicalize([]string{"bos_confirmed", "bos"}, true)
	assert.Equal(t, []Tag{TagStructureShift}, collapsed.Tags())
}

func TestGatePolicies(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		tags   []string
		admit  bool
		policy Policy
	}{
		{"any passes with one tag", Config{Policy: PolicyAny}, []string{"custom"}, true, PolicyAny},
		{"any rejects empty", Config{Policy: PolicyAny}, nil, false, PolicyAny},
		{"shift only", Config{Policy: PolicyShiftOnly}, []string{"mss"}, true, PolicyShiftOnly},
		{"shift only accepts confirmed variant", Config{Policy: PolicyShiftOnly}, []string{"bos_confirmed"}, true, PolicyShiftOnly},
		{"shift only rejects", Config{Policy: PolicyShiftOnly}, []string{"fvg", "ote"}, false, PolicyShiftOnly},
		{"shift and ote", Config{Policy: PolicyShiftAndOTE}, []string{"ote", "bos"}, true, PolicyShiftAndOTE},
		{"shift and ote missing ote", Config{Policy: PolicyShiftAndOTE}, []string{"bos"}, false, PolicyShiftAndOTE},
		{"triple", Config{Policy: PolicyTriple}, []string{"gap", "breaker", "bos"}, true, PolicyTriple},
		{"triple missing breaker", Config{Policy: PolicyTriple}, []string{"gap", "order_block", "bos"}, false, PolicyTriple},
		{"triple strict ordered", Config{Policy: PolicyTriple, TripleStrictOrder: true},
			[]string{"sweep", "bos", "breaker", "fvg"}, true, PolicyTriple},
		{"triple strict out of order", Config{Policy: PolicyTriple, TripleStrictOrder: true},
			[]string{"sweep", "breaker", "bos", "fvg"}, false, PolicyTriple},
		{"triple strict needs sweep", Config{Policy: PolicyTriple, TripleStrictOrder: true},
			[]string{"bos", "breaker", "fvg"}, false, PolicyTriple},
		{"legacy nothing set is any", Config{}, []string{"x"}, true, PolicyAny},
		{"legacy require shift", Config{RequireShift: true}, []string{"ote"}, false, PolicyShiftOnly},
		{"legacy strictest wins", Config{RequireShift: true, RequireTriple: true}, []string{"bos"}, false, PolicyTriple},
		{"legacy preset balanced", Config{Preset: PresetBalanced}, []string{"bos", "ote"}, true, PolicyShiftAndOTE},
		{"legacy preset conservative", Config{Preset: PresetConservative}, []string{"bos", "ote"}, false, PolicyTriple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewGate(tt.cfg).Evaluate(tt.tags)
			assert.Equal(t, tt.admit, v.Admit)
			assert.Equal(t, tt.policy, v.Policy)
			assert.False(t, v.Conflict)
		})
	}
}

func TestGateMissingTags(t *testing.T) {
	v := NewGate(Config{Policy: PolicyTriple}).Evaluate([]string{"bos"})
	assert.Equal(t, []Tag{TagBreaker, TagGap}, v.Missing)
	assert.Equal(t, "missing", v.Reason)
}

func TestScoringCountsDistinctTagsOnce(t *testing.T) {
	cfg := Config{Policy: PolicyScoring, MinScore: 3, Weights: map[string]float64{"structure_shift": 2, "gap": 1}}
	g := NewGate(cfg)

	v := g.Evaluate([]string{"bos", "mss", "choch"})
	assert.InDelta(t, 2, v.Score, 1e-12)
	assert.False(t, v.Admit)

	v = g.Evaluate([]string{"bos", "fvg", "imbalance"})
	assert.InDelta(t, 3, v.Score, 1e-12)
	assert.True(t, v.Admit)
}

func TestScoringAliasWeightsFoldDeterministically(t *testing.T) {
	cases := []struct {
		name    string
		weights map[string]float64
		want    float64
	}{
		{"canonical key wins", map[string]float64{"ob": 1, "order_block": 3, "reaction_zone": 5}, 5},
		{"canonical key wins when smaller", map[string]float64{"ob": 9, "reaction_zone": 2}, 2},
		{"largest alias without canonical", map[string]float64{"ob": 1, "order_block": 3, "demand_zone": 2}, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				g := NewGate(Config{Policy: PolicyScoring, MinScore: 1, Weights: tc.weights})
				v := g.Evaluate([]string{"ob"})
				require.InDelta(t, tc.want, v.Score, 1e-12)
			}
		})
	}
}

func TestScoringDefaultWeights(t *testing.T) {
	g := NewGate(Config{Policy: PolicyScoring, MinScore: 4})
	v := g.Evaluate([]string{"sweep", "bos", "ote"})
	assert.InDelta(t, 5, v.Score, 1e-12)
	assert.True(t, v.Admit)
}

func TestUnifiedPolicyWinsOverLegacyFlags(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter(&buf, "debug")
	g := NewGate(Config{Policy: PolicyShiftOnly, RequireTriple: true, Preset: PresetConservative}, WithLogger(l))

	require.True(t, g.Conflict())
	assert.Equal(t, PolicyShiftOnly, g.Policy())

	v := g.Evaluate([]string{"bos"})
	assert.True(t, v.Admit)
	assert.True(t, v.Conflict)

	g.Evaluate([]string{"bos"})
	assert.Equal(t, 1, strings.Count(buf.String(), "confirmation policy overrides legacy flags"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, PolicyShiftAndOTE, cfg.Policy)
	assert.InDelta(t, 4, cfg.MinScore, 1e-12)
	assert.Equal(t, DefaultWeights(), cfg.Weights)
}
