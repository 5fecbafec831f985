package structure

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
)

func testConfig() Config {
	c := DefaultConfig()
	c.Pivot = 1
	c.ATRPeriod = 3
	c.MedianWindow = 3
	c.MinDisplacementATR = 0.5
	c.MedianFactor = 0.5
	c.RequireSweep = false
	return c
}

// breakSeries has a swing high of 11 at index 1 that bar 5 closes through.
func breakSeries() models.Series {
	return modeltest.Series(5*time.Minute,
		modeltest.OHLC{10, 10.5, 9.5, 10},
		modeltest.OHLC{10, 11, 9.8, 10.6},
		modeltest.OHLC{10.6, 10.7, 9.6, 9.8},
		modeltest.OHLC{9.8, 10.2, 9.4, 10},
		modeltest.OHLC{10, 10.4, 9.9, 10.3},
		modeltest.OHLC{10.3, 12, 10.2, 11.9},
	)
}

func mirror(s models.Series) models.Series {
	out := make(models.Series, len(s))
	for i, b := range s {
		out[i] = models.Bar{Time: b.Time, Open: 20 - b.Open, High: 20 - b.Low, Low: 20 - b.High, Close: 20 - b.Close, Volume: b.Volume}
	}
	return out
}

func TestDetectBullishShift(t *testing.T) {
	res, err := New(testConfig()).Detect(breakSeries(), 5, Evidence{})
	require.NoError(t, err)
	require.True(t, res.Emitted(), "reason %s", res.Reason)

	sig := res.Signal
	assert.Equal(t, models.Bullish, sig.Direction)
	assert.Equal(t, 5, sig.Index)
	assert.InDelta(t, 11, sig.BreakLevel, 1e-12)
	assert.Equal(t, 1, sig.SwingIndex)
	assert.InDelta(t, 0.9, sig.Displacement, 1e-9)
	assert.InDelta(t, 0.5*2.5/3, sig.Threshold, 1e-9)
	assert.False(t, sig.HasGap)
	assert.False(t, sig.HadSweep)
	assert.Equal(t, 25, sig.ExpiresAt)
	assert.Equal(t, models.ZoneOfInterest{Source: models.ZoneSourceReaction, Index: 2, Low: 9.8, High: 10.6}, sig.Zone)
}

func TestDetectBearishShiftMirrors(t *testing.T) {
	res, err := New(testConfig()).Detect(mirror(breakSeries()), 5, Evidence{})
	require.NoError(t, err)
	require.True(t, res.Emitted(), "reason %s", res.Reason)
	assert.Equal(t, models.Bearish, res.Signal.Direction)
	assert.InDelta(t, 9, res.Signal.BreakLevel, 1e-12)
	assert.Equal(t, models.ZoneSourceReaction, res.Signal.Zone.Source)
}

func TestDetectGatesInOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ev     Evidence
		want   RejectReason
	}{
		{"body ratio", func(c *Config) { c.MinBodyRatio = 0.9 }, Evidence{}, ReasonBodyRatio},
		{"displacement atr leg", func(c *Config) { c.MinDisplacementATR = 1.1 }, Evidence{}, ReasonDisplacement},
		{"displacement median leg", func(c *Config) { c.MedianFactor = 1.2 }, Evidence{}, ReasonDisplacement},
		{"bias", func(c *Config) { c.RequireBiasAlignment = true }, Evidence{Bias: models.Bearish}, ReasonBias},
		{"bias required but unset", func(c *Config) { c.RequireBiasAlignment = true }, Evidence{}, ReasonBias},
		{"sweep", func(c *Config) { c.RequireSweep = true }, Evidence{}, ReasonSweep},
		{"same-direction sweep does not count", func(c *Config) { c.RequireSweep = true },
			Evidence{Sweeps: []models.SweepEvent{{Index: 3, Direction: models.Bullish}}}, ReasonSweep},
		{"gap", func(c *Config) { c.RequireGap = true }, Evidence{}, ReasonGap},
		{"body composition", func(c *Config) { c.CompositionMode = CompositionBody; c.BodyPctMin = 95 }, Evidence{}, ReasonComposition},
		{"wick composition", func(c *Config) { c.CompositionMode = CompositionWick }, Evidence{}, ReasonComposition},
		// body ratio fails first even though displacement would too
		{"first failing gate wins", func(c *Config) { c.MinBodyRatio = 0.9; c.MinDisplacementATR = 5 }, Evidence{}, ReasonBodyRatio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			res, err := New(cfg).Detect(breakSeries(), 5, tt.ev)
			require.NoError(t, err)
			assert.False(t, res.Emitted())
			assert.Equal(t, tt.want, res.Reason)
			assert.Equal(t, models.Bullish, res.Candidate)
		})
	}
}

func TestDetectPassingVariants(t *testing.T) {
	cfg := testConfig()
	cfg.RequireBiasAlignment = true
	res, err := New(cfg).Detect(breakSeries(), 5, Evidence{Bias: models.Bullish})
	require.NoError(t, err)
	assert.True(t, res.Emitted())

	cfg = testConfig()
	cfg.CompositionMode = CompositionCombined
	res, err = New(cfg).Detect(breakSeries(), 5, Evidence{})
	require.NoError(t, err)
	require.True(t, res.Emitted())
	assert.InDelta(t, 1.7/1.8*100, res.Signal.CombinedPct, 1e-9)
}

func TestDetectExternalSweep(t *testing.T) {
	cfg := testConfig()
	cfg.RequireSweep = true
	sweep := models.SweepEvent{Index: 3, Direction: models.Bearish, Price: 9.5}

	res, err := New(cfg).Detect(breakSeries(), 5, Evidence{Sweeps: []models.SweepEvent{sweep}})
	require.NoError(t, err)
	require.True(t, res.Emitted())
	assert.True(t, res.Signal.HadSweep)
	assert.Equal(t, models.SweepSourceExternal, res.Signal.SweepSource)
	require.NotNil(t, res.Signal.Sweep)
	assert.Equal(t, 3, res.Signal.Sweep.Index)

	// a sweep from the future is ignored
	sweep.Index = 6
	res, err = New(cfg).Detect(breakSeries(), 5, Evidence{Sweeps: []models.SweepEvent{sweep}})
	require.NoError(t, err)
	assert.Equal(t, ReasonSweep, res.Reason)
}

func TestDetectInternalSweep(t *testing.T) {
	s := breakSeries()
	s[4].Low = 9.3
	cfg := testConfig()
	cfg.RequireSweep = true

	res, err := New(cfg).Detect(s, 5, Evidence{})
	require.NoError(t, err)
	require.True(t, res.Emitted(), "reason %s", res.Reason)
	assert.Equal(t, models.SweepSourceInternal, res.Signal.SweepSource)
	assert.Nil(t, res.Signal.Sweep)
}

func TestDetectGapBecomesZoneOfInterest(t *testing.T) {
	s := breakSeries()
	s[5].Low = 10.25
	cfg := testConfig()
	cfg.RequireGap = true

	res, err := New(cfg).Detect(s, 5, Evidence{})
	require.NoError(t, err)
	require.True(t, res.Emitted(), "reason %s", res.Reason)
	assert.True(t, res.Signal.HasGap)
	assert.Equal(t, models.ZoneSourceGap, res.Signal.Zone.Source)
	assert.InDelta(t, 10.2, res.Signal.Zone.Low, 1e-12)
	assert.InDelta(t, 10.25, res.Signal.Zone.High, 1e-12)

	cfg.MinGapPercent = 1
	res, err = New(cfg).Detect(s, 5, Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ReasonGap, res.Reason)
}

func TestDetectGap(t *testing.T) {
	s := modeltest.Series(time.Minute,
		modeltest.OHLC{100, 101, 99, 100.5},
		modeltest.OHLC{100.5, 104, 100.4, 103.8},
		modeltest.OHLC{103.8, 105, 102, 104.5},
	)
	g, ok := DetectGap(s, 2, models.Bullish, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 101, g.Low, 1e-12)
	assert.InDelta(t, 102, g.High, 1e-12)
	assert.InDelta(t, 1/103.8*100, g.SizePct, 1e-9)

	_, ok = DetectGap(s, 2, models.Bullish, 1)
	assert.False(t, ok)
	_, ok = DetectGap(s, 2, models.Bearish, 0)
	assert.False(t, ok)
	_, ok = DetectGap(s, 1, models.Bullish, 0)
	assert.False(t, ok)
}

func TestDetectNotYetConditions(t *testing.T) {
	d := New(testConfig())

	res, err := d.Detect(breakSeries(), 2, Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientData, res.Reason)

	res, err = d.Detect(breakSeries(), 4, Evidence{})
	require.NoError(t, err)
	assert.Equal(t, ReasonNoCandidate, res.Reason)

	_, err = d.Detect(breakSeries(), 6, Evidence{})
	assert.True(t, errors.Is(err, models.ErrIndexOutOfRange))
}

func randomWalk(n int, seed int64) models.Series {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]modeltest.OHLC, n)
	price := 100.0
	for i := range bars {
		open := price
		closeP := open + rng.NormFloat64()
		high := mathMax(open, closeP) + rng.Float64()*0.8
		low := mathMin(open, closeP) - rng.Float64()*0.8
		bars[i] = modeltest.OHLC{open, high, low, closeP}
		price = closeP
	}
	return modeltest.Series(time.Minute, bars...)
}

func mathMax(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func mathMin(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func emittedIndices(t *testing.T, cfg Config, s models.Series) map[int]models.Direction {
	t.Helper()
	sigs, err := New(cfg).Scan(s, 0, len(s)-1, Evidence{})
	require.NoError(t, err)
	out := make(map[int]models.Direction, len(sigs))
	for _, sig := range sigs {
		out[sig.Index] = sig.Direction
	}
	return out
}

func TestStricterThresholdsOnlyShrinkSignals(t *testing.T) {
	s := randomWalk(400, 7)
	base := DefaultConfig()
	base.RequireSweep = false
	base.MinBodyRatio = 0
	base.MinDisplacementATR = 0
	base.MedianFactor = 0

	prev := emittedIndices(t, base, s)
	require.NotEmpty(t, prev)
	for _, atr := range []float64{0.25, 0.5, 1, 2} {
		cfg := base
		cfg.MinDisplacementATR = atr
		got := emittedIndices(t, cfg, s)
		for i, dir := range got {
			assert.Equal(t, dir, prev[i], "index %d appeared at MinDisplacementATR=%v", i, atr)
		}
		prev = got
	}

	prev = emittedIndices(t, base, s)
	for _, ratio := range []float64{0.2, 0.4, 0.6, 0.8} {
		cfg := base
		cfg.MinBodyRatio = ratio
		got := emittedIndices(t, cfg, s)
		for i, dir := range got {
			assert.Equal(t, dir, prev[i], "index %d appeared at MinBodyRatio=%v", i, ratio)
		}
		prev = got
	}
}

func TestScanIsDeterministic(t *testing.T) {
	s := randomWalk(300, 11)
	cfg := DefaultConfig()
	cfg.RequireSweep = false
	d := New(cfg)
	a, err := d.Scan(s, 0, len(s)-1, Evidence{})
	require.NoError(t, err)
	b, err := d.Scan(s, 0, len(s)-1, Evidence{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	one, err := d.Scan(breakSeries(), 0, 5, Evidence{})
	require.NoError(t, err)
	assert.Empty(t, one, "default pivot is too wide for six bars")
}
