package entryzone

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
)

var tick = models.Instrument{Symbol: "TEST", TickSize: 0.01}

func TestOTEFromImpulseBullish(t *testing.T) {
	z, ok := OTEFromImpulse(models.Bullish, 1.10000, 1.11000)
	require.True(t, ok)
	assert.InDelta(t, 1.1021, z.Low, 1e-9)
	assert.InDelta(t, 1.10382, z.High, 1e-9)
	assert.InDelta(t, (1.1021+1.10382)/2, z.Mid, 1e-9)
	require.Len(t, z.Levels, len(models.FibRatios))
	assert.InDelta(t, 1.11, z.Levels[0].Price, 1e-12)
	assert.InDelta(t, 1.10, z.Levels[len(z.Levels)-1].Price, 1e-12)
	assert.True(t, z.Valid())
}

func TestOTEFromImpulseBearish(t *testing.T) {
	z, ok := OTEFromImpulse(models.Bearish, 1.11, 1.10)
	require.True(t, ok)
	assert.InDelta(t, 1.10618, z.Low, 1e-9)
	assert.InDelta(t, 1.1079, z.High, 1e-9)
}

func TestOTEFromImpulseRejectsDegenerate(t *testing.T) {
	_, ok := OTEFromImpulse(models.Bullish, 1.1, 1.1)
	assert.False(t, ok)
	_, ok = OTEFromImpulse(models.Bullish, 1.2, 1.1)
	assert.False(t, ok)
	_, ok = OTEFromImpulse(models.Bearish, 1.1, 1.2)
	assert.False(t, ok)
	_, ok = OTEFromImpulse(models.DirectionNone, 1.1, 1.2)
	assert.False(t, ok)
}

func TestOTEBoundsStrictlyInsideImpulse(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 1000; n++ {
		start := rng.Float64() * 1000
		end := start + (rng.Float64()-0.5)*100
		dir := models.Bullish
		if end < start {
			dir = models.Bearish
		}
		z, ok := OTEFromImpulse(dir, start, end)
		if start == end {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		lo, hi := start, end
		if lo > hi {
			lo, hi = hi, lo
		}
		assert.LessOrEqual(t, z.Low, z.High)
		assert.Greater(t, z.Low, lo)
		assert.Less(t, z.High, hi)
	}
}

func TestOTEZoneBarChecks(t *testing.T) {
	z, _ := OTEFromImpulse(models.Bullish, 100, 110)
	assert.True(t, z.Touched(models.Bar{High: 105, Low: 102, Close: 104}))
	assert.False(t, z.Touched(models.Bar{High: 109, Low: 106, Close: 108}))
	assert.True(t, z.Contains(z.Mid))
	assert.True(t, z.Invalidated(models.Bar{Close: 99.9}))
	assert.False(t, z.Invalidated(models.Bar{Close: 100}))
}

// shiftSeries: swing low 9.4 at index 3, break of the swing high 11 at index 5.
func shiftSeries(extra ...modeltest.OHLC) models.Series {
	bars := []modeltest.OHLC{
		{10, 10.5, 9.5, 10},
		{10, 11, 9.8, 10.6},
		{10.6, 10.7, 9.6, 9.8},
		{9.8, 10.2, 9.4, 10},
		{10, 10.4, 9.9, 10.3},
		{10.3, 12, 10.2, 11.9},
	}
	return modeltest.Series(5*time.Minute, append(bars, extra...)...)
}

var bullishShift = models.StructureShiftSignal{Direction: models.Bullish, Index: 5, SwingIndex: 1, BreakLevel: 11}

func TestFromStructureShift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pivot = 1
	z, ok := New(cfg, tick).FromStructureShift(shiftSeries(), bullishShift)
	require.True(t, ok)
	assert.Equal(t, models.OTEFromShift, z.Source)
	assert.Equal(t, 3, z.StartIndex)
	assert.Equal(t, 5, z.EndIndex)
	assert.InDelta(t, 9.4, z.Start, 1e-12)
	assert.InDelta(t, 12, z.End, 1e-12)
	assert.InDelta(t, 12-0.79*2.6, z.Low, 1e-9)
	assert.InDelta(t, 12-0.618*2.6, z.High, 1e-9)

	// no visible pivot: falls back to the lowest low since the broken swing
	z, ok = New(DefaultConfig(), tick).FromStructureShift(shiftSeries(), bullishShift)
	require.True(t, ok)
	assert.InDelta(t, 9.4, z.Start, 1e-12)

	_, ok = New(cfg, tick).FromStructureShift(shiftSeries()[:5], bullishShift)
	assert.False(t, ok)
}

func TestContinuationDefersThenReanchors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pivot = 1
	d := New(cfg, tick)

	extended := shiftSeries(
		modeltest.OHLC{11.9, 12.5, 11.8, 12.4},
		modeltest.OHLC{12.4, 12.8, 12.3, 12.7},
	)
	_, status, ok := d.Continuation(extended, bullishShift, 7)
	assert.False(t, ok)
	assert.Equal(t, ContinuationDeferred, status)

	reversed := shiftSeries(
		modeltest.OHLC{11.9, 12.5, 11.8, 12.4},
		modeltest.OHLC{12.4, 12.8, 12.3, 12.7},
		modeltest.OHLC{12.7, 12.75, 12.0, 12.1},
	)
	z, status, ok := d.Continuation(reversed, bullishShift, 8)
	require.True(t, ok)
	assert.Equal(t, ContinuationReanchored, status)
	assert.Equal(t, models.OTEFromContinuation, z.Source)
	assert.Equal(t, 7, z.EndIndex)
	assert.InDelta(t, 12.8, z.End, 1e-12)
	assert.InDelta(t, 9.4, z.Start, 1e-12)
	assert.InDelta(t, 12.8-0.79*3.4, z.Low, 1e-9)
	assert.InDelta(t, 12.8-0.618*3.4, z.High, 1e-9)
}

func TestContinuationBaseCases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pivot = 1
	d := New(cfg, tick)

	z, status, ok := d.Continuation(shiftSeries(), bullishShift, 5)
	require.True(t, ok)
	assert.Equal(t, ContinuationBase, status)
	assert.Equal(t, models.OTEFromShift, z.Source)

	immediate := shiftSeries(modeltest.OHLC{11.9, 11.95, 10.0, 10.1})
	z, status, ok = d.Continuation(immediate, bullishShift, 6)
	require.True(t, ok)
	assert.Equal(t, ContinuationBase, status)
	assert.InDelta(t, 12, z.End, 1e-12)
}

func TestSweepToShift(t *testing.T) {
	d := New(DefaultConfig(), tick)
	sweep := models.SweepEvent{Index: 3, Direction: models.Bearish, Low: 9.4, High: 10.2}

	z, ok := d.SweepToShift(shiftSeries(), sweep, bullishShift)
	require.True(t, ok)
	assert.Equal(t, models.OTEFromSweep, z.Source)
	assert.Equal(t, 3, z.StartIndex)
	assert.Equal(t, 4, z.EndIndex)
	assert.InDelta(t, 10.4-0.79, z.Low, 1e-9)
	assert.InDelta(t, 10.4-0.618, z.High, 1e-9)

	wrong := sweep
	wrong.Direction = models.Bullish
	_, ok = d.SweepToShift(shiftSeries(), wrong, bullishShift)
	assert.False(t, ok)

	late := sweep
	late.Index = 5
	_, ok = d.SweepToShift(shiftSeries(), late, bullishShift)
	assert.False(t, ok)
}

func obSeries(extra ...modeltest.OHLC) models.Series {
	bars := []modeltest.OHLC{
		{10, 10.2, 9.8, 10},
		{10.1, 10.3, 9.9, 9.95},
		{9.95, 10.5, 9.85, 10.45},
		{10.45, 10.6, 10.4, 10.55},
	}
	return modeltest.Series(time.Hour, append(bars, extra...)...)
}

func TestReactionZonesOrderBlock(t *testing.T) {
	zones := New(DefaultConfig(), tick).ReactionZones(obSeries(), 3)
	require.Len(t, zones, 1)
	z := zones[0]
	assert.Equal(t, models.OrderBlock, z.Kind)
	assert.Equal(t, models.Bullish, z.Direction)
	assert.Equal(t, 1, z.Index)
	assert.True(t, z.LiquidityGrab)
	assert.InDelta(t, 10.3, z.High, 1e-12)
	assert.InDelta(t, 9.9, z.Low, 1e-12)
	assert.InDelta(t, 9.83, z.Stop, 1e-9)
	assert.Equal(t, 32, z.ExpiresAt)
}

func TestReactionZonesBreakerConversion(t *testing.T) {
	s := obSeries(modeltest.OHLC{10.55, 10.56, 9.7, 9.75})
	zones := New(DefaultConfig(), tick).ReactionZones(s, 4)
	require.Len(t, zones, 1)
	z := zones[0]
	assert.Equal(t, models.BreakerBlock, z.Kind)
	assert.Equal(t, models.Bearish, z.Direction)
	assert.Equal(t, 4, z.BrokenAt)
	assert.InDelta(t, 10.32, z.Stop, 1e-9)
	assert.Equal(t, 34, z.ExpiresAt)
}

func TestReactionZonesLiquidityGrabRequirement(t *testing.T) {
	s := obSeries()
	s[2].Low = 9.9

	assert.Empty(t, New(DefaultConfig(), tick).ReactionZones(s, 3))

	cfg := DefaultConfig()
	cfg.RequireLiquidityGrab = false
	zones := New(cfg, tick).ReactionZones(s, 3)
	require.Len(t, zones, 1)
	assert.False(t, zones[0].LiquidityGrab)
}

func TestReactionZonesExpire(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidityBars = 1
	d := New(cfg, tick)

	assert.Len(t, d.ReactionZones(obSeries(), 3), 1)
	s := obSeries(modeltest.OHLC{10.55, 10.58, 10.5, 10.56})
	assert.Empty(t, d.ReactionZones(s, 4))
}
