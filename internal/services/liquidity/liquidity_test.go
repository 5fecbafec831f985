package liquidity

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
)

var fx = models.Instrument{Symbol: "EURUSD", TickSize: 0.00001}

func demandZone(low, high float64) models.LiquidityZone {
	return models.LiquidityZone{
		Start: modeltest.Epoch,
		End:   modeltest.Epoch.Add(24 * time.Hour),
		Low:   low,
		High:  high,
		Type:  models.ZoneDemand,
		Label: models.LabelSwing,
	}
}

func TestDetectSweepDemandPierceAndRevert(t *testing.T) {
	z := demandZone(1.09500, 1.09520)
	bar := models.Bar{Time: modeltest.Epoch.Add(time.Hour), Open: 1.0953, High: 1.0960, Low: 1.09450, Close: 1.09550}

	ev, ok := DetectSweep(bar, 7, z, 0)
	require.True(t, ok)
	assert.Equal(t, models.Bearish, ev.Direction)
	assert.Equal(t, 7, ev.Index)
	assert.InDelta(t, 1.09500, ev.Price, 1e-12)
	assert.Equal(t, z, ev.Zone)

	// no close back inside
	bar.Close = 1.09480
	_, ok = DetectSweep(bar, 7, z, 0)
	assert.False(t, ok)
}

func TestDetectSweepSupply(t *testing.T) {
	z := models.LiquidityZone{Start: modeltest.Epoch, End: modeltest.Epoch.Add(time.Hour), Low: 1.2, High: 1.21, Type: models.ZoneSupply}
	bar := models.Bar{Time: modeltest.Epoch, Open: 1.205, High: 1.215, Low: 1.2, Close: 1.205}

	ev, ok := DetectSweep(bar, 0, z, 0.001)
	require.True(t, ok)
	assert.Equal(t, models.Bullish, ev.Direction)

	_, ok = DetectSweep(bar, 0, z, 0.01)
	assert.False(t, ok, "pierce smaller than buffer")
}

func TestSweepBufferMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	buffers := []float64{-1, 0, 0.0001, 0.0005, 0.001, 0.005, 0.01}
	for n := 0; n < 500; n++ {
		base := 1 + rng.Float64()
		z := demandZone(base, base+rng.Float64()*0.01)
		if rng.Intn(2) == 0 {
			z.Type = models.ZoneSupply
		}
		low := base - rng.Float64()*0.02
		high := base + rng.Float64()*0.02
		bar := models.Bar{Time: modeltest.Epoch, Low: low, High: high, Open: low, Close: low + rng.Float64()*(high-low)}

		prev := true
		for _, buf := range buffers {
			_, ok := DetectSweep(bar, 0, z, buf)
			if ok {
				assert.True(t, prev, "sweep appeared when buffer grew to %v", buf)
			}
			prev = ok
		}
	}
}

func swingOnly() Config {
	c := DefaultConfig()
	c.SwingPivot = 1
	c.PadTicks = 0
	c.UsePreviousDay = false
	c.UseCurrentDay = false
	c.UsePreviousWeek = false
	return c
}

func TestBuildZonesSwingsAndEqualLevels(t *testing.T) {
	in := models.Instrument{TickSize: 0.01}
	s := modeltest.Highs(time.Minute, 0.5, 10, 12, 10, 12.02, 10, 10.5, 11)
	d := New(swingOnly())

	zones := d.BuildZones(s, len(s), in)
	labels := map[models.ZoneLabel]int{}
	for _, z := range zones {
		labels[z.Label]++
		assert.LessOrEqual(t, z.Low, z.High)
	}
	assert.Equal(t, 4, labels[models.LabelSwing])
	assert.Equal(t, 1, labels[models.LabelEqualHighs])
	assert.Equal(t, 1, labels[models.LabelEqualLows])

	for _, z := range zones {
		if z.Label == models.LabelEqualHighs {
			assert.InDelta(t, 12.5, z.Low, 1e-9)
			assert.InDelta(t, 12.52, z.High, 1e-9)
			assert.Equal(t, models.ZoneSupply, z.Type)
		}
	}
}

func TestEqualHighsRetiredOnCloseBeyond(t *testing.T) {
	in := models.Instrument{TickSize: 0.01}
	s := modeltest.Highs(time.Minute, 0.5, 10, 12, 10, 12.02, 10, 10.5, 11, 13)
	d := New(swingOnly())

	for _, z := range d.BuildZones(s, len(s), in) {
		assert.NotEqual(t, models.LabelEqualHighs, z.Label)
	}
}

func TestBuildZonesCapEvictsOldest(t *testing.T) {
	in := models.Instrument{TickSize: 0.01}
	s := modeltest.Highs(time.Minute, 0.5, 10, 12, 10, 12.02, 10, 10.5, 11)
	cfg := swingOnly()
	cfg.MaxZones = 3
	zones := New(cfg).BuildZones(s, len(s), in)

	require.Len(t, zones, 3)
	assert.Equal(t, s[4].Time, zones[len(zones)-1].Start)
	for i := 1; i < len(zones); i++ {
		assert.False(t, zones[i].Start.Before(zones[i-1].Start))
	}
}

func TestBuildZonesSessionLevels(t *testing.T) {
	in := models.Instrument{TickSize: 0.01}
	s := modeltest.Series(6*time.Hour,
		modeltest.OHLC{10, 11, 9, 10},
		modeltest.OHLC{10, 15, 9, 12},
		modeltest.OHLC{12, 13, 5, 6},
		modeltest.OHLC{6, 8, 6, 7},
		modeltest.OHLC{7, 9, 6.5, 8},
		modeltest.OHLC{8, 9, 7, 8},
	)
	cfg := DefaultConfig()
	cfg.UseSwings = false
	cfg.UseEqualLevels = false
	cfg.PadTicks = 0

	zones := New(cfg).BuildZones(s, 5, in)
	byLabel := map[models.ZoneLabel]models.LiquidityZone{}
	for _, z := range zones {
		byLabel[z.Label] = z
	}
	require.Contains(t, byLabel, models.LabelPreviousDayHigh)
	assert.InDelta(t, 15, byLabel[models.LabelPreviousDayHigh].High, 1e-9)
	assert.InDelta(t, 5, byLabel[models.LabelPreviousDayLow].Low, 1e-9)
	assert.InDelta(t, 9, byLabel[models.LabelCurrentDayHigh].High, 1e-9)
	assert.InDelta(t, 6.5, byLabel[models.LabelCurrentDayLow].Low, 1e-9)
	assert.NotContains(t, byLabel, models.LabelPreviousWeekHigh)
	assert.True(t, byLabel[models.LabelPreviousDayHigh].Active(s[5].Time))
	assert.True(t, byLabel[models.LabelPreviousDayHigh].Label.Strong())
}

func TestBufferModes(t *testing.T) {
	s := modeltest.Highs(time.Minute, 0.5, 10, 10, 10, 10, 10)
	cfg := DefaultConfig()
	cfg.ATRPeriod = 3
	cfg.BufferATRFactor = 0.5

	assert.InDelta(t, 0.5, New(cfg).Buffer(s, 4), 1e-12)
	assert.Equal(t, 0.0, New(cfg).Buffer(s, 2), "atr still priming")

	cfg.BufferMode = BufferNone
	assert.Equal(t, 0.0, New(cfg).Buffer(s, 4))
}

func TestSweepsOnlyAgainstActiveZones(t *testing.T) {
	d := New(DefaultConfig())
	s := modeltest.Series(time.Hour, modeltest.OHLC{1.0953, 1.0960, 1.0945, 1.0955})
	active := demandZone(1.095, 1.0952)
	expired := active
	expired.End = modeltest.Epoch

	got := d.Sweeps(s, 0, []models.LiquidityZone{active, expired}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, active, got[0].Zone)
	assert.Nil(t, d.Sweeps(s, 3, []models.LiquidityZone{active}, 0))
}
