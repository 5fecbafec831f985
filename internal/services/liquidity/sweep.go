package liquidity

import (
	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/swing"
)

// Buffer returns the pierce buffer for evaluating bar upTo: a multiple of the
// ATR over the preceding bars in adaptive mode, zero otherwise or while the
// ATR is still priming.
func (d *Detector) Buffer(series models.Series, upTo int) float64 {
	if d.cfg.BufferMode != BufferAdaptive || upTo < 1 {
		return 0
	}
	atr, ok := swing.ATRAt(series, upTo-1, d.cfg.ATRPeriod)
	if !ok {
		return 0
	}
	return d.cfg.BufferATRFactor * atr
}

// DetectSweep tests one bar against one zone. A demand sweep trades below
// zone.Low-buffer and closes back at or above zone.Low; a supply sweep is the
// mirror. Negative buffers are treated as zero.
func DetectSweep(b models.Bar, index int, z models.LiquidityZone, buffer float64) (models.SweepEvent, bool) {
	if buffer < 0 {
		buffer = 0
	}
	ev := models.SweepEvent{
		Index: index,
		Time:  b.Time,
		Zone:  z,
		High:  b.High,
		Low:   b.Low,
		Close: b.Close,
	}
	switch z.Type {
	case models.ZoneDemand:
		if b.Low < z.Low-buffer && b.Close >= z.Low {
			ev.Price = z.Low
			ev.Direction = models.Bearish
			return ev, true
		}
	case models.ZoneSupply:
		if b.High > z.High+buffer && b.Close <= z.High {
			ev.Price = z.High
			ev.Direction = models.Bullish
			return ev, true
		}
	}
	return models.SweepEvent{}, false
}

// Sweeps tests bar i against every zone active at its time.
func (d *Detector) Sweeps(series models.Series, i int, zones []models.LiquidityZone, buffer float64) []models.SweepEvent {
	if !series.InRange(i) {
		return nil
	}
	b := series[i]
	var out []models.SweepEvent
	for _, z := range Active(zones, b.Time) {
		if ev, ok := DetectSweep(b, i, z, buffer); ok {
			out = append(out, ev)
		}
	}
	return out
}

// Scan builds zones and detects sweeps for bar i in one step.
func (d *Detector) Scan(series models.Series, i int, in models.Instrument) ([]models.LiquidityZone, []models.SweepEvent) {
	zones := d.BuildZones(series, i, in)
	return zones, d.Sweeps(series, i, zones, d.Buffer(series, i))
}
