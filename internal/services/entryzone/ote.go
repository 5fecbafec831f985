package entryzone

import (
	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/swing"
)

// OTEFromImpulse returns the 61.8%-79% retracement band of the impulse from
// start to end. A bullish impulse needs end > start, a bearish one end < start.
func OTEFromImpulse(dir models.Direction, start, end float64) (models.OTEZone, bool) {
	r := end - start
	switch dir {
	case models.Bullish:
		if r <= 0 {
			return models.OTEZone{}, false
		}
	case models.Bearish:
		if r >= 0 {
			return models.OTEZone{}, false
		}
	default:
		return models.OTEZone{}, false
	}
	z := models.OTEZone{Direction: dir, Start: start, End: end}
	shallow, deep := z.Level(models.OTEShallow), z.Level(models.OTEDeep)
	if shallow < deep {
		z.Low, z.High = shallow, deep
	} else {
		z.Low, z.High = deep, shallow
	}
	z.Mid = (z.Low + z.High) / 2
	z.Levels = make([]models.FibLevel, len(models.FibRatios))
	for i, ratio := range models.FibRatios {
		z.Levels[i] = models.FibLevel{Ratio: ratio, Price: z.Level(ratio)}
	}
	return z, true
}

// Deriver computes entry zones from structure-shift signals.
type Deriver struct {
	cfg Config
	in  models.Instrument
}

// New creates a Deriver for one instrument.
func New(cfg Config, in models.Instrument) *Deriver {
	return &Deriver{cfg: cfg, in: in}
}

// FromStructureShift anchors the impulse at the last opposite swing before the
// break (or the extreme since the broken swing when none is visible) and ends
// it at the break bar's extreme.
func (d *Deriver) FromStructureShift(series models.Series, sig models.StructureShiftSignal) (models.OTEZone, bool) {
	if !series.InRange(sig.Index) {
		return models.OTEZone{}, false
	}
	startIdx, start := d.impulseStart(series, sig)
	end := extreme(series[sig.Index], sig.Direction)
	z, ok := OTEFromImpulse(sig.Direction, start, end)
	if !ok {
		return models.OTEZone{}, false
	}
	z.Source = models.OTEFromShift
	z.StartIndex, z.EndIndex = startIdx, sig.Index
	return z, true
}

func (d *Deriver) impulseStart(series models.Series, sig models.StructureShiftSignal) (int, float64) {
	if sig.Direction == models.Bullish {
		if p, ok := swing.LastSwingLow(series, sig.Index, d.cfg.Pivot, d.cfg.MaxLookback); ok {
			return p.Index, p.Price
		}
		v, idx := series.LowestLow(sig.SwingIndex, sig.Index)
		return idx, v
	}
	if p, ok := swing.LastSwingHigh(series, sig.Index, d.cfg.Pivot, d.cfg.MaxLookback); ok {
		return p.Index, p.Price
	}
	v, idx := series.HighestHigh(sig.SwingIndex, sig.Index)
	return idx, v
}

func extreme(b models.Bar, dir models.Direction) float64 {
	if dir == models.Bullish {
		return b.High
	}
	return b.Low
}

// ContinuationStatus tells how a continuation OTE was resolved.
type ContinuationStatus string

const (
	ContinuationBase       ContinuationStatus = "base"
	ContinuationReanchored ContinuationStatus = "reanchored"
	ContinuationDeferred   ContinuationStatus = "deferred"
)

// Continuation re-anchors the impulse end for trends that ran past the break.
// It looks for the first opposite micro-break after the break bar (a close
// below the previous low for bullish) and ends the impulse at the most extreme
// price reached before it. If price extended without any micro-break the zone
// is deferred.
func (d *Deriver) Continuation(series models.Series, sig models.StructureShiftSignal, upTo int) (models.OTEZone, ContinuationStatus, bool) {
	base, ok := d.FromStructureShift(series, sig)
	if !ok {
		return models.OTEZone{}, ContinuationBase, false
	}
	if upTo >= len(series) {
		upTo = len(series) - 1
	}
	for k := sig.Index + 1; k <= upTo; k++ {
		if !microBreak(series, k, sig.Direction) {
			continue
		}
		endIdx, end := d.extremeBetween(series, sig.Direction, sig.Index, k-1)
		if endIdx == sig.Index {
			return base, ContinuationBase, true
		}
		z, ok := OTEFromImpulse(sig.Direction, base.Start, end)
		if !ok {
			return models.OTEZone{}, ContinuationBase, false
		}
		z.Source = models.OTEFromContinuation
		z.StartIndex, z.EndIndex = base.StartIndex, endIdx
		return z, ContinuationReanchored, true
	}
	if endIdx, _ := d.extremeBetween(series, sig.Direction, sig.Index, upTo); endIdx != sig.Index {
		return models.OTEZone{}, ContinuationDeferred, false
	}
	return base, ContinuationBase, true
}

func microBreak(series models.Series, k int, dir models.Direction) bool {
	if dir == models.Bullish {
		return series[k].Close < series[k-1].Low
	}
	return series[k].Close > series[k-1].High
}

// extremeBetween returns the index and price of the impulse-direction extreme
// over [from, to]; ties keep the earliest bar.
func (d *Deriver) extremeBetween(series models.Series, dir models.Direction, from, to int) (int, float64) {
	if dir == models.Bullish {
		v, idx := series.HighestHigh(from, to)
		return idx, v
	}
	v, idx := series.LowestLow(from, to)
	return idx, v
}

// SweepToShift anchors the impulse from the sweep candle's extreme to the bar
// immediately preceding the structure shift.
func (d *Deriver) SweepToShift(series models.Series, sweep models.SweepEvent, sig models.StructureShiftSignal) (models.OTEZone, bool) {
	prev := sig.Index - 1
	if !series.InRange(prev) || sweep.Index >= sig.Index || sweep.Direction != sig.Direction.Opposite() {
		return models.OTEZone{}, false
	}
	start := sweep.Low
	if sig.Direction == models.Bearish {
		start = sweep.High
	}
	z, ok := OTEFromImpulse(sig.Direction, start, extreme(series[prev], sig.Direction))
	if !ok {
		return models.OTEZone{}, false
	}
	z.Source = models.OTEFromSweep
	z.StartIndex, z.EndIndex = sweep.Index, prev
	return z, true
}
