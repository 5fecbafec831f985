package structure

import (
	"fmt"
	"math"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/swing"
)

// RejectReason names the first gate a candidate failed.
type RejectReason string

const (
	ReasonNone             RejectReason = ""
	ReasonInsufficientData RejectReason = "insufficient_data"
	ReasonNoCandidate      RejectReason = "no_candidate"
	ReasonDegenerateRange  RejectReason = "degenerate_range"
	ReasonBodyRatio        RejectReason = "body_ratio"
	ReasonDisplacement     RejectReason = "displacement"
	ReasonBias             RejectReason = "bias"
	ReasonSweep            RejectReason = "sweep"
	ReasonGap              RejectReason = "gap"
	ReasonComposition      RejectReason = "composition"
)

// Evidence is the external context available when bar i is evaluated.
type Evidence struct {
	// Bias is the higher-timeframe bias; None disables the alignment gate.
	Bias models.Direction
	// Sweeps observed on this series up to and including bar i.
	Sweeps []models.SweepEvent
}

// Result is the outcome of evaluating one bar. Signal is nil when no shift was
// emitted; Reason then names the failing gate.
type Result struct {
	Signal    *models.StructureShiftSignal
	Candidate models.Direction
	Reason    RejectReason
}

// Emitted reports whether a signal was produced.
func (r Result) Emitted() bool { return r.Signal != nil }

// Detector validates break-of-structure candidates.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect evaluates bar i. Only an index outside the series is an error; every
// "not yet" condition is reported through Result.
func (d *Detector) Detect(series models.Series, i int, ev Evidence) (Result, error) {
	if !series.InRange(i) {
		return Result{}, fmt.Errorf("structure detect at %d of %d: %w", i, len(series), models.ErrIndexOutOfRange)
	}
	if i < 2*d.cfg.Pivot+1 || i < d.cfg.ATRPeriod+1 {
		return Result{Reason: ReasonInsufficientData}, nil
	}
	atr, ok := swing.ATRAt(series, i-1, d.cfg.ATRPeriod)
	if !ok {
		return Result{Reason: ReasonInsufficientData}, nil
	}

	dir, anchor, ok := d.candidate(series, i)
	if !ok {
		return Result{Reason: ReasonNoCandidate}, nil
	}
	return d.evaluate(series, i, dir, anchor, atr, ev), nil
}

// candidate picks at most one break per bar, bullish first. The choice does not
// depend on any threshold, so tightening a gate can only remove signals.
func (d *Detector) candidate(series models.Series, i int) (models.Direction, models.SwingPoint, bool) {
	c := series[i].Close
	if hi, ok := swing.LastSwingHigh(series, i, d.cfg.Pivot, d.cfg.MaxLookback); ok && c > hi.Price {
		return models.Bullish, hi, true
	}
	if lo, ok := swing.LastSwingLow(series, i, d.cfg.Pivot, d.cfg.MaxLookback); ok && c < lo.Price {
		return models.Bearish, lo, true
	}
	return models.DirectionNone, models.SwingPoint{}, false
}

func (d *Detector) evaluate(series models.Series, i int, dir models.Direction, anchor models.SwingPoint, atr float64, ev Evidence) Result {
	bar := series[i]
	reject := func(r RejectReason) Result { return Result{Candidate: dir, Reason: r} }

	rng := bar.Range()
	if rng <= 0 {
		return reject(ReasonDegenerateRange)
	}
	if bar.Body()/rng < d.cfg.MinBodyRatio {
		return reject(ReasonBodyRatio)
	}

	displacement := math.Abs(bar.Close - anchor.Price)
	threshold := d.threshold(series, i, atr)
	if displacement < threshold {
		return reject(ReasonDisplacement)
	}

	if d.cfg.RequireBiasAlignment && ev.Bias != dir {
		return reject(ReasonBias)
	}

	sweep, source := d.findSweep(series, i, dir, ev.Sweeps)
	if d.cfg.RequireSweep && source == models.SweepSourceNone {
		return reject(ReasonSweep)
	}

	gap, hasGap := DetectGap(series, i, dir, d.cfg.MinGapPercent)
	if d.cfg.RequireGap && !hasGap {
		return reject(ReasonGap)
	}

	bodyPct, wickPct, combinedPct := composition(bar, dir)
	if !d.compositionOK(bodyPct, wickPct, combinedPct) {
		return reject(ReasonComposition)
	}

	sig := &models.StructureShiftSignal{
		Direction:    dir,
		Index:        i,
		Time:         bar.Time,
		BreakLevel:   anchor.Price,
		SwingIndex:   anchor.Index,
		Displacement: displacement,
		Threshold:    threshold,
		BodyPct:      bodyPct,
		WickPct:      wickPct,
		CombinedPct:  combinedPct,
		HasGap:       hasGap,
		HadSweep:     source != models.SweepSourceNone,
		SweepSource:  source,
		Sweep:        sweep,
		ExpiresAt:    i + d.cfg.ValidityBars,
	}
	if hasGap {
		g := gap
		sig.Gap = &g
		sig.Zone = models.ZoneOfInterest{Source: models.ZoneSourceGap, Index: i - 1, Low: g.Low, High: g.High}
	} else {
		sig.Zone = d.reactionZone(series, i, dir)
	}
	return Result{Signal: sig, Candidate: dir}
}

// threshold is max(ATR factor x ATR, median factor x median TR of the trailing window).
func (d *Detector) threshold(series models.Series, i int, atr float64) float64 {
	med := swing.Median(swing.TrueRanges(series, i-d.cfg.MedianWindow, i-1))
	return math.Max(d.cfg.MinDisplacementATR*atr, d.cfg.MedianFactor*med)
}

// findSweep prefers an external sweep pierced against dir within the sweep
// lookback; otherwise it checks whether bar i-1 took out the extreme of the
// preceding internal window in the opposite direction.
func (d *Detector) findSweep(series models.Series, i int, dir models.Direction, sweeps []models.SweepEvent) (*models.SweepEvent, models.SweepSource) {
	for k := len(sweeps) - 1; k >= 0; k-- {
		s := sweeps[k]
		if s.Direction == dir.Opposite() && s.Index <= i && s.Index >= i-d.cfg.SweepLookback {
			return &s, models.SweepSourceExternal
		}
	}
	prev := i - 1
	from := prev - d.cfg.InternalSweepLookback
	if from < 0 {
		from = 0
	}
	if prev-1 < from {
		return nil, models.SweepSourceNone
	}
	switch dir {
	case models.Bullish:
		if low, _ := series.LowestLow(from, prev-1); series[prev].Low < low {
			return nil, models.SweepSourceInternal
		}
	case models.Bearish:
		if high, _ := series.HighestHigh(from, prev-1); series[prev].High > high {
			return nil, models.SweepSourceInternal
		}
	}
	return nil, models.SweepSourceNone
}

// composition returns body, rejection wick and body+wick as percent of range.
// The rejection wick is the one opposite the break direction.
func composition(b models.Bar, dir models.Direction) (float64, float64, float64) {
	rng := b.Range()
	if rng <= 0 {
		return 0, 0, 0
	}
	wick := b.LowerWick()
	if dir == models.Bearish {
		wick = b.UpperWick()
	}
	body := b.Body()
	return body / rng * 100, wick / rng * 100, (body + wick) / rng * 100
}

func (d *Detector) compositionOK(body, wick, combined float64) bool {
	switch d.cfg.CompositionMode {
	case CompositionBody:
		return body >= d.cfg.BodyPctMin
	case CompositionWick:
		return wick >= d.cfg.WickPctMin
	case CompositionCombined:
		return combined >= d.cfg.CombinedPctMin
	case CompositionAny:
		return body >= d.cfg.BodyPctMin || wick >= d.cfg.WickPctMin || combined >= d.cfg.CombinedPctMin
	default:
		return true
	}
}

// reactionZone falls back to the body of the nearest prior opposite-coloured candle.
func (d *Detector) reactionZone(series models.Series, i int, dir models.Direction) models.ZoneOfInterest {
	for k := i - 1; k >= 0 && k >= i-d.cfg.ReactionLookback; k-- {
		b := series[k]
		if (dir == models.Bullish && b.IsBearish()) || (dir == models.Bearish && b.IsBullish()) {
			return models.ZoneOfInterest{Source: models.ZoneSourceReaction, Index: k, Low: b.BodyLow(), High: b.BodyHigh()}
		}
	}
	return models.ZoneOfInterest{Source: models.ZoneSourceNone, Index: -1}
}

// Scan evaluates bars from..to inclusive and returns every emitted signal.
func (d *Detector) Scan(series models.Series, from, to int, ev Evidence) ([]models.StructureShiftSignal, error) {
	if from < 0 {
		from = 0
	}
	if to >= len(series) {
		to = len(series) - 1
	}
	var out []models.StructureShiftSignal
	for i := from; i <= to; i++ {
		res, err := d.Detect(series, i, ev)
		if err != nil {
			return nil, err
		}
		if res.Emitted() {
			out = append(out, *res.Signal)
		}
	}
	return out, nil
}
