package liquidity

import (
	"math"
	"sort"
	"time"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/swing"
	"SmartFlow/pkg/util"
)

// Detector builds liquidity zones and tests sweeps against them.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// BuildZones derives zones from series[:upTo], i.e. everything known before
// bar upTo is evaluated. The result is ordered by start time and capped at
// MaxZones, evicting the oldest.
func (d *Detector) BuildZones(series models.Series, upTo int, in models.Instrument) []models.LiquidityZone {
	if upTo > len(series) {
		upTo = len(series)
	}
	if upTo <= 0 {
		return nil
	}
	var zones []models.LiquidityZone
	swings := swing.FindSwings(series, upTo-1, d.cfg.SwingPivot)
	if d.cfg.UseSwings {
		zones = append(zones, d.swingZones(series, upTo, swings, in)...)
	}
	if d.cfg.UseEqualLevels {
		zones = append(zones, d.equalZones(series, upTo, swings, in)...)
	}
	zones = append(zones, d.sessionZones(series, upTo, in)...)

	valid := zones[:0]
	for _, z := range zones {
		if z.Valid() {
			valid = append(valid, z)
		}
	}
	sort.SliceStable(valid, func(a, b int) bool { return valid[a].Start.Before(valid[b].Start) })
	if len(valid) > d.cfg.MaxZones {
		valid = valid[len(valid)-d.cfg.MaxZones:]
	}
	return valid
}

func (d *Detector) swingZones(series models.Series, upTo int, swings []models.SwingPoint, in models.Instrument) []models.LiquidityZone {
	pad := in.Ticks(d.cfg.PadTicks)
	out := make([]models.LiquidityZone, 0, len(swings))
	for _, p := range swings {
		z := models.LiquidityZone{
			Start: p.Time,
			End:   barTime(series, upTo, p.Index+d.cfg.ZoneLifetime),
			Low:   in.RoundToTick(p.Price - pad),
			High:  in.RoundToTick(p.Price + pad),
			Label: models.LabelSwing,
		}
		if p.Kind == models.SwingHigh {
			z.Type = models.ZoneSupply
		} else {
			z.Type = models.ZoneDemand
		}
		out = append(out, z)
	}
	return out
}

// equalZones pairs consecutive swings of the same kind within tolerance. A pair
// is retired once any later close sits beyond the band.
func (d *Detector) equalZones(series models.Series, upTo int, swings []models.SwingPoint, in models.Instrument) []models.LiquidityZone {
	tol := in.Ticks(d.cfg.EqualToleranceTicks)
	var out []models.LiquidityZone
	var lastHigh, lastLow *models.SwingPoint
	for i := range swings {
		p := swings[i]
		prev := &lastLow
		if p.Kind == models.SwingHigh {
			prev = &lastHigh
		}
		if *prev != nil && math.Abs((*prev).Price-p.Price) <= tol {
			lo, hi := math.Min((*prev).Price, p.Price), math.Max((*prev).Price, p.Price)
			z := models.LiquidityZone{
				Start: p.Time,
				End:   barTime(series, upTo, p.Index+d.cfg.ZoneLifetime),
				Low:   in.RoundToTick(lo),
				High:  in.RoundToTick(hi),
			}
			if p.Kind == models.SwingHigh {
				z.Type, z.Label = models.ZoneSupply, models.LabelEqualHighs
			} else {
				z.Type, z.Label = models.ZoneDemand, models.LabelEqualLows
			}
			if !closedBeyond(series, p.Index+1, upTo, z) {
				out = append(out, z)
			}
		}
		*prev = &swings[i]
	}
	return out
}

func closedBeyond(series models.Series, from, to int, z models.LiquidityZone) bool {
	for k := from; k < to; k++ {
		c := series[k].Close
		if z.Type == models.ZoneSupply && c > z.High {
			return true
		}
		if z.Type == models.ZoneDemand && c < z.Low {
			return true
		}
	}
	return false
}

// sessionZones builds previous-day, current-day and previous-week extremes for
// the day of bar upTo (or the last known bar when upTo is past the end).
func (d *Detector) sessionZones(series models.Series, upTo int, in models.Instrument) []models.LiquidityZone {
	ref := barTime(series, upTo, upTo)
	day := util.DayStart(ref)
	week := util.WeekStart(ref)
	pad := in.Ticks(d.cfg.PadTicks)

	var out []models.LiquidityZone
	level := func(price float64, typ models.ZoneType, label models.ZoneLabel, start, end time.Time) {
		out = append(out, models.LiquidityZone{
			Start: start,
			End:   end,
			Low:   in.RoundToTick(price - pad),
			High:  in.RoundToTick(price + pad),
			Type:  typ,
			Label: label,
		})
	}

	if d.cfg.UsePreviousDay {
		prev := previousBucket(series, upTo, day, util.DayStart)
		if hi, lo, ok := extremes(series, upTo, func(t time.Time) bool {
			return util.DayStart(t).Equal(prev)
		}); ok {
			level(hi, models.ZoneSupply, models.LabelPreviousDayHigh, day, day.AddDate(0, 0, 1))
			level(lo, models.ZoneDemand, models.LabelPreviousDayLow, day, day.AddDate(0, 0, 1))
		}
	}
	if d.cfg.UseCurrentDay {
		if hi, lo, ok := extremes(series, upTo, func(t time.Time) bool {
			return util.DayStart(t).Equal(day)
		}); ok {
			level(hi, models.ZoneSupply, models.LabelCurrentDayHigh, day, day.AddDate(0, 0, 1))
			level(lo, models.ZoneDemand, models.LabelCurrentDayLow, day, day.AddDate(0, 0, 1))
		}
	}
	if d.cfg.UsePreviousWeek {
		prev := previousBucket(series, upTo, week, util.WeekStart)
		if hi, lo, ok := extremes(series, upTo, func(t time.Time) bool {
			return util.WeekStart(t).Equal(prev)
		}); ok {
			level(hi, models.ZoneSupply, models.LabelPreviousWeekHigh, week, week.AddDate(0, 0, 7))
			level(lo, models.ZoneDemand, models.LabelPreviousWeekLow, week, week.AddDate(0, 0, 7))
		}
	}
	return out
}

// previousBucket finds the most recent bucket before current that has bars.
func previousBucket(series models.Series, upTo int, current time.Time, bucket func(time.Time) time.Time) time.Time {
	for k := upTo - 1; k >= 0; k-- {
		if b := bucket(series[k].Time); b.Before(current) {
			return b
		}
	}
	return time.Time{}
}

func extremes(series models.Series, upTo int, match func(time.Time) bool) (float64, float64, bool) {
	hi, lo := math.Inf(-1), math.Inf(1)
	found := false
	for k := 0; k < upTo; k++ {
		if !match(series[k].Time) {
			continue
		}
		found = true
		hi = math.Max(hi, series[k].High)
		lo = math.Min(lo, series[k].Low)
	}
	return hi, lo, found
}

// barTime returns the open time of bar k, extrapolating past the last known bar
// (index upTo, or the series end) with the most recent bar spacing.
func barTime(series models.Series, upTo, k int) time.Time {
	last := upTo
	if last >= len(series) {
		last = len(series) - 1
	}
	if k <= last {
		return series[k].Time
	}
	step := time.Minute
	if last > 0 {
		step = series[last].Time.Sub(series[last-1].Time)
	}
	return series[last].Time.Add(time.Duration(k-last) * step)
}

// Active filters zones whose window contains t.
func Active(zones []models.LiquidityZone, t time.Time) []models.LiquidityZone {
	out := make([]models.LiquidityZone, 0, len(zones))
	for _, z := range zones {
		if z.Active(t) {
			out = append(out, z)
		}
	}
	return out
}
