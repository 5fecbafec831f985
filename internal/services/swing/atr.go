package swing

import (
	"math"
	"sort"

	"SmartFlow/internal/domain/models"
)

// TrueRange returns max(H-L, |H-Cp|, |L-Cp|); without a previous close it is H-L.
func TrueRange(b models.Bar, prevClose float64, hasPrev bool) float64 {
	tr := b.High - b.Low
	if !hasPrev {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATR is a running average true range. It primes with a simple average over
// the first N samples and switches to Wilder smoothing afterwards.
type ATR struct {
	period int
	count  int
	sum    float64
	value  float64
}

// NewATR creates an ATR with the given period (minimum 1).
func NewATR(period int) *ATR {
	if period < 1 {
		period = 1
	}
	return &ATR{period: period}
}

// Update feeds one true-range sample and returns the current value.
func (a *ATR) Update(tr float64) float64 {
	a.count++
	if a.count <= a.period {
		a.sum += tr
		a.value = a.sum / float64(a.count)
		return a.value
	}
	n := float64(a.period)
	a.value = (a.value*(n-1) + tr) / n
	return a.value
}

// Value returns the current smoothed value.
func (a *ATR) Value() float64 { return a.value }

// Ready reports whether at least N samples have been seen.
func (a *ATR) Ready() bool { return a.count >= a.period }

// Period returns N.
func (a *ATR) Period() int { return a.period }

// ATRAt computes the ATR over series[0..i]. ok is false until N samples exist.
func ATRAt(series models.Series, i, period int) (float64, bool) {
	if !series.InRange(i) {
		return 0, false
	}
	atr := NewATR(period)
	for k := 0; k <= i; k++ {
		if k == 0 {
			atr.Update(TrueRange(series[k], 0, false))
			continue
		}
		atr.Update(TrueRange(series[k], series[k-1].Close, true))
	}
	return atr.Value(), atr.Ready()
}

// TrueRanges returns the true ranges of series[from..to], clamped to the series.
func TrueRanges(series models.Series, from, to int) []float64 {
	if from < 0 {
		from = 0
	}
	if to >= len(series) {
		to = len(series) - 1
	}
	if from > to {
		return nil
	}
	out := make([]float64, 0, to-from+1)
	for k := from; k <= to; k++ {
		if k == 0 {
			out = append(out, TrueRange(series[k], 0, false))
			continue
		}
		out = append(out, TrueRange(series[k], series[k-1].Close, true))
	}
	return out
}

// Median returns the median of xs without modifying it; zero when empty.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
