// Package modeltest builds bar series for tests.
package modeltest

import (
	"time"

	"SmartFlow/internal/domain/models"
)

// Epoch is the open time of the first bar produced by the builders.
var Epoch = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

// OHLC is a compact bar literal.
type OHLC [4]float64

// Series builds bars spaced by step starting at Epoch.
func Series(step time.Duration, bars ...OHLC) models.Series {
	return SeriesAt(Epoch, step, bars...)
}

// SeriesAt builds bars spaced by step starting at start.
func SeriesAt(start time.Time, step time.Duration, bars ...OHLC) models.Series {
	out := make(models.Series, len(bars))
	for i, b := range bars {
		out[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * step),
			Open:   b[0],
			High:   b[1],
			Low:    b[2],
			Close:  b[3],
			Volume: 1,
		}
	}
	return out
}

// Highs builds bars whose high and low follow the given values, with a fixed
// half-range around each point and open/close at the midpoint.
func Highs(step time.Duration, spread float64, mids ...float64) models.Series {
	bars := make([]OHLC, len(mids))
	for i, m := range mids {
		bars[i] = OHLC{m, m + spread, m - spread, m}
	}
	return Series(step, bars...)
}
