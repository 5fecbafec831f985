package structure

import "SmartFlow/internal/domain/models"

// DetectGap reports a three-bar fair value gap over (i-2, i-1, i) in direction
// dir: for bullish the high of bar i-2 stays below the low of bar i. The gap
// size in percent of the middle close must reach minGapPercent.
func DetectGap(series models.Series, i int, dir models.Direction, minGapPercent float64) (models.Gap, bool) {
	if i < 2 || i >= len(series) {
		return models.Gap{}, false
	}
	first, mid, third := series[i-2], series[i-1], series[i]
	g := models.Gap{Index: i, Direction: dir}
	switch dir {
	case models.Bullish:
		if first.High >= third.Low {
			return models.Gap{}, false
		}
		g.Low, g.High = first.High, third.Low
	case models.Bearish:
		if first.Low <= third.High {
			return models.Gap{}, false
		}
		g.Low, g.High = third.High, first.Low
	default:
		return models.Gap{}, false
	}
	if mid.Close > 0 {
		g.SizePct = (g.High - g.Low) / mid.Close * 100
	}
	if g.SizePct < minGapPercent {
		return models.Gap{}, false
	}
	return g, true
}
