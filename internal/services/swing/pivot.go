package swing

import "SmartFlow/internal/domain/models"

// IsSwingHigh reports whether series[i].High strictly exceeds the highs of the
// pivot bars on each side. Indices within pivot of either end never qualify.
func IsSwingHigh(series models.Series, i, pivot int) bool {
	if pivot < 1 || i-pivot < 0 || i+pivot >= len(series) {
		return false
	}
	h := series[i].High
	for k := 1; k <= pivot; k++ {
		if series[i-k].High >= h || series[i+k].High >= h {
			return false
		}
	}
	return true
}

// IsSwingLow is the mirror of IsSwingHigh on lows.
func IsSwingLow(series models.Series, i, pivot int) bool {
	if pivot < 1 || i-pivot < 0 || i+pivot >= len(series) {
		return false
	}
	l := series[i].Low
	for k := 1; k <= pivot; k++ {
		if series[i-k].Low <= l || series[i+k].Low <= l {
			return false
		}
	}
	return true
}

// LastSwingHigh scans backward for the most recent swing high that is fully
// confirmed by bars before index before. maxLookback <= 0 means unbounded.
func LastSwingHigh(series models.Series, before, pivot, maxLookback int) (models.SwingPoint, bool) {
	return lastSwing(series, before, pivot, maxLookback, models.SwingHigh)
}

// LastSwingLow is the mirror of LastSwingHigh.
func LastSwingLow(series models.Series, before, pivot, maxLookback int) (models.SwingPoint, bool) {
	return lastSwing(series, before, pivot, maxLookback, models.SwingLow)
}

func lastSwing(series models.Series, before, pivot, maxLookback int, kind models.SwingKind) (models.SwingPoint, bool) {
	if before > len(series) {
		before = len(series)
	}
	if before <= 0 {
		return models.SwingPoint{}, false
	}
	visible := series[:before]
	floor := 0
	if maxLookback > 0 {
		floor = before - 1 - maxLookback
	}
	if floor < 0 {
		floor = 0
	}
	for k := before - 1 - pivot; k >= floor; k-- {
		if kind == models.SwingHigh && IsSwingHigh(visible, k, pivot) {
			return models.SwingPoint{Index: k, Time: series[k].Time, Price: series[k].High, Kind: kind}, true
		}
		if kind == models.SwingLow && IsSwingLow(visible, k, pivot) {
			return models.SwingPoint{Index: k, Time: series[k].Time, Price: series[k].Low, Kind: kind}, true
		}
	}
	return models.SwingPoint{}, false
}

// FindSwings returns every swing confirmed within series[:upTo+1], oldest first.
func FindSwings(series models.Series, upTo, pivot int) []models.SwingPoint {
	if upTo >= len(series) {
		upTo = len(series) - 1
	}
	if upTo < 0 {
		return nil
	}
	visible := series[:upTo+1]
	var out []models.SwingPoint
	for k := pivot; k+pivot <= upTo; k++ {
		if IsSwingHigh(visible, k, pivot) {
			out = append(out, models.SwingPoint{Index: k, Time: series[k].Time, Price: series[k].High, Kind: models.SwingHigh})
		}
		if IsSwingLow(visible, k, pivot) {
			out = append(out, models.SwingPoint{Index: k, Time: series[k].Time, Price: series[k].Low, Kind: models.SwingLow})
		}
	}
	return out
}

// StructureBias compares the last two swing highs and lows confirmed up to upTo.
// Higher highs with higher lows is Bullish, lower highs with lower lows is Bearish.
func StructureBias(series models.Series, upTo, pivot int) models.Direction {
	var highs, lows []float64
	for _, p := range FindSwings(series, upTo, pivot) {
		if p.Kind == models.SwingHigh {
			highs = append(highs, p.Price)
		} else {
			lows = append(lows, p.Price)
		}
	}
	if len(highs) < 2 || len(lows) < 2 {
		return models.DirectionNone
	}
	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]
	switch {
	case h2 > h1 && l2 > l1:
		return models.Bullish
	case h2 < h1 && l2 < l1:
		return models.Bearish
	default:
		return models.DirectionNone
	}
}
