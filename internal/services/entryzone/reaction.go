package entryzone

import (
	"math"

	"SmartFlow/internal/domain/models"
)

// ReactionZones detects order blocks within the lookback window ending at
// upTo, converts blocks that price later closed through into breakers, and
// drops zones whose validity has expired at upTo. Result is oldest first.
func (d *Deriver) ReactionZones(series models.Series, upTo int) []models.ReactionZone {
	if upTo >= len(series) {
		upTo = len(series) - 1
	}
	from := upTo - d.cfg.MaxLookback
	if from < 1 {
		from = 1
	}
	pad := d.in.Ticks(d.cfg.StopPadTicks)

	var out []models.ReactionZone
	for k := from; k <= upTo; k++ {
		z, ok := d.orderBlock(series, k, pad)
		if !ok {
			continue
		}
		z = d.convert(series, z, k+1, upTo, pad)
		if z.Expired(upTo) {
			continue
		}
		out = append(out, z)
	}
	return out
}

// orderBlock tests whether bar k engulfs an opposite-coloured bar k-1.
func (d *Deriver) orderBlock(series models.Series, k int, pad float64) (models.ReactionZone, bool) {
	c, n := series[k-1], series[k]
	if n.High < c.High || n.Low > c.Low {
		return models.ReactionZone{}, false
	}
	z := models.ReactionZone{
		Kind:      models.OrderBlock,
		Index:     k - 1,
		Time:      c.Time,
		High:      c.High,
		Low:       c.Low,
		ExpiresAt: k + d.cfg.ValidityBars,
	}
	switch {
	case c.IsBearish() && n.IsBullish():
		z.Direction = models.Bullish
		z.LiquidityGrab = n.Low < c.Low
		z.Stop = d.in.RoundToTick(math.Min(c.Low, n.Low) - pad)
	case c.IsBullish() && n.IsBearish():
		z.Direction = models.Bearish
		z.LiquidityGrab = n.High > c.High
		z.Stop = d.in.RoundToTick(math.Max(c.High, n.High) + pad)
	default:
		return models.ReactionZone{}, false
	}
	if d.cfg.RequireLiquidityGrab && !z.LiquidityGrab {
		return models.ReactionZone{}, false
	}
	return z, true
}

// convert turns z into a breaker of the opposite direction at the first close
// through it within [from, upTo].
func (d *Deriver) convert(series models.Series, z models.ReactionZone, from, upTo int, pad float64) models.ReactionZone {
	for j := from; j <= upTo; j++ {
		c := series[j].Close
		if z.Direction == models.Bullish && c < z.Low {
			z.Kind, z.Direction = models.BreakerBlock, models.Bearish
			z.Stop = d.in.RoundToTick(z.High + pad)
		} else if z.Direction == models.Bearish && c > z.High {
			z.Kind, z.Direction = models.BreakerBlock, models.Bullish
			z.Stop = d.in.RoundToTick(z.Low - pad)
		} else {
			continue
		}
		z.BrokenAt = j
		z.ExpiresAt = j + d.cfg.ValidityBars
		return z
	}
	return z
}
