package models

import "github.com/shopspring/decimal"

// Instrument carries the symbol metadata the detectors need.
type Instrument struct {
	Symbol   string  `yaml:"symbol" json:"symbol"`
	TickSize float64 `yaml:"tick_size" json:"tick_size"`
}

// Tick returns the minimum price increment, falling back to 1e-5 when unset.
func (in Instrument) Tick() float64 {
	if in.TickSize <= 0 {
		return 0.00001
	}
	return in.TickSize
}

// Ticks converts a tick count into a price distance.
func (in Instrument) Ticks(n float64) float64 {
	return decimal.NewFromFloat(n).Mul(decimal.NewFromFloat(in.Tick())).InexactFloat64()
}

// RoundToTick snaps a price to the nearest multiple of the tick size.
func (in Instrument) RoundToTick(price float64) float64 {
	tick := decimal.NewFromFloat(in.Tick())
	return decimal.NewFromFloat(price).Div(tick).Round(0).Mul(tick).InexactFloat64()
}
