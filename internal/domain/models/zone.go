package models

import "time"

// SwingKind distinguishes pivot highs from pivot lows.
type SwingKind int8

const (
	SwingHigh SwingKind = iota + 1
	SwingLow
)

func (k SwingKind) String() string {
	if k == SwingHigh {
		return "high"
	}
	return "low"
}

// SwingPoint is a local extremum strictly beyond its pivot-width neighbours.
type SwingPoint struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
	Kind  SwingKind `json:"kind"`
}

// ZoneType is the side of the book a zone holds.
type ZoneType string

const (
	ZoneSupply ZoneType = "supply"
	ZoneDemand ZoneType = "demand"
)

// ZoneLabel records where a zone came from.
type ZoneLabel string

const (
	LabelSwing            ZoneLabel = "swing"
	LabelEqualHighs       ZoneLabel = "equal_highs"
	LabelEqualLows        ZoneLabel = "equal_lows"
	LabelPreviousDayHigh  ZoneLabel = "previous_day_high"
	LabelPreviousDayLow   ZoneLabel = "previous_day_low"
	LabelPreviousWeekHigh ZoneLabel = "previous_week_high"
	LabelPreviousWeekLow  ZoneLabel = "previous_week_low"
	LabelCurrentDayHigh   ZoneLabel = "current_day_high"
	LabelCurrentDayLow    ZoneLabel = "current_day_low"
)

// Strong reports whether the label is a reference level (day/week extremes).
func (l ZoneLabel) Strong() bool {
	switch l {
	case LabelPreviousDayHigh, LabelPreviousDayLow, LabelPreviousWeekHigh, LabelPreviousWeekLow:
		return true
	default:
		return false
	}
}

// LiquidityZone is a price band [Low, High] active over [Start, End).
type LiquidityZone struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Low   float64   `json:"low"`
	High  float64   `json:"high"`
	Type  ZoneType  `json:"type"`
	Label ZoneLabel `json:"label"`
}

// Active reports whether t falls within [Start, End).
func (z LiquidityZone) Active(t time.Time) bool {
	return !t.Before(z.Start) && t.Before(z.End)
}

// Valid reports whether the band is well-formed.
func (z LiquidityZone) Valid() bool { return z.Low <= z.High && z.Start.Before(z.End) }

// SweepEvent is a same-bar pierce-and-revert through a zone. Direction is the
// direction of the pierce: a demand sweep is Bearish, a supply sweep Bullish.
type SweepEvent struct {
	Index     int           `json:"index"`
	Time      time.Time     `json:"time"`
	Price     float64       `json:"price"`
	Direction Direction     `json:"direction"`
	Zone      LiquidityZone `json:"zone"`
	High      float64       `json:"high"`
	Low       float64       `json:"low"`
	Close     float64       `json:"close"`
}
