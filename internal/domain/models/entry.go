package models

import "time"

// FibRatios are the retracement levels reported with every OTE zone.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.705, 0.79, 1}

const (
	OTEShallow = 0.618
	OTEDeep    = 0.79
)

// FibLevel is one retracement ratio and its price.
type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// OTESource identifies how the impulse was anchored.
type OTESource string

const (
	OTEFromShift        OTESource = "structure_shift"
	OTEFromContinuation OTESource = "continuation"
	OTEFromSweep        OTESource = "sweep"
)

// OTEZone is the 61.8%-79% retracement band of an impulse from Start to End.
type OTEZone struct {
	Direction  Direction  `json:"direction"`
	Source     OTESource  `json:"source"`
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	StartIndex int        `json:"start_index"`
	EndIndex   int        `json:"end_index"`
	Low        float64    `json:"low"`
	High       float64    `json:"high"`
	Mid        float64    `json:"mid"`
	Levels     []FibLevel `json:"levels,omitempty"`
}

// Valid reports whether the zone is usable.
func (z OTEZone) Valid() bool {
	return z.Direction != DirectionNone && z.Low <= z.High && z.Start != z.End
}

// Contains reports whether price lies within the band.
func (z OTEZone) Contains(price float64) bool { return price >= z.Low && price <= z.High }

// Touched reports whether the bar's range overlaps the band.
func (z OTEZone) Touched(b Bar) bool { return b.Low <= z.High && b.High >= z.Low }

// Invalidated reports whether the bar closed beyond the impulse start.
func (z OTEZone) Invalidated(b Bar) bool {
	switch z.Direction {
	case Bullish:
		return b.Close < z.Start
	case Bearish:
		return b.Close > z.Start
	default:
		return true
	}
}

// Level returns the price at a retracement ratio.
func (z OTEZone) Level(ratio float64) float64 {
	return z.End - ratio*(z.End-z.Start)
}

// ReactionKind distinguishes order blocks from breakers.
type ReactionKind string

const (
	OrderBlock   ReactionKind = "order_block"
	BreakerBlock ReactionKind = "breaker"
)

// ReactionZone is an order block or a breaker block.
type ReactionZone struct {
	Kind          ReactionKind `json:"kind"`
	Direction     Direction    `json:"direction"`
	Index         int          `json:"index"`
	Time          time.Time    `json:"time"`
	High          float64      `json:"high"`
	Low           float64      `json:"low"`
	Stop          float64      `json:"stop"`
	LiquidityGrab bool         `json:"liquidity_grab"`
	BrokenAt      int          `json:"broken_at,omitempty"`
	ExpiresAt     int          `json:"expires_at"`
}

// Expired reports whether the zone's validity window has passed at index i.
func (z ReactionZone) Expired(i int) bool { return i > z.ExpiresAt }

// Contains reports whether price lies within the zone.
func (z ReactionZone) Contains(price float64) bool { return price >= z.Low && price <= z.High }
