package models

import (
	"math"
	"time"
)

// Direction is the signed direction of a move, a signal or a bias.
// DirectionNone doubles as the neutral bias.
type Direction int8

const (
	DirectionNone Direction = 0
	Bullish       Direction = 1
	Bearish       Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "none"
	}
}

// Opposite returns the reverse direction; None stays None.
func (d Direction) Opposite() Direction { return -d }

// ParseDirection accepts "bullish"/"bearish" (and long/short, buy/sell); anything else is None.
func ParseDirection(s string) Direction {
	switch s {
	case "bullish", "long", "buy", "up":
		return Bullish
	case "bearish", "short", "sell", "down":
		return Bearish
	default:
		return DirectionNone
	}
}

// MarshalText implements encoding.TextMarshaler so directions serialize by name.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(b []byte) error {
	*d = ParseDirection(string(b))
	return nil
}

// Bar is one OHLCV record. Time is the bar open time.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// Range is high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// Body is the absolute open/close distance.
func (b Bar) Body() float64 { return math.Abs(b.Close - b.Open) }

func (b Bar) IsBullish() bool { return b.Close > b.Open }

func (b Bar) IsBearish() bool { return b.Close < b.Open }

// UpperWick is the distance from the body top to the high.
func (b Bar) UpperWick() float64 { return b.High - math.Max(b.Open, b.Close) }

// LowerWick is the distance from the body bottom to the low.
func (b Bar) LowerWick() float64 { return math.Min(b.Open, b.Close) - b.Low }

// BodyLow and BodyHigh bound the candle body.
func (b Bar) BodyLow() float64 { return math.Min(b.Open, b.Close) }

func (b Bar) BodyHigh() float64 { return math.Max(b.Open, b.Close) }

// Valid reports whether the bar is structurally sound.
func (b Bar) Valid() bool {
	if b.Time.IsZero() {
		return false
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 || b.Volume < 0 {
		return false
	}
	if b.High < b.Low {
		return false
	}
	return b.Open <= b.High && b.Open >= b.Low && b.Close <= b.High && b.Close >= b.Low
}

// Series is an indexed, time-ordered sequence of bars, oldest first.
type Series []Bar

// LastClosed returns the index of the most recent closed bar given the number of
// trailing not-yet-closed bars, or -1 when nothing is closed.
func (s Series) LastClosed(openBars int) int {
	if openBars < 0 {
		openBars = 0
	}
	return len(s) - 1 - openBars
}

// InRange reports whether i is a valid index.
func (s Series) InRange(i int) bool { return i >= 0 && i < len(s) }

// HighestHigh returns the max high over [from, to] (inclusive) and its index.
func (s Series) HighestHigh(from, to int) (float64, int) {
	from, to = s.clamp(from, to)
	best, idx := math.Inf(-1), -1
	for i := from; i <= to; i++ {
		if s[i].High > best {
			best, idx = s[i].High, i
		}
	}
	return best, idx
}

// LowestLow returns the min low over [from, to] (inclusive) and its index.
func (s Series) LowestLow(from, to int) (float64, int) {
	from, to = s.clamp(from, to)
	best, idx := math.Inf(1), -1
	for i := from; i <= to; i++ {
		if s[i].Low < best {
			best, idx = s[i].Low, i
		}
	}
	return best, idx
}

func (s Series) clamp(from, to int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to >= len(s) {
		to = len(s) - 1
	}
	return from, to
}
