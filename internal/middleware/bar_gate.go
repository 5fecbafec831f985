package middleware

import (
	"fmt"
	"sync"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/pkg/metrics"
)

// Admission is what the gate did with one bar.
type Admission string

const (
	Appended   Admission = "appended"
	Forming    Admission = "forming"
	Duplicate  Admission = "duplicate"
	OutOfOrder Admission = "out_of_order"
	Invalid    Admission = "invalid"
)

// Accepted reports whether the bar changed a window.
func (a Admission) Accepted() bool { return a == Appended || a == Forming }

type windowKey struct {
	symbol string
	tf     domrepo.Timeframe
}

type window struct {
	closed  models.Series
	forming *models.Bar
}

// BarGate sits between the feed and the sessions. It validates bars, drops
// duplicates and out-of-order bars, and keeps a bounded rolling window per
// symbol and timeframe with at most one forming bar at the tail.
type BarGate struct {
	mu      sync.RWMutex
	size    int
	windows map[windowKey]*window
	metrics domrepo.Metrics
}

type GateOption func(*BarGate)

// WithWindow caps each window at n closed bars.
func WithWindow(n int) GateOption {
	return func(g *BarGate) {
		if n > 0 {
			g.size = n
		}
	}
}

// NewBarGate creates a gate with 500-bar windows by default.
func NewBarGate(m domrepo.Metrics, opts ...GateOption) *BarGate {
	if m == nil {
		m = metrics.Nop{}
	}
	g := &BarGate{size: 500, windows: make(map[windowKey]*window), metrics: m}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit applies one bar. Only structurally invalid bars return an error.
func (g *BarGate) Admit(symbol string, tf domrepo.Timeframe, b models.Bar, closed bool) (Admission, error) {
	if err := validate(symbol, tf, b); err != nil {
		g.metrics.RecordRejection("feed", string(Invalid))
		return Invalid, err
	}
	b.Time = b.Time.UTC()

	g.mu.Lock()
	a := g.apply(windowKey{symbol: symbol, tf: tf}, b, closed)
	g.mu.Unlock()

	if !a.Accepted() {
		g.metrics.RecordRejection("feed", string(a))
	}
	return a, nil
}

func validate(symbol string, tf domrepo.Timeframe, b models.Bar) error {
	switch {
	case symbol == "":
		return fmt.Errorf("bar without symbol: %w", models.ErrInvalidInput)
	case !domrepo.IsValidTimeframe(tf):
		return fmt.Errorf("unknown timeframe %q: %w", tf, models.ErrInvalidInput)
	case !b.Valid():
		return fmt.Errorf("malformed %s %s bar at %s: %w", symbol, tf, b.Time, models.ErrInvalidInput)
	case !b.Time.UTC().Truncate(tf.Duration()).Equal(b.Time):
		return fmt.Errorf("%s bar at %s is not aligned: %w", tf, b.Time, models.ErrInvalidInput)
	}
	return nil
}

func (g *BarGate) apply(k windowKey, b models.Bar, closed bool) Admission {
	w := g.windows[k]
	if w == nil {
		w = &window{}
		g.windows[k] = w
	}
	if n := len(w.closed); n > 0 {
		last := w.closed[n-1]
		if b.Time.Equal(last.Time) {
			return Duplicate
		}
		if b.Time.Before(last.Time) {
			return OutOfOrder
		}
	}
	if !closed {
		if w.forming != nil {
			if b.Time.Before(w.forming.Time) {
				return OutOfOrder
			}
			if *w.forming == b {
				return Duplicate
			}
		}
		fb := b
		w.forming = &fb
		return Forming
	}
	w.closed = append(w.closed, b)
	if over := len(w.closed) - g.size; over > 0 {
		w.closed = append(models.Series(nil), w.closed[over:]...)
	}
	if w.forming != nil && !w.forming.Time.After(b.Time) {
		w.forming = nil
	}
	return Appended
}

// Series returns a copy of one window, with the forming bar appended when
// withForming is set.
func (g *BarGate) Series(symbol string, tf domrepo.Timeframe, withForming bool) models.Series {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w := g.windows[windowKey{symbol: symbol, tf: tf}]
	if w == nil {
		return nil
	}
	out := make(models.Series, len(w.closed), len(w.closed)+1)
	copy(out, w.closed)
	if withForming && w.forming != nil {
		out = append(out, *w.forming)
	}
	return out
}

// Snapshot returns the closed windows of every timeframe of symbol.
func (g *BarGate) Snapshot(symbol string) map[domrepo.Timeframe]models.Series {
	out := make(map[domrepo.Timeframe]models.Series)
	for _, tf := range domrepo.Timeframes {
		if s := g.Series(symbol, tf, false); len(s) > 0 {
			out[tf] = s
		}
	}
	return out
}

// Seed replaces a window with history, keeping the newest bars. Invalid bars
// are dropped; the result is strictly time-ordered.
func (g *BarGate) Seed(symbol string, tf domrepo.Timeframe, bars models.Series) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := windowKey{symbol: symbol, tf: tf}
	g.windows[k] = &window{}
	n := 0
	for _, b := range bars {
		if validate(symbol, tf, b) != nil {
			continue
		}
		b.Time = b.Time.UTC()
		if g.apply(k, b, true) == Appended {
			n++
		}
	}
	return n
}
