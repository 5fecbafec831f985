package models

import "time"

// Gap is a three-bar fair value gap ending at Index.
type Gap struct {
	Index     int       `json:"index"`
	Direction Direction `json:"direction"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
	SizePct   float64   `json:"size_pct"`
}

// ZoneSource tells where a zone of interest was taken from.
type ZoneSource string

const (
	ZoneSourceNone     ZoneSource = "none"
	ZoneSourceGap      ZoneSource = "gap"
	ZoneSourceReaction ZoneSource = "reaction"
)

// ZoneOfInterest is the area a structure shift is expected to be retested from.
type ZoneOfInterest struct {
	Source ZoneSource `json:"source"`
	Index  int        `json:"index"`
	Low    float64    `json:"low"`
	High   float64    `json:"high"`
}

// SweepSource tells which evidence satisfied the sweep gate.
type SweepSource string

const (
	SweepSourceNone     SweepSource = ""
	SweepSourceExternal SweepSource = "external"
	SweepSourceInternal SweepSource = "internal"
)

// StructureShiftSignal is a validated close beyond a prior swing extreme.
type StructureShiftSignal struct {
	ID           string         `json:"id,omitempty"`
	Symbol       string         `json:"symbol,omitempty"`
	Timeframe    string         `json:"timeframe,omitempty"`
	Direction    Direction      `json:"direction"`
	Index        int            `json:"index"`
	Time         time.Time      `json:"time"`
	BreakLevel   float64        `json:"break_level"`
	SwingIndex   int            `json:"swing_index"`
	Displacement float64        `json:"displacement"`
	Threshold    float64        `json:"threshold"`
	BodyPct      float64        `json:"body_pct"`
	WickPct      float64        `json:"wick_pct"`
	CombinedPct  float64        `json:"combined_pct"`
	HasGap       bool           `json:"has_gap"`
	Gap          *Gap           `json:"gap,omitempty"`
	HadSweep     bool           `json:"had_sweep"`
	SweepSource  SweepSource    `json:"sweep_source,omitempty"`
	Sweep        *SweepEvent    `json:"sweep,omitempty"`
	Zone         ZoneOfInterest `json:"zone"`
	ExpiresAt    int            `json:"expires_at"`
}

// Stale reports whether the signal is past its validity window at index i.
func (s StructureShiftSignal) Stale(i int) bool { return i > s.ExpiresAt }
