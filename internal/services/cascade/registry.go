package cascade

import (
	"fmt"
	"time"

	"SmartFlow/internal/domain/models"
)

// Name identifies a cascade in the fixed table.
type Name int

const (
	Bias Name = iota
	Execution
	numNames
)

// Names lists every cascade.
var Names = [numNames]Name{Bias, Execution}

func (n Name) String() string {
	switch n {
	case Bias:
		return "bias"
	case Execution:
		return "execution"
	default:
		return fmt.Sprintf("cascade(%d)", int(n))
	}
}

// Stage is the cascade state machine position.
type Stage int

const (
	Inactive Stage = iota
	HTFRegistered
	MidRegistered
	Complete
)

func (s Stage) String() string {
	switch s {
	case HTFRegistered:
		return "htf_sweep"
	case MidRegistered:
		return "mid_sweep"
	case Complete:
		return "ltf_shift"
	default:
		return "inactive"
	}
}

// Slot is one registered event.
type Slot struct {
	Set       bool             `json:"set"`
	Direction models.Direction `json:"direction"`
	Time      time.Time        `json:"time"`
}

// State is a snapshot of one cascade.
type State struct {
	Name      string    `json:"name"`
	Stage     Stage     `json:"-"`
	StageName string    `json:"stage"`
	HTF       Slot      `json:"htf"`
	Mid       Slot      `json:"mid"`
	LTF       Slot      `json:"ltf"`
	ExpiresAt time.Time `json:"expires_at"`
	Valid     bool      `json:"valid"`
}

// RejectReason explains why a registration was refused.
type RejectReason string

const (
	ReasonNone         RejectReason = ""
	ReasonOutOfOrder   RejectReason = "out_of_order"
	ReasonMissingStage RejectReason = "missing_stage"
	ReasonExpired      RejectReason = "expired"
	ReasonDirection    RejectReason = "direction"
	ReasonComplete     RejectReason = "complete"
	ReasonUnknown      RejectReason = "unknown_cascade"
)

// Result is the outcome of one registration. Reset is set when the attempt
// found the cascade timed out and returned it to Inactive.
type Result struct {
	Accepted bool
	Reason   RejectReason
	Reset    bool
	Stage    Stage
}

type entry struct {
	stage     Stage
	htf       Slot
	mid       Slot
	ltf       Slot
	expiresAt time.Time
}

// Registry owns every cascade. The zero value is not usable; use New.
type Registry struct {
	settings [numNames]Settings
	entries  [numNames]entry
}

// New creates a registry with every cascade Inactive.
func New(cfg Config) *Registry {
	r := &Registry{}
	for _, n := range Names {
		r.settings[n] = cfg.For(n)
	}
	return r
}

// Settings returns the configuration of a cascade.
func (r *Registry) Settings(n Name) Settings { return r.settings[n] }

func valid(n Name) bool { return n >= 0 && n < numNames }

// RegisterHTFSweep starts (or restarts) the cascade clock at t.
func (r *Registry) RegisterHTFSweep(n Name, dir models.Direction, t time.Time) Result {
	if !valid(n) {
		return Result{Reason: ReasonUnknown}
	}
	r.entries[n] = entry{
		stage:     HTFRegistered,
		htf:       Slot{Set: true, Direction: dir, Time: t},
		expiresAt: t.Add(r.settings[n].Timeout),
	}
	return Result{Accepted: true, Stage: HTFRegistered}
}

// RegisterMidSweep records the mid-timeframe sweep. It needs a live HTF slot
// and a strictly later time; a newer mid sweep replaces the previous one.
func (r *Registry) RegisterMidSweep(n Name, dir models.Direction, t time.Time) Result {
	if !valid(n) {
		return Result{Reason: ReasonUnknown}
	}
	e := &r.entries[n]
	switch e.stage {
	case Inactive:
		return Result{Reason: ReasonMissingStage, Stage: e.stage}
	case Complete:
		return Result{Reason: ReasonComplete, Stage: e.stage}
	}
	if t.After(e.expiresAt) {
		r.Reset(n)
		return Result{Reason: ReasonExpired, Reset: true, Stage: Inactive}
	}
	if !t.After(e.htf.Time) {
		return Result{Reason: ReasonOutOfOrder, Stage: e.stage}
	}
	e.mid = Slot{Set: true, Direction: dir, Time: t}
	e.stage = MidRegistered
	return Result{Accepted: true, Stage: e.stage}
}

// RegisterLTFShift completes the cascade. The shift must be strictly later than
// the mid sweep, within the timeout measured from the HTF slot, and opposite
// in direction to the mid sweep. A direction mismatch is refused without
// resetting.
func (r *Registry) RegisterLTFShift(n Name, dir models.Direction, t time.Time) Result {
	if !valid(n) {
		return Result{Reason: ReasonUnknown}
	}
	e := &r.entries[n]
	switch e.stage {
	case Inactive, HTFRegistered:
		return Result{Reason: ReasonMissingStage, Stage: e.stage}
	case Complete:
		return Result{Reason: ReasonComplete, Stage: e.stage}
	}
	if t.Sub(e.htf.Time) > r.settings[n].Timeout {
		r.Reset(n)
		return Result{Reason: ReasonExpired, Reset: true, Stage: Inactive}
	}
	if !t.After(e.mid.Time) {
		return Result{Reason: ReasonOutOfOrder, Stage: e.stage}
	}
	if dir == models.DirectionNone || dir != e.mid.Direction.Opposite() {
		return Result{Reason: ReasonDirection, Stage: e.stage}
	}
	e.ltf = Slot{Set: true, Direction: dir, Time: t}
	e.stage = Complete
	return Result{Accepted: true, Stage: e.stage}
}

// Expire resets every non-inactive cascade whose window has elapsed at now and
// returns the names reset.
func (r *Registry) Expire(now time.Time) []Name {
	var out []Name
	for _, n := range Names {
		e := r.entries[n]
		if e.stage != Inactive && now.After(e.expiresAt) {
			r.Reset(n)
			out = append(out, n)
		}
	}
	return out
}

// IsValid reports whether the cascade is complete, correctly ordered, and
// still inside its window at now.
func (r *Registry) IsValid(n Name, now time.Time) bool {
	if !valid(n) {
		return false
	}
	e := r.entries[n]
	if e.stage != Complete {
		return false
	}
	return ordered(e, r.settings[n].Timeout) && !now.After(e.expiresAt)
}

func ordered(e entry, timeout time.Duration) bool {
	if !e.htf.Set || !e.mid.Set || !e.ltf.Set {
		return false
	}
	if !e.htf.Time.Before(e.mid.Time) || !e.mid.Time.Before(e.ltf.Time) {
		return false
	}
	if e.ltf.Time.Sub(e.htf.Time) > timeout {
		return false
	}
	return e.ltf.Direction == e.mid.Direction.Opposite()
}

// Snapshot returns the state of one cascade. Valid reflects ordering and the
// timeout between the slots, not the current time; use IsValid for that.
func (r *Registry) Snapshot(n Name) State {
	if !valid(n) {
		return State{Name: n.String()}
	}
	e := r.entries[n]
	return State{
		Name:      n.String(),
		Stage:     e.stage,
		StageName: e.stage.String(),
		HTF:       e.htf,
		Mid:       e.mid,
		LTF:       e.ltf,
		ExpiresAt: e.expiresAt,
		Valid:     e.stage == Complete && ordered(e, r.settings[n].Timeout),
	}
}

// Reset returns a cascade to Inactive.
func (r *Registry) Reset(n Name) {
	if valid(n) {
		r.entries[n] = entry{}
	}
}

// ResetAll returns every cascade to Inactive.
func (r *Registry) ResetAll() {
	for _, n := range Names {
		r.Reset(n)
	}
}
