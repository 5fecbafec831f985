package phase

import (
	"fmt"

	"SmartFlow/internal/domain/models"
)

// State is a position in the bias-cycle graph.
type State int

const (
	NoBias State = iota
	Phase1Pending
	Phase1Active
	Phase1Success
	Phase1Failed
	Phase3Pending
	Phase3Active
	Phase3Complete
	CycleComplete
)

var stateNames = [...]string{
	NoBias:         "no_bias",
	Phase1Pending:  "phase1_pending",
	Phase1Active:   "phase1_active",
	Phase1Success:  "phase1_success",
	Phase1Failed:   "phase1_failed",
	Phase3Pending:  "phase3_pending",
	Phase3Active:   "phase3_active",
	Phase3Complete: "phase3_complete",
	CycleComplete:  "cycle_complete",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// edges is the fixed transition graph, excluding Reset which is allowed from anywhere.
var edges = map[State][]State{
	NoBias:         {Phase1Pending},
	Phase1Pending:  {Phase1Active, Phase3Active},
	Phase1Active:   {Phase1Success, Phase1Failed},
	Phase1Success:  {Phase3Pending},
	Phase1Failed:   {Phase3Pending, CycleComplete},
	Phase3Pending:  {Phase3Active, Phase1Active},
	Phase3Active:   {Phase3Complete},
	Phase3Complete: {CycleComplete},
	CycleComplete:  {},
}

func allowed(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one edge taken.
type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Phase1Outcome categorizes the Phase 1 history of the current cycle.
type Phase1Outcome int

const (
	NoAttempt Phase1Outcome = iota
	Succeeded
	OneFailure
)

func (o Phase1Outcome) String() string {
	switch o {
	case Succeeded:
		return "success"
	case OneFailure:
		return "one_failure"
	default:
		return "no_attempt"
	}
}

// RiskProfile is the row of the Phase 3 risk table.
type RiskProfile struct {
	Multiplier        float64
	ExtraConfirmation bool
}

// riskTable: NoAttempt and Succeeded share a multiplier; kept as configured.
var riskTable = map[Phase1Outcome]RiskProfile{
	NoAttempt:  {Multiplier: 1.0, ExtraConfirmation: false},
	Succeeded:  {Multiplier: 1.0, ExtraConfirmation: false},
	OneFailure: {Multiplier: 0.5, ExtraConfirmation: true},
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	State               State            `json:"state"`
	Bias                models.Direction `json:"bias"`
	Phase1Attempts      int              `json:"phase1_attempts"`
	Phase3Attempts      int              `json:"phase3_attempts"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastPhase1          Phase1Outcome    `json:"-"`
}

// Machine sequences the Phase 1 and Phase 3 attempts of one bias cycle.
type Machine struct {
	cfg                 Config
	state               State
	bias                models.Direction
	phase1Attempts      int
	phase3Attempts      int
	consecutiveFailures int
	lastPhase1          Phase1Outcome
}

// New creates a machine in NoBias.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Bias returns the bias of the current cycle.
func (m *Machine) Bias() models.Direction { return m.bias }

// Snapshot returns the current counters and state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:               m.state,
		Bias:                m.bias,
		Phase1Attempts:      m.phase1Attempts,
		Phase3Attempts:      m.phase3Attempts,
		ConsecutiveFailures: m.consecutiveFailures,
		LastPhase1:          m.lastPhase1,
	}
}

func (m *Machine) move(to State, path []Transition) ([]Transition, error) {
	if !allowed(m.state, to) {
		return path, fmt.Errorf("%s -> %s: %w", m.state, to, models.ErrTransitionNotAllowed)
	}
	path = append(path, Transition{From: m.state, To: to})
	m.state = to
	return path, nil
}

// Reset returns the machine to NoBias and clears every counter.
func (m *Machine) Reset() []Transition {
	if m.state == NoBias && m.bias == models.DirectionNone {
		return nil
	}
	t := []Transition{{From: m.state, To: NoBias}}
	*m = Machine{cfg: m.cfg}
	return t
}

// SetBias starts a new cycle when the bias changes. Setting the same bias is a
// no-op; setting None resets.
func (m *Machine) SetBias(dir models.Direction) []Transition {
	if dir == m.bias && m.state != NoBias {
		return nil
	}
	path := m.Reset()
	if dir == models.DirectionNone {
		return path
	}
	m.bias = dir
	path, _ = m.move(Phase1Pending, path)
	return path
}

// Phase1Context carries the external checks for a Phase 1 entry.
type Phase1Context struct {
	OTETouched   bool
	CascadeValid bool
}

// Phase3Context carries the external checks for a Phase 3 entry.
type Phase3Context struct {
	HasValidOTE bool
}

// Eligibility is the answer to a CanEnter query.
type Eligibility struct {
	OK                bool             `json:"ok"`
	Reason            string           `json:"reason,omitempty"`
	Direction         models.Direction `json:"direction"`
	RiskPercent       float64          `json:"risk_percent"`
	RewardRisk        float64          `json:"reward_risk"`
	RiskMultiplier    float64          `json:"risk_multiplier"`
	ExtraConfirmation bool             `json:"extra_confirmation"`
}

// Direction1 is the counter-trend direction traded in Phase 1.
func (m *Machine) Direction1() models.Direction { return m.bias.Opposite() }

// Direction3 is the with-trend direction traded in Phase 3.
func (m *Machine) Direction3() models.Direction { return m.bias }

// CanEnterPhase1 checks the Phase 1 entry rules.
func (m *Machine) CanEnterPhase1(ctx Phase1Context) Eligibility {
	e := Eligibility{Direction: m.Direction1(), RiskPercent: m.cfg.Phase1.RiskPercent, RewardRisk: m.cfg.Phase1.RewardRisk, RiskMultiplier: 1}
	switch {
	case m.bias == models.DirectionNone:
		e.Reason = "no_bias"
	case m.state != Phase1Pending && !(m.state == Phase3Pending && m.consecutiveFailures == 1):
		e.Reason = "state"
	case m.phase1Attempts >= m.cfg.MaxPhase1Attempts:
		e.Reason = "attempts"
	case ctx.OTETouched:
		e.Reason = "ote_touched"
	case !ctx.CascadeValid:
		e.Reason = "cascade"
	default:
		e.OK = true
	}
	return e
}

// EnterPhase1 moves to Phase1Active.
func (m *Machine) EnterPhase1() ([]Transition, error) {
	if m.bias == models.DirectionNone {
		return nil, fmt.Errorf("enter phase1 without bias: %w", models.ErrTransitionNotAllowed)
	}
	if m.state == Phase3Pending && m.consecutiveFailures != 1 {
		return nil, fmt.Errorf("phase1 retry after %d failures: %w", m.consecutiveFailures, models.ErrTransitionNotAllowed)
	}
	if m.phase1Attempts >= m.cfg.MaxPhase1Attempts {
		return nil, fmt.Errorf("phase1 attempts exhausted (%d): %w", m.phase1Attempts, models.ErrTransitionNotAllowed)
	}
	path, err := m.move(Phase1Active, nil)
	if err != nil {
		return path, err
	}
	m.phase1Attempts++
	return path, nil
}

// ExitPhase1 closes the active Phase 1 attempt. A take-profit or a first
// failure leads to Phase3Pending; a second consecutive failure ends the cycle.
func (m *Machine) ExitPhase1(o models.Outcome) ([]Transition, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("phase1 outcome %q: %w", o, models.ErrInvalidInput)
	}
	if m.state != Phase1Active {
		return nil, fmt.Errorf("exit phase1 from %s: %w", m.state, models.ErrTransitionNotAllowed)
	}
	if o == models.OutcomeTakeProfit {
		path, _ := m.move(Phase1Success, nil)
		m.consecutiveFailures = 0
		m.lastPhase1 = Succeeded
		return m.move(Phase3Pending, path)
	}
	path, _ := m.move(Phase1Failed, nil)
	m.consecutiveFailures++
	m.lastPhase1 = OneFailure
	if m.consecutiveFailures >= 2 {
		return m.move(CycleComplete, path)
	}
	return m.move(Phase3Pending, path)
}

// Phase1History returns the outcome category used by the Phase 3 risk table.
func (m *Machine) Phase1History() Phase1Outcome {
	switch {
	case m.phase1Attempts == 0:
		return NoAttempt
	case m.consecutiveFailures == 1:
		return OneFailure
	default:
		return m.lastPhase1
	}
}

// CanEnterPhase3 checks the Phase 3 entry rules and selects the risk row.
// Cascade validity and OTE touch strictness are not part of this check.
func (m *Machine) CanEnterPhase3(ctx Phase3Context) Eligibility {
	row := riskTable[m.Phase1History()]
	e := Eligibility{
		Direction:         m.Direction3(),
		RiskPercent:       m.cfg.Phase3.RiskPercent,
		RewardRisk:        m.cfg.Phase3.RewardRisk,
		RiskMultiplier:    row.Multiplier,
		ExtraConfirmation: row.ExtraConfirmation,
	}
	switch {
	case m.bias == models.DirectionNone:
		e.Reason = "no_bias"
	case m.consecutiveFailures >= 2:
		e.Reason = "phase1_failures"
	case m.state != Phase1Pending && m.state != Phase3Pending:
		e.Reason = "state"
	case !ctx.HasValidOTE:
		e.Reason = "no_ote"
	default:
		e.OK = true
	}
	return e
}

// EnterPhase3 moves to Phase3Active.
func (m *Machine) EnterPhase3() ([]Transition, error) {
	if m.consecutiveFailures >= 2 {
		return nil, fmt.Errorf("enter phase3 after %d failures: %w", m.consecutiveFailures, models.ErrTransitionNotAllowed)
	}
	path, err := m.move(Phase3Active, nil)
	if err != nil {
		return path, err
	}
	m.phase3Attempts++
	return path, nil
}

// ExitPhase3 closes the Phase 3 attempt and completes the cycle.
func (m *Machine) ExitPhase3(o models.Outcome) ([]Transition, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("phase3 outcome %q: %w", o, models.ErrInvalidInput)
	}
	if m.state != Phase3Active {
		return nil, fmt.Errorf("exit phase3 from %s: %w", m.state, models.ErrTransitionNotAllowed)
	}
	path, _ := m.move(Phase3Complete, nil)
	return m.move(CycleComplete, path)
}
