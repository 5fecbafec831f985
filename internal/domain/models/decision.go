package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryPhase is the attempt a decision belongs to within a bias cycle.
type EntryPhase int

const (
	Phase1 EntryPhase = 1
	Phase3 EntryPhase = 3
)

func (p EntryPhase) String() string {
	if p == Phase1 {
		return "phase1"
	}
	return "phase3"
}

// Outcome is how an executed attempt closed.
type Outcome string

const (
	OutcomeTakeProfit Outcome = "tp"
	OutcomeStopLoss   Outcome = "sl"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool { return o == OutcomeTakeProfit || o == OutcomeStopLoss }

// Decision is a qualified entry handed to the execution collaborator.
type Decision struct {
	ID                string     `json:"id"`
	Symbol            string     `json:"symbol"`
	Timeframe         string     `json:"timeframe"`
	Time              time.Time  `json:"time"`
	Phase             EntryPhase `json:"phase"`
	Direction         Direction  `json:"direction"`
	Entry             float64    `json:"entry"`
	Stop              float64    `json:"stop"`
	Target            float64    `json:"target"`
	RiskPercent       float64    `json:"risk_percent"`
	RiskMultiplier    float64    `json:"risk_multiplier"`
	RewardRisk        float64    `json:"reward_risk"`
	ExtraConfirmation bool       `json:"extra_confirmation"`
	Tags              []string   `json:"tags"`
}

// PatternOutcome is reported to the learning recorder when an attempt closes.
type PatternOutcome struct {
	Symbol    string     `json:"symbol"`
	Phase     EntryPhase `json:"phase"`
	Direction Direction  `json:"direction"`
	Tags      []string   `json:"tags"`
	Outcome   Outcome    `json:"outcome"`
	Time      time.Time  `json:"time"`
}

// PatternKey groups outcomes by phase, direction and tag set.
func (o PatternOutcome) PatternKey() string {
	return o.Phase.String() + ":" + o.Direction.String() + ":" + strings.Join(o.Tags, "+")
}

// PatternStats is the day-keyed aggregate persisted by the learning store.
type PatternStats struct {
	Day     string `json:"day"`
	Pattern string `json:"pattern"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
}

// Total returns wins plus losses.
func (s PatternStats) Total() int { return s.Wins + s.Losses }

// WinRate returns wins over total, zero when empty.
func (s PatternStats) WinRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Total())
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("smartflow"))

// NewID derives a stable identifier from its parts.
func NewID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "|"))).String()
}
