package usecase

import (
	"sort"
	"sync"
	"time"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/cascade"
	"SmartFlow/internal/services/phase"
)

type lockedSession struct {
	mu sync.Mutex
	s  *Session
}

// Manager owns one Session per symbol and serializes access to each.
type Manager struct {
	cfg  StrategyConfig
	opts []SessionOption

	mu       sync.RWMutex
	sessions map[string]*lockedSession

	subMu  sync.Mutex
	subs   map[int]chan Evaluation
	nextID int
}

// NewManager creates a manager; sessions are created on first use with opts.
func NewManager(cfg StrategyConfig, opts ...SessionOption) *Manager {
	return &Manager{
		cfg:      cfg,
		opts:     opts,
		sessions: make(map[string]*lockedSession),
		subs:     make(map[int]chan Evaluation),
	}
}

func (m *Manager) get(symbol string) (*lockedSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.sessions[symbol]
	return ls, ok
}

func (m *Manager) session(symbol string) *lockedSession {
	if ls, ok := m.get(symbol); ok {
		return ls
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls, ok := m.sessions[symbol]; ok {
		return ls
	}
	ls := &lockedSession{s: NewSession(symbol, m.cfg, m.opts...)}
	m.sessions[symbol] = ls
	return ls
}

// Evaluate runs the session of in.Symbol and broadcasts evaluations of newly
// closed bars to subscribers.
func (m *Manager) Evaluate(in Input) (Evaluation, error) {
	ls := m.session(in.Symbol)
	ls.mu.Lock()
	prev, had := ls.s.Last()
	ev, err := ls.s.Evaluate(in)
	ls.mu.Unlock()
	if err != nil {
		return ev, err
	}
	if !ev.Time.IsZero() && (!had || ev.Time.After(prev.Time)) {
		m.broadcast(ev)
	}
	return ev, nil
}

// RecordOutcome closes the open attempt of symbol.
func (m *Manager) RecordOutcome(symbol string, p models.EntryPhase, o models.Outcome, at time.Time) ([]phase.Transition, error) {
	ls, ok := m.get(symbol)
	if !ok {
		return nil, models.ErrNotFound
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.RecordOutcome(p, o, at)
}

// Reset returns the session of symbol to NoBias with every cascade inactive.
func (m *Manager) Reset(symbol string) ([]phase.Transition, error) {
	ls, ok := m.get(symbol)
	if !ok {
		return nil, models.ErrNotFound
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Reset(), nil
}

// Last returns the latest evaluation of symbol.
func (m *Manager) Last(symbol string) (Evaluation, bool) {
	ls, ok := m.get(symbol)
	if !ok {
		return Evaluation{}, false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Last()
}

// Phase returns the phase snapshot of symbol.
func (m *Manager) Phase(symbol string) (phase.Snapshot, bool) {
	ls, ok := m.get(symbol)
	if !ok {
		return phase.Snapshot{}, false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Phase(), true
}

// Cascades returns the cascade snapshots of symbol.
func (m *Manager) Cascades(symbol string) ([]cascade.State, bool) {
	ls, ok := m.get(symbol)
	if !ok {
		return nil, false
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.s.Cascades(), true
}

// Symbols lists the symbols with a session, sorted.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.sessions))
	for sym := range m.sessions {
		out = append(out, sym)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Subscribe returns a channel of new evaluations and a cancel func. Slow
// subscribers miss evaluations rather than block the pipeline.
func (m *Manager) Subscribe(buffer int) (<-chan Evaluation, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Evaluation, buffer)
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) broadcast(ev Evaluation) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
