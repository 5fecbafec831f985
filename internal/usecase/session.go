package usecase

import (
	"fmt"
	"sort"
	"time"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	domsvc "SmartFlow/internal/domain/service"
	"SmartFlow/internal/services/cascade"
	"SmartFlow/internal/services/confirm"
	"SmartFlow/internal/services/entryzone"
	"SmartFlow/internal/services/liquidity"
	"SmartFlow/internal/services/phase"
	"SmartFlow/internal/services/structure"
	"SmartFlow/internal/services/swing"
	"SmartFlow/pkg/logger"
	"SmartFlow/pkg/metrics"
)

// Evaluation reasons that are not gate or phase rejections.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonNoBias           = "no_bias"
	ReasonPositionActive   = "position_active"
	ReasonNoSignal         = "no_signal"
	ReasonConfirmation     = "confirmation"
	ReasonExtraConfirm     = "extra_confirmation"
	ReasonDegenerateRisk   = "degenerate_risk"
)

// Input is one evaluation request: the rolling windows of a symbol keyed by timeframe.
type Input struct {
	Symbol string
	// Now defaults to the close time of the last closed execution bar.
	Now    time.Time
	Series map[domrepo.Timeframe]models.Series
	// ClosedOnly marks windows that carry no forming bar.
	ClosedOnly bool
}

// OTEState is the optimal entry zone derived for one direction.
type OTEState struct {
	Direction   models.Direction             `json:"direction"`
	SignalTime  time.Time                    `json:"signal_time"`
	Zone        models.OTEZone               `json:"zone"`
	Status      entryzone.ContinuationStatus `json:"status,omitempty"`
	Touched     bool                         `json:"touched"`
	InZone      bool                         `json:"in_zone"`
	Invalidated bool                         `json:"invalidated"`
}

// Usable reports whether a zone exists and price has not closed beyond its start.
func (s OTEState) Usable() bool {
	return !s.SignalTime.IsZero() && s.Zone.Valid() && !s.Invalidated
}

// Evaluation is the full result of one pass over a closed execution bar.
type Evaluation struct {
	Symbol        string                        `json:"symbol"`
	Time          time.Time                     `json:"time"`
	Now           time.Time                     `json:"now"`
	Bias          models.Direction              `json:"bias"`
	Zones         []models.LiquidityZone        `json:"zones"`
	Sweeps        []models.SweepEvent           `json:"sweeps"`
	Signals       []models.StructureShiftSignal `json:"signals"`
	OTE           []OTEState                    `json:"ote"`
	ReactionZones []models.ReactionZone         `json:"reaction_zones"`
	Verdict       *confirm.Verdict              `json:"verdict,omitempty"`
	Cascades      []cascade.State               `json:"cascades"`
	Phase         phase.Snapshot                `json:"phase"`
	Decision      *models.Decision              `json:"decision,omitempty"`
	// NewSignals are the signals first seen during this pass.
	NewSignals []models.StructureShiftSignal `json:"-"`
	Reason     string                        `json:"reason,omitempty"`
}

type eventKind int

const (
	sweepEvent eventKind = iota
	shiftEvent
)

// event is a sweep or shift stamped with its bar close time.
type event struct {
	kind eventKind
	tf   domrepo.Timeframe
	dir  models.Direction
	at   time.Time
}

type frame struct {
	tf     domrepo.Timeframe
	series models.Series
	last   int
}

type frameScan struct {
	zones   []models.LiquidityZone
	sweeps  []models.SweepEvent
	signals []models.StructureShiftSignal
	fresh   []models.StructureShiftSignal
	events  []event
}

type attempt struct {
	phase     models.EntryPhase
	direction models.Direction
	tags      []string
}

// Session runs the signal pipeline for one symbol. It is not safe for
// concurrent use; Manager serializes access per symbol.
type Session struct {
	symbol string
	cfg    StrategyConfig

	execTF   domrepo.Timeframe
	structTF domrepo.Timeframe
	biasTF   domrepo.Timeframe

	instrument models.Instrument
	liq        *liquidity.Detector
	shifts     *structure.Detector
	zones      *entryzone.Deriver
	gate       *confirm.Gate
	cascades   *cascade.Registry
	machine    *phase.Machine

	recorder domsvc.OutcomeRecorder
	metrics  domrepo.Metrics
	log      *logger.Logger

	cursor map[domrepo.Timeframe]time.Time
	ote    [2]OTEState
	used   [2]time.Time
	open   *attempt
	// orphan is an attempt whose cycle ended while it was still open; its
	// outcome is still owed to the recorder.
	orphan *attempt
	last   *Evaluation
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *logger.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionMetrics sets the metrics recorder.
func WithSessionMetrics(m domrepo.Metrics) SessionOption {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithOutcomeRecorder forwards closed attempts to r.
func WithOutcomeRecorder(r domsvc.OutcomeRecorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// NewSession creates a session with every cascade inactive and no bias.
func NewSession(symbol string, cfg StrategyConfig, opts ...SessionOption) *Session {
	in := models.Instrument{Symbol: symbol, TickSize: cfg.Instrument.TickSize}
	s := &Session{
		symbol:     symbol,
		cfg:        cfg,
		execTF:     domrepo.Timeframe(cfg.Session.ExecutionTF),
		structTF:   domrepo.Timeframe(cfg.Session.StructureTF),
		biasTF:     domrepo.Timeframe(cfg.Session.BiasTF),
		instrument: in,
		liq:        liquidity.New(cfg.Liquidity),
		shifts:     structure.New(cfg.Structure),
		zones:      entryzone.New(cfg.EntryZone, in),
		cascades:   cascade.New(cfg.Cascades),
		machine:    phase.New(cfg.Phase),
		metrics:    metrics.Nop{},
		log:        logger.Nop(),
		cursor:     make(map[domrepo.Timeframe]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.String("symbol", symbol))
	s.gate = confirm.NewGate(cfg.Confirmation, confirm.WithLogger(s.log))
	s.ote = [2]OTEState{{Direction: models.Bullish}, {Direction: models.Bearish}}
	return s
}

// Symbol returns the session symbol.
func (s *Session) Symbol() string { return s.symbol }

// Last returns the most recent evaluation, if any.
func (s *Session) Last() (Evaluation, bool) {
	if s.last == nil {
		return Evaluation{}, false
	}
	return *s.last, true
}

// Phase returns the phase machine snapshot.
func (s *Session) Phase() phase.Snapshot { return s.machine.Snapshot() }

// Cascades returns a snapshot of every cascade.
func (s *Session) Cascades() []cascade.State {
	out := make([]cascade.State, 0, len(cascade.Names))
	for _, n := range cascade.Names {
		out = append(out, s.cascades.Snapshot(n))
	}
	return out
}

func dirIndex(d models.Direction) int {
	if d == models.Bearish {
		return 1
	}
	return 0
}

// Evaluate runs the pipeline on the last closed execution bar. Evaluating the
// same closed bar twice returns the cached result without touching state.
func (s *Session) Evaluate(in Input) (Evaluation, error) {
	if in.Symbol != "" && in.Symbol != s.symbol {
		return Evaluation{}, fmt.Errorf("evaluate %s: got input for %s: %w", s.symbol, in.Symbol, models.ErrInvalidInput)
	}
	open := s.cfg.Session.OpenBars
	if in.ClosedOnly {
		open = 0
	}
	exec := in.Series[s.execTF]
	last := exec.LastClosed(open)
	if last < 0 {
		return Evaluation{Symbol: s.symbol, Reason: ReasonInsufficientData}, nil
	}
	barTime := exec[last].Time
	if s.last != nil && !barTime.After(s.last.Time) {
		return *s.last, nil
	}

	start := time.Now()
	now := in.Now
	if now.IsZero() {
		now = barTime.Add(s.execTF.Duration())
	}
	ev := Evaluation{Symbol: s.symbol, Time: barTime, Now: now}

	ev.Bias = s.updateBias(in.Series[s.biasTF], open)

	for _, n := range s.cascades.Expire(now) {
		s.cascadeReset(n, cascade.ReasonExpired)
	}

	var (
		events      []event
		structFrame frame
		structScan  frameScan
		haveStruct  bool
	)
	for _, f := range s.frames(in, open) {
		res := s.scan(f)
		events = append(events, res.events...)
		if f.tf == s.execTF {
			ev.Zones, ev.Sweeps = res.zones, res.sweeps
		}
		if f.tf == s.structTF {
			structFrame, structScan, haveStruct = f, res, true
		}
	}
	s.register(events)

	if haveStruct {
		ev.Signals = structScan.signals
		ev.NewSignals = structScan.fresh
		s.updateOTE(structFrame, structScan.signals)
	}
	ev.OTE = []OTEState{s.ote[0], s.ote[1]}
	ev.ReactionZones = s.zones.ReactionZones(exec, last)

	if haveStruct {
		s.decide(&ev, exec[last], structFrame.last)
	} else {
		ev.Reason = ReasonInsufficientData
	}

	ev.Cascades = s.Cascades()
	ev.Phase = s.machine.Snapshot()
	s.metrics.RecordLatency("evaluate", time.Since(start).Seconds())

	cached := ev
	s.last = &cached
	return ev, nil
}

func (s *Session) updateBias(series models.Series, open int) models.Direction {
	dir := models.DirectionNone
	if last := series.LastClosed(open); last >= 0 {
		dir = swing.StructureBias(series, last, s.cfg.Session.BiasPivot)
	}
	prev := s.machine.Bias()
	path := s.machine.SetBias(dir)
	if len(path) == 0 {
		return dir
	}
	if s.open != nil {
		s.log.Warn("bias changed with an open attempt",
			logger.String("phase", s.open.phase.String()))
	}
	s.log.Info("bias changed",
		logger.String("from", prev.String()),
		logger.String("to", dir.String()))
	s.clearCycle()
	return dir
}

// clearCycle drops the OTE zones, consumed signals and open attempt of the
// current bias cycle.
func (s *Session) clearCycle() {
	s.ote = [2]OTEState{{Direction: models.Bullish}, {Direction: models.Bearish}}
	s.used = [2]time.Time{}
	if s.open != nil {
		s.orphan = s.open
	}
	s.open = nil
}

// Reset returns the phase machine to NoBias and every cascade to Inactive.
// Bars already scanned are not registered again; the bias is re-derived on
// the next evaluation.
func (s *Session) Reset() []phase.Transition {
	path := s.machine.Reset()
	s.cascades.ResetAll()
	for _, n := range cascade.Names {
		s.metrics.RecordCascadeReset(n.String())
	}
	if s.open != nil {
		s.log.Warn("reset with an open attempt", logger.String("phase", s.open.phase.String()))
	}
	s.clearCycle()
	s.last = nil
	s.log.Info("session reset")
	return path
}

// frames returns the windows the pipeline needs, shortest timeframe first.
func (s *Session) frames(in Input, open int) []frame {
	need := map[domrepo.Timeframe]bool{s.execTF: true, s.structTF: true}
	for _, n := range cascade.Names {
		st := s.cascades.Settings(n)
		need[domrepo.Timeframe(st.HTF)] = true
		need[domrepo.Timeframe(st.Mid)] = true
		need[domrepo.Timeframe(st.LTF)] = true
	}
	var out []frame
	for _, tf := range domrepo.Timeframes {
		if !need[tf] {
			continue
		}
		series := in.Series[tf]
		last := series.LastClosed(open)
		if last < 0 {
			continue
		}
		out = append(out, frame{tf: tf, series: series, last: last})
	}
	return out
}

// detectsShifts reports whether structure shifts are tracked on tf.
func (s *Session) detectsShifts(tf domrepo.Timeframe) bool {
	if tf == s.structTF {
		return true
	}
	for _, n := range cascade.Names {
		if domrepo.Timeframe(s.cascades.Settings(n).LTF) == tf {
			return true
		}
	}
	return false
}

// scan evaluates the bars of f closed since the previous pass. Sweeps and
// shifts are recomputed from the window, so only the cursor carries over.
func (s *Session) scan(f frame) frameScan {
	cursor, seen := s.cursor[f.tf]
	newFrom := f.last + 1
	for k := f.last; k >= 0 && f.last-k < s.cfg.Session.CatchUpBars; k-- {
		if seen && !f.series[k].Time.After(cursor) {
			break
		}
		newFrom = k
	}
	from := newFrom
	if f.tf == s.structTF {
		if h := f.last - s.cfg.Session.SignalHistory + 1; h < from {
			from = h
		}
	}
	if from < 0 {
		from = 0
	}

	lookback := s.cfg.Structure.SweepLookback
	sweepFrom := from - lookback
	if sweepFrom < 0 {
		sweepFrom = 0
	}
	sweepsAt := make([][]models.SweepEvent, f.last-sweepFrom+1)
	var res frameScan
	for k := sweepFrom; k <= f.last; k++ {
		zones, sweeps := s.liq.Scan(f.series, k, s.instrument)
		sweepsAt[k-sweepFrom] = sweeps
		if k == f.last {
			res.zones = liquidity.Active(zones, f.series[k].Time)
			res.sweeps = sweeps
		}
	}

	shifts := s.detectsShifts(f.tf)
	for k := from; k <= f.last; k++ {
		fresh := k >= newFrom
		closeAt := f.series[k].Time.Add(f.tf.Duration())
		if fresh {
			for _, sw := range sweepsAt[k-sweepFrom] {
				res.events = append(res.events, event{kind: sweepEvent, tf: f.tf, dir: sw.Direction, at: closeAt})
			}
		}
		if !shifts {
			continue
		}
		lo := k - lookback
		if lo < sweepFrom {
			lo = sweepFrom
		}
		var evidence []models.SweepEvent
		for j := lo; j <= k; j++ {
			evidence = append(evidence, sweepsAt[j-sweepFrom]...)
		}
		r, err := s.shifts.Detect(f.series, k, structure.Evidence{Bias: s.machine.Bias(), Sweeps: evidence})
		if err != nil {
			s.metrics.RecordError("structure_detect")
			s.log.Error("structure detect failed", logger.String("tf", string(f.tf)), logger.Int("index", k), logger.Error(err))
			continue
		}
		if !r.Emitted() {
			if fresh && r.Candidate != models.DirectionNone && f.tf == s.structTF {
				s.metrics.RecordRejection("structure", string(r.Reason))
				s.log.Debug("structure candidate rejected",
					logger.String("tf", string(f.tf)),
					logger.String("direction", r.Candidate.String()),
					logger.String("reason", string(r.Reason)))
			}
			continue
		}
		sig := *r.Signal
		sig.Symbol = s.symbol
		sig.Timeframe = string(f.tf)
		sig.ID = models.NewID(s.symbol, string(f.tf), sig.Time.UTC().Format(time.RFC3339), sig.Direction.String())
		if f.tf == s.structTF {
			res.signals = append(res.signals, sig)
		}
		if fresh {
			res.events = append(res.events, event{kind: shiftEvent, tf: f.tf, dir: sig.Direction, at: closeAt})
			if f.tf == s.structTF {
				res.fresh = append(res.fresh, sig)
				s.metrics.RecordSignal(string(f.tf), sig.Direction.String())
			}
		}
	}
	if newFrom <= f.last {
		s.cursor[f.tf] = f.series[f.last].Time
	}
	return res
}

// register feeds events to the cascades in close-time order; on equal times
// the longer timeframe goes first.
func (s *Session) register(events []event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].at.Equal(events[j].at) {
			return events[i].at.Before(events[j].at)
		}
		return events[i].tf.Duration() > events[j].tf.Duration()
	})
	for _, e := range events {
		for _, n := range cascade.Names {
			st := s.cascades.Settings(n)
			var r cascade.Result
			switch {
			case e.kind == sweepEvent && e.tf == domrepo.Timeframe(st.HTF):
				r = s.cascades.RegisterHTFSweep(n, e.dir, e.at)
			case e.kind == sweepEvent && e.tf == domrepo.Timeframe(st.Mid):
				r = s.cascades.RegisterMidSweep(n, e.dir, e.at)
			case e.kind == shiftEvent && e.tf == domrepo.Timeframe(st.LTF):
				r = s.cascades.RegisterLTFShift(n, e.dir, e.at)
			default:
				continue
			}
			switch {
			case r.Reset:
				s.cascadeReset(n, r.Reason)
			case !r.Accepted:
				s.log.Debug("cascade event refused",
					logger.String("cascade", n.String()),
					logger.String("tf", string(e.tf)),
					logger.String("reason", string(r.Reason)))
			case r.Stage == cascade.Complete:
				s.log.Info("cascade complete", logger.String("cascade", n.String()), logger.Time("at", e.at))
			}
		}
	}
}

func (s *Session) cascadeReset(n cascade.Name, reason cascade.RejectReason) {
	s.metrics.RecordCascadeReset(n.String())
	s.log.Warn("cascade reset", logger.String("cascade", n.String()), logger.String("reason", string(reason)))
}

// updateOTE derives the zone of the latest live signal in each direction and
// replays the bars after the impulse end for touches and invalidation.
func (s *Session) updateOTE(f frame, signals []models.StructureShiftSignal) {
	for _, dir := range []models.Direction{models.Bullish, models.Bearish} {
		idx := dirIndex(dir)
		prev := s.ote[idx]
		sig, ok := latestSignal(signals, dir, f.last)
		if !ok {
			s.ote[idx] = OTEState{Direction: dir}
			continue
		}
		st := OTEState{Direction: dir, SignalTime: sig.Time}
		zone, status, ok := s.zones.Continuation(f.series, sig, f.last)
		if !ok && status == entryzone.ContinuationBase && sig.Sweep != nil {
			zone, ok = s.zones.SweepToShift(f.series, *sig.Sweep, sig)
		}
		st.Status = status
		if ok {
			st.Zone = zone
			for k := zone.EndIndex + 1; k <= f.last; k++ {
				b := f.series[k]
				if zone.Invalidated(b) {
					st.Invalidated = true
					break
				}
				if zone.Touched(b) {
					st.Touched = true
				}
			}
			st.InZone = !st.Invalidated && zone.Contains(f.series[f.last].Close)
		}
		if st.Invalidated && !(prev.Invalidated && prev.SignalTime.Equal(st.SignalTime)) {
			s.log.Warn("optimal entry invalidated",
				logger.String("direction", dir.String()),
				logger.Float64("start", zone.Start))
		}
		s.ote[idx] = st
	}
}

func latestSignal(signals []models.StructureShiftSignal, dir models.Direction, at int) (models.StructureShiftSignal, bool) {
	for i := len(signals) - 1; i >= 0; i-- {
		if signals[i].Direction == dir && !signals[i].Stale(at) {
			return signals[i], true
		}
	}
	return models.StructureShiftSignal{}, false
}

// tags lists the confirmations present for an entry in dir.
// An order block only counts when price sits inside it.
func (s *Session) tags(dir models.Direction, price float64, sig models.StructureShiftSignal, rz []models.ReactionZone) []string {
	var tags []string
	if sig.HadSweep {
		tags = append(tags, string(confirm.TagSweep))
	}
	tags = append(tags, string(confirm.TagStructureShift))
	if sig.HasGap {
		tags = append(tags, string(confirm.TagStructureShiftConfirmed))
	}
	for _, z := range rz {
		if z.Kind == models.OrderBlock && z.Direction == dir && z.Contains(price) {
			tags = append(tags, string(confirm.TagReactionZone))
			break
		}
	}
	for _, z := range rz {
		if z.Kind == models.BreakerBlock && z.Direction == dir {
			tags = append(tags, string(confirm.TagBreaker))
			break
		}
	}
	if sig.HasGap {
		tags = append(tags, string(confirm.TagGap))
	}
	if s.ote[dirIndex(dir)].Usable() {
		tags = append(tags, string(confirm.TagOptimalEntry))
	}
	return tags
}

// decide tries Phase 1 then Phase 3 from a pending state.
func (s *Session) decide(ev *Evaluation, bar models.Bar, structLast int) {
	if s.open != nil {
		ev.Reason = ReasonPositionActive
		return
	}
	if s.machine.Bias() == models.DirectionNone {
		ev.Reason = ReasonNoBias
		return
	}

	d1 := s.machine.Direction1()
	e1 := s.machine.CanEnterPhase1(phase.Phase1Context{
		OTETouched:   s.ote[dirIndex(d1)].Touched,
		CascadeValid: s.cascades.IsValid(cascade.Execution, ev.Now),
	})
	if e1.OK {
		if s.tryEntry(ev, models.Phase1, e1, bar, structLast) {
			return
		}
	} else {
		s.metrics.RecordRejection("phase1", e1.Reason)
		ev.Reason = "phase1:" + e1.Reason
	}

	d3 := s.machine.Direction3()
	e3 := s.machine.CanEnterPhase3(phase.Phase3Context{HasValidOTE: s.ote[dirIndex(d3)].Usable()})
	if !e3.OK {
		s.metrics.RecordRejection("phase3", e3.Reason)
		ev.Reason = "phase3:" + e3.Reason
		return
	}
	s.tryEntry(ev, models.Phase3, e3, bar, structLast)
}

func (s *Session) tryEntry(ev *Evaluation, p models.EntryPhase, e phase.Eligibility, bar models.Bar, structLast int) bool {
	idx := dirIndex(e.Direction)
	sig, ok := latestSignal(ev.Signals, e.Direction, structLast)
	if !ok || !sig.Time.After(s.used[idx]) {
		ev.Reason = p.String() + ":" + ReasonNoSignal
		return false
	}
	tags := s.tags(e.Direction, bar.Close, sig, ev.ReactionZones)
	v := s.gate.Evaluate(tags)
	ev.Verdict = &v
	if !v.Admit {
		s.metrics.RecordRejection("confirmation", v.Reason)
		ev.Reason = p.String() + ":" + ReasonConfirmation
		return false
	}
	// collapse_confirmed only shapes the gate; the extra check needs the raw variant
	if e.ExtraConfirmation && !confirm.Canonicalize(tags, false).Has(confirm.TagStructureShiftConfirmed) {
		s.metrics.RecordRejection("confirmation", ReasonExtraConfirm)
		ev.Reason = p.String() + ":" + ReasonExtraConfirm
		return false
	}

	ote := s.ote[idx]
	var entry, stop float64
	if p == models.Phase3 {
		entry, stop = ote.Zone.Mid, ote.Zone.Start
	} else {
		entry = bar.Close
		stop = phase1Stop(e.Direction, entry, ote, sig, ev.ReactionZones)
	}
	entry = s.instrument.RoundToTick(entry)
	stop = s.instrument.RoundToTick(stop)
	risk := (entry - stop) * float64(e.Direction)
	if risk <= 0 {
		s.metrics.RecordRejection("risk", ReasonDegenerateRisk)
		ev.Reason = p.String() + ":" + ReasonDegenerateRisk
		return false
	}

	var enter func() ([]phase.Transition, error)
	if p == models.Phase1 {
		enter = s.machine.EnterPhase1
	} else {
		enter = s.machine.EnterPhase3
	}
	if _, err := enter(); err != nil {
		s.metrics.RecordError("phase_enter")
		s.log.Error("enter phase failed", logger.String("phase", p.String()), logger.Error(err))
		ev.Reason = p.String() + ":" + err.Error()
		return false
	}

	d := &models.Decision{
		ID:                models.NewID(s.symbol, string(s.execTF), ev.Time.UTC().Format(time.RFC3339), p.String(), e.Direction.String()),
		Symbol:            s.symbol,
		Timeframe:         string(s.execTF),
		Time:              ev.Time,
		Phase:             p,
		Direction:         e.Direction,
		Entry:             entry,
		Stop:              stop,
		Target:            s.instrument.RoundToTick(entry + float64(e.Direction)*e.RewardRisk*risk),
		RiskPercent:       e.RiskPercent * e.RiskMultiplier,
		RiskMultiplier:    e.RiskMultiplier,
		RewardRisk:        e.RewardRisk,
		ExtraConfirmation: e.ExtraConfirmation,
		Tags:              tagStrings(v.Tags),
	}
	s.used[idx] = sig.Time
	s.open = &attempt{phase: p, direction: e.Direction, tags: d.Tags}
	ev.Decision = d
	ev.Reason = ""
	s.metrics.RecordDecision(p.String(), e.Direction.String())
	s.log.Info("entry decision",
		logger.String("phase", p.String()),
		logger.String("direction", e.Direction.String()),
		logger.Float64("entry", entry),
		logger.Float64("stop", stop),
		logger.Float64("target", d.Target),
		logger.Float64("risk_percent", d.RiskPercent))
	return true
}

// phase1Stop takes the most recent reaction-zone stop on the protective side
// of entry, then the OTE start, then the edge of the signal's zone of interest.
func phase1Stop(dir models.Direction, entry float64, ote OTEState, sig models.StructureShiftSignal, rz []models.ReactionZone) float64 {
	below := func(p float64) bool { return (entry-p)*float64(dir) > 0 }
	for i := len(rz) - 1; i >= 0; i-- {
		if rz[i].Direction == dir && below(rz[i].Stop) {
			return rz[i].Stop
		}
	}
	if ote.Zone.Valid() && below(ote.Zone.Start) {
		return ote.Zone.Start
	}
	if sig.Zone.Source != models.ZoneSourceNone && sig.Zone.Source != "" {
		if dir == models.Bullish {
			return sig.Zone.Low
		}
		return sig.Zone.High
	}
	return entry
}

func tagStrings(tags []confirm.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}

// RecordOutcome closes the open attempt of phase p and reports it to the
// outcome recorder.
// An attempt orphaned by a bias change or reset is still reported, but no
// longer moves the phase machine.
func (s *Session) RecordOutcome(p models.EntryPhase, o models.Outcome, at time.Time) ([]phase.Transition, error) {
	if s.open == nil && s.orphan != nil && s.orphan.phase == p {
		a := s.orphan
		s.orphan = nil
		s.report(a, o, at)
		s.log.Info("orphaned attempt closed",
			logger.String("phase", p.String()),
			logger.String("outcome", string(o)))
		return nil, nil
	}
	if s.open == nil || s.open.phase != p {
		return nil, fmt.Errorf("record %s outcome: no open attempt: %w", p, models.ErrTransitionNotAllowed)
	}
	var (
		path []phase.Transition
		err  error
	)
	if p == models.Phase1 {
		path, err = s.machine.ExitPhase1(o)
	} else {
		path, err = s.machine.ExitPhase3(o)
	}
	if err != nil {
		return nil, fmt.Errorf("record %s outcome: %w", p, err)
	}
	a := s.open
	s.open = nil
	s.report(a, o, at)
	s.log.Info("attempt closed",
		logger.String("phase", p.String()),
		logger.String("outcome", string(o)),
		logger.String("state", s.machine.State().String()))
	return path, nil
}

func (s *Session) report(a *attempt, o models.Outcome, at time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(models.PatternOutcome{
		Symbol:    s.symbol,
		Phase:     a.phase,
		Direction: a.direction,
		Tags:      a.tags,
		Outcome:   o,
		Time:      at,
	})
}
