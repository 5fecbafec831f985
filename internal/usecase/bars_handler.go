package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/middleware"
	pkgkafka "SmartFlow/pkg/kafka"
	"SmartFlow/pkg/logger"
	"SmartFlow/pkg/metrics"
	"SmartFlow/pkg/util"
)

// barMessage is the feed schema. t is the bar open time as unix seconds,
// unix milliseconds or an RFC3339 string.
type barMessage struct {
	Symbol string          `json:"symbol"`
	TF     string          `json:"tf"`
	T      json.RawMessage `json:"t"`
	O      float64         `json:"o"`
	H      float64         `json:"h"`
	L      float64         `json:"l"`
	C      float64         `json:"c"`
	V      float64         `json:"v"`
	Closed bool            `json:"closed"`
}

func parseBarTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("missing bar time: %w", models.ErrInvalidInput)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("bar time: %w", models.ErrInvalidInput)
		}
		if t, ok := util.ParseTime(s); ok {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("bar time %q: %w", s, models.ErrInvalidInput)
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, fmt.Errorf("bar time %s: %w", raw, models.ErrInvalidInput)
	}
	if ts > 1e11 { // ms
		return time.UnixMilli(ts).UTC(), nil
	}
	return time.Unix(ts, 0).UTC(), nil
}

func (m barMessage) bar() (models.Bar, error) {
	t, err := parseBarTime(m.T)
	if err != nil {
		return models.Bar{}, err
	}
	return models.Bar{Time: t, Open: m.O, High: m.H, Low: m.L, Close: m.C, Volume: m.V}, nil
}

// BarsHandler consumes the bar feed. Each bar passes the gate; a closed
// execution bar triggers an evaluation whose new signals and decision are
// appended to the journal. Bad messages are logged, counted and skipped.
type BarsHandler struct {
	topic   string
	execTF  domrepo.Timeframe
	gate    *middleware.BarGate
	manager *Manager
	journal domrepo.Journal
	store   domrepo.BarStore
	symbols map[string]bool
	metrics domrepo.Metrics
	log     *logger.Logger
}

type BarsOption func(*BarsHandler)

// WithBarsLogger sets the handler logger.
func WithBarsLogger(l *logger.Logger) BarsOption {
	return func(h *BarsHandler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithBarsMetrics sets the metrics recorder.
func WithBarsMetrics(m domrepo.Metrics) BarsOption {
	return func(h *BarsHandler) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithBarPersistence writes every admitted closed bar to store.
func WithBarPersistence(store domrepo.BarStore) BarsOption {
	return func(h *BarsHandler) { h.store = store }
}

// WithSymbols restricts the handler to the listed symbols.
func WithSymbols(symbols ...string) BarsOption {
	return func(h *BarsHandler) {
		for _, s := range symbols {
			h.symbols[s] = true
		}
	}
}

func NewBarsHandler(topic string, cfg StrategyConfig, gate *middleware.BarGate, manager *Manager, journal domrepo.Journal, opts ...BarsOption) *BarsHandler {
	h := &BarsHandler{
		topic:   topic,
		execTF:  domrepo.Timeframe(cfg.Session.ExecutionTF),
		gate:    gate,
		manager: manager,
		journal: journal,
		symbols: make(map[string]bool),
		metrics: metrics.Nop{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BarsHandler) Topic() string { return h.topic }

// Handle never returns an error for bad input; redelivery of the same bar is
// absorbed by the gate as a duplicate.
func (h *BarsHandler) Handle(ctx context.Context, b []byte) error {
	var m barMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("feed_decode")
		h.log.Warn("bars: undecodable message", logger.Error(err), logger.Int("bytes", len(b)))
		return nil
	}
	if len(h.symbols) > 0 && !h.symbols[m.Symbol] {
		h.metrics.RecordRejection("feed", "unknown_symbol")
		h.log.Debug("bars: symbol not tracked", logger.String("symbol", m.Symbol))
		return nil
	}
	bar, err := m.bar()
	if err != nil {
		h.metrics.RecordError("feed_invalid")
		h.log.Warn("bars: invalid bar time", logger.String("symbol", m.Symbol), logger.Error(err))
		return nil
	}
	tf := domrepo.Timeframe(m.TF)
	adm, err := h.gate.Admit(m.Symbol, tf, bar, m.Closed)
	if err != nil {
		h.metrics.RecordError("feed_invalid")
		h.log.Error("bars: contract violation", logger.String("symbol", m.Symbol), logger.String("tf", m.TF), logger.Error(err))
		return nil
	}
	if adm != middleware.Appended {
		if !adm.Accepted() {
			h.log.Debug("bars: dropped", logger.String("symbol", m.Symbol), logger.String("tf", m.TF), logger.String("admission", string(adm)))
		}
		return nil
	}
	if h.store != nil {
		if err := h.store.StoreBars(ctx, m.Symbol, tf, []models.Bar{bar}); err != nil {
			h.metrics.RecordError("bar_store")
			h.log.Warn("bars: persist failed", logger.String("symbol", m.Symbol), logger.Error(err))
		}
	}
	if tf != h.execTF {
		return nil
	}

	h.metrics.RecordLatency("feed_lag", time.Since(bar.Time.Add(tf.Duration())).Seconds())
	ev, err := h.manager.Evaluate(Input{Symbol: m.Symbol, Series: h.gate.Snapshot(m.Symbol), ClosedOnly: true})
	if err != nil {
		h.metrics.RecordError("evaluate")
		h.log.Error("bars: evaluation failed", logger.String("symbol", m.Symbol), logger.Error(err))
		return nil
	}
	h.Publish(ctx, ev)
	return nil
}

// Publish appends the new signals and the decision of ev to the journal.
// Journal failures are logged and counted.
func (h *BarsHandler) Publish(ctx context.Context, ev Evaluation) {
	if h.journal == nil {
		return
	}
	for _, s := range ev.NewSignals {
		if err := h.journal.PublishSignal(ctx, s); err != nil {
			h.metrics.RecordError("journal_signal")
			h.log.Warn("bars: publish signal failed", logger.String("id", s.ID), logger.Error(err))
		}
	}
	if ev.Decision == nil {
		return
	}
	if err := h.journal.PublishDecision(ctx, *ev.Decision); err != nil {
		h.metrics.RecordError("journal_decision")
		h.log.Error("bars: publish decision failed", logger.String("id", ev.Decision.ID), logger.Error(err))
	}
}

var _ pkgkafka.MessageHandler = (*BarsHandler)(nil)
