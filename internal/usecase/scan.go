package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/middleware"
	"SmartFlow/pkg/logger"
)

// Scanner loads bar history from the store into the gate windows and
// evaluates the latest closed execution bar of each symbol.
type Scanner struct {
	store      domrepo.BarStore
	gate       *middleware.BarGate
	manager    *Manager
	timeframes []domrepo.Timeframe
	window     int
	log        *logger.Logger
}

// NewScanner loads window bars per timeframe. Timeframes the strategy reads
// are always included.
func NewScanner(store domrepo.BarStore, gate *middleware.BarGate, manager *Manager, cfg StrategyConfig, timeframes []string, window int, l *logger.Logger) *Scanner {
	if l == nil {
		l = logger.Nop()
	}
	if window <= 0 {
		window = 500
	}
	want := make(map[domrepo.Timeframe]bool)
	for _, tf := range timeframes {
		want[domrepo.Timeframe(tf)] = true
	}
	for _, tf := range cfg.Timeframes() {
		want[tf] = true
	}
	var tfs []domrepo.Timeframe
	for _, tf := range domrepo.Timeframes {
		if want[tf] {
			tfs = append(tfs, tf)
		}
	}
	return &Scanner{store: store, gate: gate, manager: manager, timeframes: tfs, window: window, log: l}
}

// Load seeds the windows of symbol and returns the bars loaded per timeframe.
func (s *Scanner) Load(ctx context.Context, symbol string) (map[domrepo.Timeframe]int, error) {
	if symbol == "" {
		return nil, fmt.Errorf("scan: empty symbol: %w", models.ErrInvalidInput)
	}
	loaded := make(map[domrepo.Timeframe]int, len(s.timeframes))
	for _, tf := range s.timeframes {
		bars, err := s.store.GetLatestNBars(ctx, symbol, tf, s.window)
		if err != nil {
			return loaded, fmt.Errorf("load %s %s: %w", symbol, tf, err)
		}
		loaded[tf] = s.gate.Seed(symbol, tf, bars)
	}
	return loaded, nil
}

// Scan loads history for symbol and evaluates its latest closed bar.
func (s *Scanner) Scan(ctx context.Context, symbol string) (Evaluation, error) {
	start := time.Now()
	loaded, err := s.Load(ctx, symbol)
	if err != nil {
		return Evaluation{}, err
	}
	ev, err := s.manager.Evaluate(Input{Symbol: symbol, Series: s.gate.Snapshot(symbol), ClosedOnly: true})
	if err != nil {
		return Evaluation{}, fmt.Errorf("scan %s: %w", symbol, err)
	}
	fields := []logger.Field{
		logger.String("symbol", symbol),
		logger.String("reason", ev.Reason),
		logger.Duration("took", time.Since(start)),
	}
	for tf, n := range loaded {
		fields = append(fields, logger.Int("bars_"+string(tf), n))
	}
	s.log.Info("scan complete", fields...)
	return ev, nil
}

// Warmup scans every symbol. A failing symbol does not stop the others.
func (s *Scanner) Warmup(ctx context.Context, symbols []string) ([]Evaluation, error) {
	var errs []error
	out := make([]Evaluation, 0, len(symbols))
	for _, sym := range symbols {
		ev, err := s.Scan(ctx, sym)
		if err != nil {
			s.log.Warn("warmup failed", logger.String("symbol", sym), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}
