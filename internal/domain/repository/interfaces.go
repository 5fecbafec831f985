package repository

import (
	"context"
	"time"

	"SmartFlow/internal/domain/models"
)

// BarStore provides access to persisted bar history.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, from, to time.Time) (models.Series, error)
	GetLatestNBars(ctx context.Context, symbol string, tf Timeframe, n int) (models.Series, error)
	StoreBars(ctx context.Context, symbol string, tf Timeframe, bars []models.Bar) error
}

// Journal is the append-only sink for decisions and signals.
type Journal interface {
	PublishDecision(ctx context.Context, d models.Decision) error
	PublishSignal(ctx context.Context, s models.StructureShiftSignal) error
	Close() error
}

// OutcomeStore persists day-keyed learning statistics.
type OutcomeStore interface {
	// MergeDay replaces the record of day with merge(current record), with no
	// other writer able to touch the day in between.
	MergeDay(ctx context.Context, day string, merge func(existing []models.PatternStats) []models.PatternStats) error
	LoadDay(ctx context.Context, day string) ([]models.PatternStats, error)
	LoadDays(ctx context.Context, days []string) (map[string][]models.PatternStats, error)
}

// Metrics records pipeline counters and latencies.
type Metrics interface {
	RecordSignal(tf, direction string)
	RecordRejection(stage, reason string)
	RecordDecision(phase, direction string)
	RecordCascadeReset(cascade string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
