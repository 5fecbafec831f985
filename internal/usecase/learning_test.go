package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
)

type memStore struct {
	mu   sync.Mutex
	days map[string][]models.PatternStats
	fail bool
	save int
}

func newMemStore() *memStore { return &memStore{days: make(map[string][]models.PatternStats)} }

func (m *memStore) MergeDay(_ context.Context, day string, merge func([]models.PatternStats) []models.PatternStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store down")
	}
	m.save++
	m.days[day] = merge(m.days[day])
	return nil
}

func (m *memStore) LoadDay(_ context.Context, day string) ([]models.PatternStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.days[day], nil
}

func (m *memStore) LoadDays(ctx context.Context, days []string) (map[string][]models.PatternStats, error) {
	out := make(map[string][]models.PatternStats, len(days))
	for _, d := range days {
		st, _ := m.LoadDay(ctx, d)
		out[d] = st
	}
	return out, nil
}

func outcome(o models.Outcome, at time.Time) models.PatternOutcome {
	return models.PatternOutcome{
		Symbol:    "EURUSD",
		Phase:     models.Phase3,
		Direction: models.Bullish,
		Tags:      []string{"structure_shift", "optimal_entry"},
		Outcome:   o,
		Time:      at,
	}
}

func TestLearningFlushMergesIntoStore(t *testing.T) {
	store := newMemStore()
	store.days["2024-03-04"] = []models.PatternStats{
		{Day: "2024-03-04", Pattern: "phase3:bullish:structure_shift+optimal_entry", Wins: 2},
	}
	l := NewLearningRecorder(store)

	day := modeltest.Epoch.Add(10 * time.Hour)
	l.Record(outcome(models.OutcomeTakeProfit, day))
	l.Record(outcome(models.OutcomeStopLoss, day))
	l.Record(outcome(models.OutcomeStopLoss, day.Add(24*time.Hour)))
	l.Record(outcome("", day))
	assert.Equal(t, 2, l.Pending())

	require.NoError(t, l.Flush(context.Background()))
	assert.Equal(t, 0, l.Pending())

	got := store.days["2024-03-04"]
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Wins)
	assert.Equal(t, 1, got[0].Losses)
	assert.Len(t, store.days["2024-03-05"], 1)
}

func TestLearningFlushFailureKeepsPending(t *testing.T) {
	store := newMemStore()
	store.fail = true
	l := NewLearningRecorder(store)

	l.Record(outcome(models.OutcomeTakeProfit, modeltest.Epoch))
	assert.Error(t, l.Flush(context.Background()))
	assert.Equal(t, 1, l.Pending())

	l.Record(outcome(models.OutcomeTakeProfit, modeltest.Epoch))
	store.fail = false
	require.NoError(t, l.Flush(context.Background()))

	got := store.days["2024-03-04"]
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Wins)
}

func TestLearningStatsIncludesPending(t *testing.T) {
	store := newMemStore()
	l := NewLearningRecorder(store)
	l.Record(outcome(models.OutcomeStopLoss, modeltest.Epoch))

	stats, err := l.Stats(context.Background(), "2024-03-04")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Losses)
	assert.Equal(t, 0.0, stats[0].WinRate())
}

func TestLearningStatsRangeMergesStoredAndPending(t *testing.T) {
	store := newMemStore()
	store.days["2024-03-04"] = []models.PatternStats{
		{Day: "2024-03-04", Pattern: "phase3:bullish:structure_shift+optimal_entry", Wins: 1},
	}
	l := NewLearningRecorder(store)
	l.Record(outcome(models.OutcomeStopLoss, modeltest.Epoch.Add(2*time.Hour)))
	l.Record(outcome(models.OutcomeTakeProfit, modeltest.Epoch.Add(50*time.Hour)))

	got, err := l.StatsRange(context.Background(), modeltest.Epoch, modeltest.Epoch.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got["2024-03-04"], 1)
	assert.Equal(t, 1, got["2024-03-04"][0].Wins)
	assert.Equal(t, 1, got["2024-03-04"][0].Losses)
	require.Len(t, got["2024-03-06"], 1)
	assert.Equal(t, 1, got["2024-03-06"][0].Wins)
	_, ok := got["2024-03-05"]
	assert.False(t, ok)
}

func TestLearningStatsRangeRejectsBadBounds(t *testing.T) {
	l := NewLearningRecorder(newMemStore())

	_, err := l.StatsRange(context.Background(), modeltest.Epoch, modeltest.Epoch.Add(-24*time.Hour))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = l.StatsRange(context.Background(), modeltest.Epoch, modeltest.Epoch.AddDate(0, 0, MaxStatsRangeDays))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	got, err := l.StatsRange(context.Background(), modeltest.Epoch, modeltest.Epoch.AddDate(0, 0, MaxStatsRangeDays-1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLearningStartFlushesOnShutdown(t *testing.T) {
	store := newMemStore()
	l := NewLearningRecorder(store, WithFlushInterval(time.Hour))
	l.Record(outcome(models.OutcomeTakeProfit, modeltest.Epoch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
	assert.Equal(t, 1, store.save)
}

func TestSessionFeedsRecorderWithoutBlocking(t *testing.T) {
	store := newMemStore()
	l := NewLearningRecorder(store)
	s := NewSession("EURUSD", DefaultStrategyConfig(), WithOutcomeRecorder(l))
	s.machine.SetBias(models.Bullish)
	s.ote[0] = OTEState{Direction: models.Bullish, SignalTime: modeltest.Epoch, Zone: bullishZone(1.1, 1.11)}
	ev := &Evaluation{Signals: []models.StructureShiftSignal{{Direction: models.Bullish, Time: modeltest.Epoch, ExpiresAt: 30}}}
	s.decide(ev, models.Bar{Close: 1.1035}, 12)
	require.NotNil(t, ev.Decision)

	_, err := s.RecordOutcome(models.Phase3, models.OutcomeStopLoss, modeltest.Epoch)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Pending())
}
