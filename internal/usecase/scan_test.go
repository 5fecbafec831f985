package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/middleware"
)

type historyStore struct {
	series map[domrepo.Timeframe]models.Series
	fail   string
	asked  []domrepo.Timeframe
}

func (h *historyStore) GetBars(context.Context, string, domrepo.Timeframe, time.Time, time.Time) (models.Series, error) {
	return nil, nil
}

func (h *historyStore) GetLatestNBars(_ context.Context, symbol string, tf domrepo.Timeframe, n int) (models.Series, error) {
	if symbol == h.fail {
		return nil, errors.New("clickhouse unavailable")
	}
	h.asked = append(h.asked, tf)
	s := h.series[tf]
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s, nil
}

func (h *historyStore) StoreBars(context.Context, string, domrepo.Timeframe, []models.Bar) error {
	return nil
}

func TestScannerLoadsStrategyTimeframes(t *testing.T) {
	store := &historyStore{series: fullInput().Series}
	gate := middleware.NewBarGate(nil)
	s := NewScanner(store, gate, NewManager(DefaultStrategyConfig()), DefaultStrategyConfig(), []string{"5m"}, 100, nil)

	loaded, err := s.Load(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, domrepo.Timeframes[1:], store.asked, "1m is neither configured nor read")
	assert.Equal(t, 100, loaded[domrepo.TF15m])
	assert.Equal(t, 30, loaded[domrepo.TF1d])
	assert.Len(t, gate.Series("EURUSD", domrepo.TF15m, false), 100)

	_, err = s.Load(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestScannerScanEvaluatesLatestBar(t *testing.T) {
	in := fullInput()
	store := &historyStore{series: in.Series}
	m := NewManager(DefaultStrategyConfig())
	s := NewScanner(store, middleware.NewBarGate(nil), m, DefaultStrategyConfig(), nil, 0, nil)

	ev, err := s.Scan(context.Background(), "EURUSD")
	require.NoError(t, err)
	exec := in.Series[domrepo.TF15m]
	assert.Equal(t, exec[len(exec)-1].Time, ev.Time)

	last, ok := m.Last("EURUSD")
	require.True(t, ok)
	assert.Equal(t, ev.Time, last.Time)
}

func TestScannerWarmupContinuesPastFailures(t *testing.T) {
	store := &historyStore{series: fullInput().Series, fail: "GBPUSD"}
	m := NewManager(DefaultStrategyConfig())
	s := NewScanner(store, middleware.NewBarGate(nil), m, DefaultStrategyConfig(), nil, 0, nil)

	evs, err := s.Warmup(context.Background(), []string{"GBPUSD", "EURUSD"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GBPUSD")
	require.Len(t, evs, 1)
	assert.Equal(t, "EURUSD", evs[0].Symbol)
	assert.Equal(t, []string{"EURUSD"}, m.Symbols())
}
