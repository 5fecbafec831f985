package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/cascade"
	"SmartFlow/internal/services/phase"
	"SmartFlow/internal/usecase"
)

type fakeState struct {
	evals    map[string]usecase.Evaluation
	outcomes []models.Outcome
	resets   []string
	feed     chan usecase.Evaluation
}

func newFakeState() *fakeState {
	return &fakeState{
		evals: map[string]usecase.Evaluation{
			"EURUSD": {Symbol: "EURUSD", Bias: models.Bullish, Reason: usecase.ReasonNoSignal},
		},
		feed: make(chan usecase.Evaluation, 4),
	}
}

func (f *fakeState) Symbols() []string { return []string{"EURUSD"} }

func (f *fakeState) Last(symbol string) (usecase.Evaluation, bool) {
	ev, ok := f.evals[symbol]
	return ev, ok
}

func (f *fakeState) Phase(symbol string) (phase.Snapshot, bool) {
	if _, ok := f.evals[symbol]; !ok {
		return phase.Snapshot{}, false
	}
	return phase.Snapshot{State: phase.Phase1Active, Bias: models.Bullish}, true
}

func (f *fakeState) Cascades(symbol string) ([]cascade.State, bool) {
	if _, ok := f.evals[symbol]; !ok {
		return nil, false
	}
	return []cascade.State{{Name: "bias"}, {Name: "execution"}}, true
}

func (f *fakeState) RecordOutcome(symbol string, p models.EntryPhase, o models.Outcome, _ time.Time) ([]phase.Transition, error) {
	if _, ok := f.evals[symbol]; !ok {
		return nil, models.ErrNotFound
	}
	if p != models.Phase1 {
		return nil, models.ErrTransitionNotAllowed
	}
	f.outcomes = append(f.outcomes, o)
	return []phase.Transition{{From: phase.Phase1Active, To: phase.Phase1Success}}, nil
}

func (f *fakeState) Reset(symbol string) ([]phase.Transition, error) {
	if _, ok := f.evals[symbol]; !ok {
		return nil, models.ErrNotFound
	}
	f.resets = append(f.resets, symbol)
	return []phase.Transition{{From: phase.Phase1Active, To: phase.NoBias}}, nil
}

func (f *fakeState) Subscribe(int) (<-chan usecase.Evaluation, func()) {
	return f.feed, func() {}
}

type fakeStats struct{ err error }

func (f fakeStats) Stats(_ context.Context, day string) ([]models.PatternStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.PatternStats{{Day: day, Pattern: "phase3:bullish:sweep", Wins: 2}}, nil
}

func (f fakeStats) StatsRange(_ context.Context, from, to time.Time) (map[string][]models.PatternStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if to.Before(from) {
		return nil, models.ErrInvalidInput
	}
	out := make(map[string][]models.PatternStats)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		out[day] = []models.PatternStats{{Day: day, Pattern: "phase1:bearish:structure_shift", Losses: 1}}
	}
	return out, nil
}

func newTestServer(state *fakeState, stats StatsReader) *echo.Echo {
	e := echo.New()
	NewStateEchoHandler(nil, state, stats).RegisterRoutes(e)
	return e
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestEvaluationEndpoints(t *testing.T) {
	e := newTestServer(newFakeState(), fakeStats{})

	code, env := do(t, e, http.MethodGet, "/api/symbols", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["EURUSD"]`, string(env.Data))

	code, env = do(t, e, http.MethodGet, "/api/symbols/EURUSD/evaluation", "")
	require.Equal(t, http.StatusOK, code)
	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "EURUSD", ev["symbol"])
	assert.Equal(t, usecase.ReasonNoSignal, ev["reason"])

	code, env = do(t, e, http.MethodGet, "/api/symbols/EURUSD/phase", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"state":"phase1_active"`)

	code, _ = do(t, e, http.MethodGet, "/api/symbols/EURUSD/cascades", "")
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, e, http.MethodGet, "/api/symbols/GBPUSD/evaluation", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestOutcomeEndpoint(t *testing.T) {
	state := newFakeState()
	e := newTestServer(state, fakeStats{})

	code, env := do(t, e, http.MethodPost, "/api/symbols/EURUSD/outcomes", `{"phase":1,"outcome":"tp"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"to":"phase1_success"`)
	assert.Equal(t, []models.Outcome{models.OutcomeTakeProfit}, state.outcomes)

	code, _ = do(t, e, http.MethodPost, "/api/symbols/EURUSD/outcomes", `{"phase":3,"outcome":"sl"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, e, http.MethodPost, "/api/symbols/GBPUSD/outcomes", `{"phase":1,"outcome":"sl"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodPost, "/api/symbols/EURUSD/outcomes", `{"phase":2,"outcome":"be"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestResetEndpoint(t *testing.T) {
	state := newFakeState()
	e := newTestServer(state, fakeStats{})

	code, env := do(t, e, http.MethodPost, "/api/symbols/EURUSD/reset", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"to":"no_bias"`)
	assert.Equal(t, []string{"EURUSD"}, state.resets)

	code, _ = do(t, e, http.MethodPost, "/api/symbols/GBPUSD/reset", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLearningEndpoint(t *testing.T) {
	e := newTestServer(newFakeState(), fakeStats{})
	code, env := do(t, e, http.MethodGet, "/api/learning/2024-03-04", "")
	require.Equal(t, http.StatusOK, code)
	var stats []models.PatternStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "2024-03-04", stats[0].Day)

	code, _ = do(t, e, http.MethodGet, "/api/learning/yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)

	e = newTestServer(newFakeState(), fakeStats{err: errors.New("redis down")})
	code, _ = do(t, e, http.MethodGet, "/api/learning/2024-03-04", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestLearningRangeEndpoint(t *testing.T) {
	e := newTestServer(newFakeState(), fakeStats{})
	code, env := do(t, e, http.MethodGet, "/api/learning?from=2024-03-04&to=2024-03-06", "")
	require.Equal(t, http.StatusOK, code)
	var byDay map[string][]models.PatternStats
	require.NoError(t, json.Unmarshal(env.Data, &byDay))
	assert.Len(t, byDay, 3)
	require.Len(t, byDay["2024-03-05"], 1)
	assert.Equal(t, 1, byDay["2024-03-05"][0].Losses)

	code, _ = do(t, e, http.MethodGet, "/api/learning?from=2024-03-04", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodGet, "/api/learning?from=2024-03-06&to=2024-03-04", "")
	assert.Equal(t, http.StatusBadRequest, code)

	e = newTestServer(newFakeState(), fakeStats{err: errors.New("redis down")})
	code, _ = do(t, e, http.MethodGet, "/api/learning?from=2024-03-04&to=2024-03-04", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestStreamPushesEvaluations(t *testing.T) {
	state := newFakeState()
	srv := httptest.NewServer(newTestServer(state, fakeStats{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream?symbol=EURUSD"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	state.feed <- usecase.Evaluation{Symbol: "GBPUSD"}
	state.feed <- usecase.Evaluation{Symbol: "EURUSD", Reason: usecase.ReasonNoBias}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "EURUSD", ev["symbol"])
	assert.Equal(t, usecase.ReasonNoBias, ev["reason"])
}
