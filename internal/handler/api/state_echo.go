package api

import (
	"context"
	"errors"
	"time"

	models "SmartFlow/internal/domain/models"
	"SmartFlow/internal/services/cascade"
	"SmartFlow/internal/services/phase"
	"SmartFlow/internal/usecase"
	xhttp "SmartFlow/pkg/http"
	xlogger "SmartFlow/pkg/logger"
	"SmartFlow/pkg/util"

	"github.com/labstack/echo/v4"
)

// StateReader is the session state the API exposes.
type StateReader interface {
	Symbols() []string
	Last(symbol string) (usecase.Evaluation, bool)
	Phase(symbol string) (phase.Snapshot, bool)
	Cascades(symbol string) ([]cascade.State, bool)
	RecordOutcome(symbol string, p models.EntryPhase, o models.Outcome, at time.Time) ([]phase.Transition, error)
	Reset(symbol string) ([]phase.Transition, error)
	Subscribe(buffer int) (<-chan usecase.Evaluation, func())
}

// StatsReader serves learning statistics.
type StatsReader interface {
	Stats(ctx context.Context, day string) ([]models.PatternStats, error)
	StatsRange(ctx context.Context, from, to time.Time) (map[string][]models.PatternStats, error)
}

type symbolRequest struct {
	Symbol string `param:"symbol" validate:"required"`
}

type outcomeRequest struct {
	Symbol  string     `param:"symbol" validate:"required"`
	Phase   int        `json:"phase" validate:"oneof=1 3"`
	Outcome string     `json:"outcome" validate:"oneof=tp sl"`
	At      *time.Time `json:"at"`
}

type learningRequest struct {
	Day string `param:"day" validate:"required,datetime=2006-01-02"`
}

type learningRangeRequest struct {
	From string `query:"from" validate:"required,datetime=2006-01-02"`
	To   string `query:"to" validate:"required,datetime=2006-01-02"`
}

type outcomeResponse struct {
	Transitions []phase.Transition `json:"transitions"`
	Phase       phase.Snapshot     `json:"phase"`
}

// StateEchoHandler serves per-symbol session state and the evaluation stream.
type StateEchoHandler struct {
	logger *xlogger.Logger
	state  StateReader
	stats  StatsReader
}

func NewStateEchoHandler(logger *xlogger.Logger, state StateReader, stats StatsReader) *StateEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &StateEchoHandler{logger: logger, state: state, stats: stats}
}

func (h *StateEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/symbols", h.Symbols)
	g.GET("/symbols/:symbol/evaluation", h.Evaluation)
	g.GET("/symbols/:symbol/phase", h.Phase)
	g.GET("/symbols/:symbol/cascades", h.Cascades)
	g.POST("/symbols/:symbol/outcomes", h.Outcome)
	g.POST("/symbols/:symbol/reset", h.Reset)
	g.GET("/learning", h.LearningRange)
	g.GET("/learning/:day", h.Learning)
	g.GET("/stream", h.Stream)
}

func (h *StateEchoHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.state.Symbols())
}

func (h *StateEchoHandler) Evaluation(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev, ok := h.state.Last(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no evaluation for %s", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, ev)
}

func (h *StateEchoHandler) Phase(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, ok := h.state.Phase(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s not tracked", req.Symbol))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *StateEchoHandler) Cascades(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	states, ok := h.state.Cascades(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s not tracked", req.Symbol))
	}
	return xhttp.SuccessResponse(c, states)
}

// Outcome closes the open attempt of a symbol with the reported fill.
func (h *StateEchoHandler) Outcome(c echo.Context) error {
	req := &outcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	at := time.Now().UTC()
	if req.At != nil {
		at = req.At.UTC()
	}
	path, err := h.state.RecordOutcome(req.Symbol, models.EntryPhase(req.Phase), models.Outcome(req.Outcome), at)
	if err != nil {
		h.logger.Warn("record outcome rejected",
			xlogger.String("symbol", req.Symbol),
			xlogger.Int("phase", req.Phase),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	snap, _ := h.state.Phase(req.Symbol)
	return xhttp.SuccessResponse(c, outcomeResponse{Transitions: path, Phase: snap})
}

// Reset abandons the current bias cycle of a symbol.
func (h *StateEchoHandler) Reset(c echo.Context) error {
	req := &symbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	path, err := h.state.Reset(req.Symbol)
	if err != nil {
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	h.logger.Info("session reset", xlogger.String("symbol", req.Symbol), xlogger.Int("transitions", len(path)))
	snap, _ := h.state.Phase(req.Symbol)
	return xhttp.SuccessResponse(c, outcomeResponse{Transitions: path, Phase: snap})
}

func (h *StateEchoHandler) Learning(c echo.Context) error {
	req := &learningRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats, err := h.stats.Stats(c.Request().Context(), req.Day)
	if err != nil {
		h.logger.Error("learning stats error", xlogger.String("day", req.Day), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	if stats == nil {
		stats = []models.PatternStats{}
	}
	return xhttp.SuccessResponse(c, stats)
}

// LearningRange serves the statistics of every day from..to inclusive, keyed by day.
func (h *StateEchoHandler) LearningRange(c echo.Context) error {
	req := &learningRangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, _ := time.Parse(util.DayKeyLayout, req.From)
	to, _ := time.Parse(util.DayKeyLayout, req.To)
	stats, err := h.stats.StatsRange(c.Request().Context(), from, to)
	if err != nil {
		h.logger.Error("learning range error",
			xlogger.String("from", req.From),
			xlogger.String("to", req.To),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, toAppError(err))
	}
	return xhttp.SuccessResponse(c, stats)
}

func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundError("symbol not tracked").WithError(err)
	case errors.Is(err, models.ErrTransitionNotAllowed):
		return xhttp.ConflictError("phase", "no open attempt for this phase").WithError(err)
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	}
	return err
}
