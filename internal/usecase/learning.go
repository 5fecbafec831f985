package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	domsvc "SmartFlow/internal/domain/service"
	"SmartFlow/pkg/logger"
	"SmartFlow/pkg/metrics"
	"SmartFlow/pkg/util"
)

// LearningRecorder aggregates closed-attempt outcomes in memory and flushes
// them to the outcome store in day-keyed batches.
type LearningRecorder struct {
	store    domrepo.OutcomeStore
	cb       *gobreaker.CircuitBreaker
	interval time.Duration
	timeout  time.Duration
	metrics  domrepo.Metrics
	log      *logger.Logger

	mu      sync.Mutex
	pending map[string]map[string]models.PatternStats
}

// LearningOption configures a LearningRecorder.
type LearningOption func(*LearningRecorder)

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) LearningOption {
	return func(l *LearningRecorder) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithFlushTimeout bounds one flush.
func WithFlushTimeout(d time.Duration) LearningOption {
	return func(l *LearningRecorder) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithLearningLogger(lg *logger.Logger) LearningOption {
	return func(l *LearningRecorder) {
		if lg != nil {
			l.log = lg
		}
	}
}

func WithLearningMetrics(m domrepo.Metrics) LearningOption {
	return func(l *LearningRecorder) {
		if m != nil {
			l.metrics = m
		}
	}
}

// NewLearningRecorder creates a recorder that flushes daily by default. The
// store is guarded by a breaker that opens after three consecutive failures.
func NewLearningRecorder(store domrepo.OutcomeStore, opts ...LearningOption) *LearningRecorder {
	l := &LearningRecorder{
		store:    store,
		interval: 24 * time.Hour,
		timeout:  30 * time.Second,
		metrics:  metrics.Nop{},
		log:      logger.Nop(),
		pending:  make(map[string]map[string]models.PatternStats),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "learning-store",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return l
}

var _ domsvc.OutcomeRecorder = (*LearningRecorder)(nil)

// Record adds one outcome to the pending batch. It never blocks on I/O.
func (l *LearningRecorder) Record(o models.PatternOutcome) {
	if !o.Outcome.Valid() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(util.DayKey(o.Time), o)
}

func (l *LearningRecorder) add(day string, o models.PatternOutcome) {
	key := o.PatternKey()
	byPattern := l.pending[day]
	if byPattern == nil {
		byPattern = make(map[string]models.PatternStats)
		l.pending[day] = byPattern
	}
	st := byPattern[key]
	st.Day, st.Pattern = day, key
	if o.Outcome == models.OutcomeTakeProfit {
		st.Wins++
	} else {
		st.Losses++
	}
	byPattern[key] = st
}

// Pending returns the number of pattern records awaiting a flush.
func (l *LearningRecorder) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, byPattern := range l.pending {
		n += len(byPattern)
	}
	return n
}

// Flush writes every pending day to the store. Days that fail are merged back
// and retried on the next flush.
func (l *LearningRecorder) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = make(map[string]map[string]models.PatternStats)
	l.mu.Unlock()

	days := make([]string, 0, len(batch))
	for day := range batch {
		days = append(days, day)
	}
	sort.Strings(days)

	var errs []error
	for _, day := range days {
		if err := l.flushDay(ctx, day, batch[day]); err != nil {
			l.metrics.RecordError("learning_flush")
			l.log.Error("learning flush failed", logger.String("day", day), logger.Error(err))
			l.restore(day, batch[day])
			errs = append(errs, fmt.Errorf("flush %s: %w", day, err))
			continue
		}
		l.log.Debug("learning day flushed", logger.String("day", day), logger.Int("patterns", len(batch[day])))
	}
	return errors.Join(errs...)
}

func (l *LearningRecorder) flushDay(ctx context.Context, day string, stats map[string]models.PatternStats) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.store.MergeDay(ctx, day, func(existing []models.PatternStats) []models.PatternStats {
			return mergeStats(existing, stats)
		})
	})
	return err
}

func (l *LearningRecorder) restore(day string, stats map[string]models.PatternStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byPattern := l.pending[day]
	if byPattern == nil {
		byPattern = make(map[string]models.PatternStats)
		l.pending[day] = byPattern
	}
	for key, st := range stats {
		cur := byPattern[key]
		cur.Day, cur.Pattern = day, key
		cur.Wins += st.Wins
		cur.Losses += st.Losses
		byPattern[key] = cur
	}
}

// mergeStats adds pending counts onto stored ones, sorted by pattern.
func mergeStats(existing []models.PatternStats, pending map[string]models.PatternStats) []models.PatternStats {
	merged := make(map[string]models.PatternStats, len(existing)+len(pending))
	for _, st := range existing {
		merged[st.Pattern] = st
	}
	for key, st := range pending {
		cur := merged[key]
		cur.Day, cur.Pattern = st.Day, key
		cur.Wins += st.Wins
		cur.Losses += st.Losses
		merged[key] = cur
	}
	out := make([]models.PatternStats, 0, len(merged))
	for _, st := range merged {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Stats returns the stored statistics of day plus anything still pending.
func (l *LearningRecorder) Stats(ctx context.Context, day string) ([]models.PatternStats, error) {
	stored, err := l.store.LoadDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", day, err)
	}
	l.mu.Lock()
	pending := make(map[string]models.PatternStats, len(l.pending[day]))
	for k, v := range l.pending[day] {
		pending[k] = v
	}
	l.mu.Unlock()
	return mergeStats(stored, pending), nil
}

// MaxStatsRangeDays bounds StatsRange.
const MaxStatsRangeDays = 31

// StatsRange returns stored plus pending statistics for every UTC day from
// from to to inclusive, keyed by day. Days without any record are omitted.
func (l *LearningRecorder) StatsRange(ctx context.Context, from, to time.Time) (map[string][]models.PatternStats, error) {
	from, to = util.DayStart(from), util.DayStart(to)
	if to.Before(from) {
		return nil, fmt.Errorf("stats range %s..%s: %w", util.DayKey(from), util.DayKey(to), models.ErrInvalidInput)
	}
	var days []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(days) == MaxStatsRangeDays {
			return nil, fmt.Errorf("stats range over %d days: %w", MaxStatsRangeDays, models.ErrInvalidInput)
		}
		days = append(days, util.DayKey(d))
	}

	stored, err := l.store.LoadDays(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("load %s..%s: %w", days[0], days[len(days)-1], err)
	}
	l.mu.Lock()
	pending := make(map[string]map[string]models.PatternStats, len(days))
	for _, d := range days {
		if byPattern := l.pending[d]; len(byPattern) > 0 {
			cp := make(map[string]models.PatternStats, len(byPattern))
			for k, v := range byPattern {
				cp[k] = v
			}
			pending[d] = cp
		}
	}
	l.mu.Unlock()

	out := make(map[string][]models.PatternStats, len(days))
	for _, d := range days {
		if len(stored[d]) == 0 && len(pending[d]) == 0 {
			continue
		}
		out[d] = mergeStats(stored[d], pending[d])
	}
	return out, nil
}

// Start flushes on every interval until ctx is done, then flushes once more.
func (l *LearningRecorder) Start(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			if err := l.Flush(fctx); err != nil {
				l.log.Error("final learning flush failed", logger.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			fctx, cancel := context.WithTimeout(ctx, l.timeout)
			_ = l.Flush(fctx)
			cancel()
		}
	}
}
