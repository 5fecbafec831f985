package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/pkg/cache"
)

// ErrDayLocked is returned when another writer holds the day lock.
var ErrDayLocked = errors.New("learning day locked")

// RedisOutcomeStore keeps one JSON document of pattern stats per UTC day.
type RedisOutcomeStore struct {
	cache     cache.Service
	retention time.Duration
	lockTTL   time.Duration
}

// NewRedisOutcomeStore stores day records for retention (90 days when unset).
func NewRedisOutcomeStore(c cache.Service, retention time.Duration) *RedisOutcomeStore {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &RedisOutcomeStore{cache: c, retention: retention, lockTTL: 30 * time.Second}
}

func dayKey(day string) string { return cache.Key("learning", day) }

// MergeDay loads, merges and writes back the record of day under one
// short-lived lock, so concurrent flushers never drop each other's counts.
func (s *RedisOutcomeStore) MergeDay(ctx context.Context, day string, merge func([]models.PatternStats) []models.PatternStats) error {
	if day == "" {
		return fmt.Errorf("merge learning day: %w", models.ErrInvalidInput)
	}
	lock := cache.Key("learning", "lock", day)
	ok, err := s.cache.TryLock(ctx, lock, s.lockTTL)
	if err != nil {
		return fmt.Errorf("lock %s: %w", day, err)
	}
	if !ok {
		return fmt.Errorf("merge %s: %w", day, ErrDayLocked)
	}
	defer func() { _ = s.cache.Unlock(context.WithoutCancel(ctx), lock) }()

	existing, err := s.LoadDay(ctx, day)
	if err != nil {
		return err
	}
	stats := merge(existing)
	if stats == nil {
		stats = []models.PatternStats{}
	}
	if err := s.cache.Set(ctx, dayKey(day), stats, s.retention); err != nil {
		return fmt.Errorf("save %s: %w", day, err)
	}
	return nil
}

// LoadDay returns the record of day; a missing day is empty, not an error.
func (s *RedisOutcomeStore) LoadDay(ctx context.Context, day string) ([]models.PatternStats, error) {
	var stats []models.PatternStats
	err := s.cache.Get(ctx, dayKey(day), &stats)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", day, err)
	}
	return stats, nil
}

// LoadDays fetches several days in one round trip. Days without a record are omitted.
func (s *RedisOutcomeStore) LoadDays(ctx context.Context, days []string) (map[string][]models.PatternStats, error) {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = dayKey(d)
	}
	raw, err := cache.MGetTyped[[]models.PatternStats](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("load days: %w", err)
	}
	out := make(map[string][]models.PatternStats, len(raw))
	for i, d := range days {
		if st, ok := raw[keys[i]]; ok {
			out[d] = st
		}
	}
	return out, nil
}

var _ domrepo.OutcomeStore = (*RedisOutcomeStore)(nil)
