package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SmartFlow/internal/domain/models"
	domrepo "SmartFlow/internal/domain/repository"
	pkgch "SmartFlow/pkg/clickhouse"
	applogger "SmartFlow/pkg/logger"
)

// CHBarStore implements BarStore backed by one ClickHouse table per timeframe.
type CHBarStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, database string) *CHBarStore {
	return NewCHBarStoreFromDB(ch.DB(), database)
}

// NewCHBarStoreFromDB wraps an existing handle.
func NewCHBarStoreFromDB(db *sql.DB, database string) *CHBarStore {
	if database == "" {
		database = "smartflow"
	}
	return &CHBarStore{db: db, database: database, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Schema returns the DDL for every timeframe table.
func (s *CHBarStore) Schema() []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)}
	for _, tf := range domrepo.Timeframes {
		table, _ := s.tableForTF(tf)
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol LowCardinality(String),
	bucket DateTime64(3, 'UTC'),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	vol Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, bucket)`, table))
	}
	return stmts
}

func (s *CHBarStore) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, from, to time.Time) (models.Series, error) {
	start := time.Now()
	table, err := s.tableForTF(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, from, to)
	if err != nil {
		s.l.Error("clickhouse get_bars query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out, err := s.scan(rows, table, symbol, 256)
	if err != nil {
		return nil, err
	}
	s.l.Debug("clickhouse get_bars ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// GetLatestNBars returns the newest n bars, oldest first.
func (s *CHBarStore) GetLatestNBars(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) (models.Series, error) {
	start := time.Now()
	table, err := s.tableForTF(tf)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("latest bars limit %d: %w", n, models.ErrInvalidInput)
	}
	const qtpl = `
        SELECT bucket, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	tmp, err := s.scan(rows, table, symbol, n)
	if err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("limit", n),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return tmp, nil
}

func (s *CHBarStore) scan(rows *sql.Rows, table, symbol string, capacity int) (models.Series, error) {
	out := make(models.Series, 0, capacity)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.l.Error("clickhouse bars scan error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse bars rows error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// StoreBars inserts bars in multi-row chunks. Invalid bars are skipped; the
// table engine collapses rewrites of the same bucket.
func (s *CHBarStore) StoreBars(ctx context.Context, symbol string, tf domrepo.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	table, err := s.tableForTF(tf)
	if err != nil {
		return err
	}
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			if !b.Valid() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, bucket, open, high, low, close, vol) VALUES %s", table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error",
				applogger.String("table", table),
				applogger.String("symbol", symbol),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) tableForTF(tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe %q: %w", tf, models.ErrInvalidInput)
	}
	return s.database + ".bars_" + string(tf), nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
