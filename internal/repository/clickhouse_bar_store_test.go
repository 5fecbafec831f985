package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartFlow/internal/domain/models"
	"SmartFlow/internal/domain/models/modeltest"
	domrepo "SmartFlow/internal/domain/repository"
)

func newMockStore(t *testing.T) (*CHBarStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCHBarStoreFromDB(db, ""), mock
}

func TestGetLatestNBarsReturnsAscending(t *testing.T) {
	store, mock := newMockStore(t)
	t0 := modeltest.Epoch
	rows := sqlmock.NewRows([]string{"bucket", "open", "high", "low", "close", "vol"}).
		AddRow(t0.Add(30*time.Minute), 1.2, 1.3, 1.1, 1.25, 5.0).
		AddRow(t0.Add(15*time.Minute), 1.1, 1.2, 1.0, 1.2, 4.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM smartflow.bars_15m FINAL")).
		WithArgs("EURUSD", 2).
		WillReturnRows(rows)

	bars, err := store.GetLatestNBars(context.Background(), "EURUSD", domrepo.TF15m, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.Equal(t, 1.25, bars[1].Close)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBarsRejectsUnknownTimeframe(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.GetBars(context.Background(), "EURUSD", domrepo.Timeframe("2h"), time.Time{}, time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetLatestNBarsRejectsNonPositiveLimit(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.GetLatestNBars(context.Background(), "EURUSD", domrepo.TF5m, 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestStoreBarsSkipsInvalid(t *testing.T) {
	store, mock := newMockStore(t)
	bars := modeltest.Series(5*time.Minute,
		modeltest.OHLC{1.1, 1.2, 1.0, 1.15},
		modeltest.OHLC{1.1, 1.0, 1.2, 1.15},
		modeltest.OHLC{1.15, 1.25, 1.1, 1.2},
	)
	var args []driver.Value
	for _, b := range []models.Bar{bars[0], bars[2]} {
		args = append(args, "EURUSD", b.Time, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO smartflow.bars_5m (symbol, bucket, open, high, low, close, vol) VALUES (?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?)")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, store.StoreBars(context.Background(), "EURUSD", domrepo.TF5m, bars))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaCoversEveryTimeframe(t *testing.T) {
	store, _ := newMockStore(t)
	stmts := store.Schema()
	assert.Len(t, stmts, len(domrepo.Timeframes)+1)
	assert.Contains(t, stmts[1], "smartflow.bars_1m")
}
