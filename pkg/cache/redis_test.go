package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheCommands(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "smartflow")

	mock.ExpectGet("smartflow:missing").RedisNil()
	var got record
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)

	mock.ExpectGet("smartflow:day").SetVal(`{"day":"2024-03-04","wins":2}`)
	require.NoError(t, c.Get(ctx, "day", &got))
	assert.Equal(t, record{Day: "2024-03-04", Wins: 2}, got)

	mock.ExpectMGet("smartflow:a", "smartflow:b").SetVal([]interface{}{`{"wins":1}`, nil})
	raw, err := c.MGet(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": `{"wins":1}`}, raw)

	mock.ExpectSetNX("smartflow:lock", "locked", time.Minute).SetVal(true)
	ok, err := c.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectDel("smartflow:lock").SetVal(1)
	require.NoError(t, c.Unlock(ctx, "lock"))

	mock.ExpectUnlink("smartflow:a").SetVal(1)
	require.NoError(t, c.Delete(ctx, "a"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
