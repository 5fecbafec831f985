package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in      string
		want    kafka.Compression
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "none", want: 0},
		{in: "gzip", want: kafka.Gzip},
		{in: "snappy", want: kafka.Snappy},
		{in: "lz4", want: kafka.Lz4},
		{in: "zstd", want: kafka.Zstd},
		{in: "brotli", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCompression(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue("text")
	require.NoError(t, err)
	assert.Equal(t, "text", string(b))

	b, err = encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))

	_, err = encodeValue(nil)
	assert.Error(t, err)
	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli"))
	assert.Error(t, err)

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(2))
	assert.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("none"), WithHashByKey(true))
	require.NoError(t, err)
	_, isHash := p.writer.Balancer.(*kafka.Hash)
	assert.True(t, isHash)
	assert.NoError(t, p.Close())
}

func TestPublishRejectsEmptyTopic(t *testing.T) {
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	defer p.Close()
	assert.Error(t, p.Publish(context.Background(), "", nil, "x"))
}

func TestLaneForKeepsPartitionOnOneLane(t *testing.T) {
	assert.Equal(t, 0, laneFor(7, 1))
	assert.Equal(t, 0, laneFor(7, 0))
	for p := 0; p < 12; p++ {
		assert.Equal(t, laneFor(p, 4), laneFor(p, 4))
		assert.Equal(t, p%4, laneFor(p, 4))
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	lo, hi := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		ceil := lo << (attempt - 1)
		if ceil > hi {
			ceil = hi
		}
		for i := 0; i < 50; i++ {
			d := backoffWithJitter(lo, hi, attempt)
			assert.GreaterOrEqual(t, d, ceil/2)
			assert.LessOrEqual(t, d, ceil)
		}
	}
	assert.Zero(t, backoffWithJitter(0, hi, 3))
}

func TestNewConsumerValidates(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)

	_, err = NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerAutoOffsetReset("middle"))
	assert.Error(t, err)

	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(), "no handlers")
	assert.NoError(t, c.Stop(context.Background()))
}

type flakyHandler struct {
	fails int
	calls int
	panic bool
}

func (h *flakyHandler) Topic() string { return "bars" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.panic {
		panic("boom")
	}
	if h.calls <= h.fails {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(t *testing.T, retries int) *Consumer {
	t.Helper()
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestHandleWithRetry(t *testing.T) {
	c := newTestConsumer(t, 3)

	h := &flakyHandler{fails: 2}
	require.NoError(t, c.handleWithRetry(h, nil))
	assert.Equal(t, 3, h.calls)

	h = &flakyHandler{fails: 10}
	assert.EqualError(t, c.handleWithRetry(h, nil), "transient")
	assert.Equal(t, 4, h.calls)

	h = &flakyHandler{panic: true}
	err := c.handleWithRetry(h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic: boom")
	assert.Equal(t, 4, h.calls)
}

func TestHandleWithRetryStopsWhenConsumerStops(t *testing.T) {
	c := newTestConsumer(t, 5)
	require.NoError(t, c.Stop(context.Background()))

	h := &flakyHandler{fails: 10}
	err := c.handleWithRetry(h, nil)
	assert.ErrorIs(t, err, errStopping)
	assert.Equal(t, 1, h.calls)
}
