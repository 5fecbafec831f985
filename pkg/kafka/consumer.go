package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SmartFlow/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads its registered topics as one consumer group. Each fetched
// message goes to the lane owning its partition, so a partition is handled in
// order by a single goroutine and its offsets are committed in order.
type Consumer struct {
	cfg      ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  []*kafka.Reader
	lanes    []chan laneItem
	dlq      *kafka.Writer

	// fetchCtx stops fetch loops and retry backoff. Handlers run on
	// context.Background so an in-flight message finishes during Stop.
	fetchCtx  context.Context
	stopFetch context.CancelFunc

	mu       sync.Mutex
	started  bool
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once
}

var errStopping = errors.New("consumer stopping")

type laneItem struct {
	reader *kafka.Reader
	msg    kafka.Message
}

// NewConsumer creates a new Kafka consumer. Readers are created on Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		log:       cfg.Logger.With(logger.String("component", "kafka_consumer")),
		handlers:  make(map[string]MessageHandler),
		fetchCtx:  ctx,
		stopFetch: cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// RegisterHandler binds h to its topic. Handlers registered after Start are ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[h.Topic()] = h
}

// Start opens one reader per registered topic and starts the lanes.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("kafka consumer: already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	c.started = true

	start := kafka.LastOffset
	if c.cfg.AutoOffsetReset == "earliest" {
		start = kafka.FirstOffset
	}

	c.lanes = make([]chan laneItem, c.cfg.Lanes)
	for i := range c.lanes {
		c.lanes[i] = make(chan laneItem, c.cfg.BufferSize)
		c.workers.Add(1)
		go c.work(i, c.lanes[i])
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			GroupID:     c.cfg.GroupID,
			Topic:       topic,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
		c.readers = append(c.readers, r)
		c.fetchers.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("lanes", len(c.lanes)))
	return nil
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	failures := 0
	for {
		msg, err := r.FetchMessage(c.fetchCtx)
		if err != nil {
			if c.fetchCtx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			failures++
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			if !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, failures)) {
				return
			}
			continue
		}
		failures = 0

		lane := c.lanes[laneFor(msg.Partition, len(c.lanes))]
		select {
		case lane <- laneItem{reader: r, msg: msg}:
			consumerStats().depth.WithLabelValues(topic).Set(float64(len(lane)))
		case <-c.fetchCtx.Done():
			return
		}
	}
}

func (c *Consumer) work(id int, lane <-chan laneItem) {
	defer c.workers.Done()
	for it := range lane {
		c.process(id, it)
	}
}

func (c *Consumer) process(lane int, it laneItem) {
	m := it.msg
	h := c.handlers[m.Topic]
	start := time.Now()

	result := "ok"
	err := c.handleWithRetry(h, m.Value)
	if errors.Is(err, errStopping) {
		// left uncommitted for redelivery
		consumerStats().observe(m.Topic, "aborted", time.Since(start))
		return
	}
	if err != nil {
		result = "failed"
		c.log.Error("kafka message failed",
			logger.String("topic", m.Topic),
			logger.Int("partition", m.Partition),
			logger.Int64("offset", m.Offset),
			logger.Int("lane", lane),
			logger.Error(err))
		if c.dlq == nil {
			consumerStats().observe(m.Topic, result, time.Since(start))
			return
		}
		if derr := c.park(m, err); derr != nil {
			c.log.Error("kafka dlq publish failed", logger.String("topic", m.Topic), logger.Error(derr))
			consumerStats().observe(m.Topic, result, time.Since(start))
			return
		}
		result = "dlq"
	}
	if cerr := c.commit(it.reader, m); cerr != nil {
		c.log.Warn("kafka commit failed",
			logger.String("topic", m.Topic),
			logger.Int64("offset", m.Offset),
			logger.Error(cerr))
	}
	consumerStats().observe(m.Topic, result, time.Since(start))
}

// handleWithRetry runs h up to RetryMax+1 times. A panic counts as a failed attempt.
func (c *Consumer) handleWithRetry(h MessageHandler, value []byte) error {
	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 && !c.sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return fmt.Errorf("%w after %d attempts: %v", errStopping, attempt, err)
		}
		if err = safeHandle(h, value); err == nil {
			return nil
		}
	}
	return err
}

func safeHandle(h MessageHandler, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Handle(context.Background(), value)
}

func (c *Consumer) park(m kafka.Message, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	headers := append([]kafka.Header{
		{Key: "source_topic", Value: []byte(m.Topic)},
		{Key: "error", Value: []byte(cause.Error())},
	}, m.Headers...)
	return c.dlq.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Headers: headers})
}

func (c *Consumer) commit(r *kafka.Reader, m kafka.Message) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = r.CommitMessages(ctx, m)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return err
}

// sleep waits d and reports false if the consumer is stopping.
func (c *Consumer) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.fetchCtx.Done():
		return false
	}
}

// Stop stops fetching, drains the lanes and closes the readers. It returns
// ctx.Err() if draining outlives ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.stopFetch()
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if !started {
				return
			}
			c.fetchers.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.workers.Wait()
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		var errs []error
		for _, r := range c.readers {
			errs = append(errs, r.Close())
		}
		if c.dlq != nil {
			errs = append(errs, c.dlq.Close())
		}
		if cerr := errors.Join(errs...); cerr != nil && err == nil {
			err = cerr
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

// laneFor maps a partition to a lane. Partitions are non-negative.
func laneFor(partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	return partition % lanes
}

// backoffWithJitter doubles lo per attempt, caps at hi and returns a value
// in the upper half of that window.
func backoffWithJitter(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		return 0
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

type consumerMetrics struct {
	depth    *prometheus.GaugeVec
	messages *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	consumerRegisterer = prometheus.DefaultRegisterer
	consumerOnce       sync.Once
	consumerCollectors *consumerMetrics
)

// SetConsumerMetricsRegisterer sets the registerer for consumer metrics. It
// must be called before Start.
func SetConsumerMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		consumerRegisterer = reg
	}
}

func consumerStats() *consumerMetrics {
	consumerOnce.Do(func() {
		f := promauto.With(consumerRegisterer)
		consumerCollectors = &consumerMetrics{
			depth: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "smartflow_kafka_consumer_lane_depth",
				Help: "Messages buffered in the lane that last received one",
			}, []string{"topic"}),
			messages: f.NewCounterVec(prometheus.CounterOpts{
				Name: "smartflow_kafka_consumer_messages_total",
				Help: "Consumed messages by outcome",
			}, []string{"topic", "result"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "smartflow_kafka_consumer_handle_seconds",
				Help:    "Handler latency including retries",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return consumerCollectors
}

func (m *consumerMetrics) observe(topic, result string, took time.Duration) {
	m.messages.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
