package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes records on one writer. The topic is chosen per record,
// so decisions, signals and aggregated logs share a connection pool.
type Producer struct {
	writer      *kafka.Writer
	compression string

	closeOnce sync.Once
	closeErr  error
}

// NewProducer creates a new Kafka producer. No connection is made until the
// first publish.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	p := &Producer{compression: cfg.Compression}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	if cfg.Async {
		p.writer.Completion = func(msgs []kafka.Message, err error) {
			if err != nil && len(msgs) > 0 {
				producerStats().errors.WithLabelValues(msgs[0].Topic).Add(float64(len(msgs)))
			}
		}
	}
	return p, nil
}

// encodeValue passes bytes and strings through and JSON-encodes everything else.
func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("nil value")
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

// Publish sends value to topic under key.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	if topic == "" {
		return errors.New("kafka publish: empty topic")
	}
	payload, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   payload,
		Time:    start.UTC(),
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	})
	producerStats().observe(topic, p.compression, len(payload), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

// PublishMessage sends payload without a key. It satisfies logger.Publisher.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

// Close flushes pending batches and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	p.closeOnce.Do(func() { p.closeErr = p.writer.Close() })
	return p.closeErr
}

func parseCompression(s string) (kafka.Compression, error) {
	switch s {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("kafka producer: unknown compression %q", s)
	}
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	errors   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerRegisterer = prometheus.DefaultRegisterer
	producerOnce       sync.Once
	producerCollectors *producerMetrics
)

// SetProducerMetricsRegisterer sets the registerer for producer metrics. It
// must be called before the first publish.
func SetProducerMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		producerRegisterer = reg
	}
}

func producerStats() *producerMetrics {
	producerOnce.Do(func() {
		f := promauto.With(producerRegisterer)
		producerCollectors = &producerMetrics{
			messages: f.NewCounterVec(prometheus.CounterOpts{
				Name: "smartflow_kafka_producer_messages_total",
				Help: "Records published to Kafka",
			}, []string{"topic", "compression", "result"}),
			errors: f.NewCounterVec(prometheus.CounterOpts{
				Name: "smartflow_kafka_producer_errors_total",
				Help: "Records Kafka did not accept",
			}, []string{"topic"}),
			bytes: f.NewCounterVec(prometheus.CounterOpts{
				Name: "smartflow_kafka_producer_bytes_total",
				Help: "Payload bytes published",
			}, []string{"topic", "compression"}),
			latency: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "smartflow_kafka_producer_publish_seconds",
				Help:    "Publish latency",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
		}
	})
	return producerCollectors
}

func (m *producerMetrics) observe(topic, compression string, size int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		m.errors.WithLabelValues(topic).Inc()
	}
	m.messages.WithLabelValues(topic, compression, result).Inc()
	m.bytes.WithLabelValues(topic, compression).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(took.Seconds())
}
