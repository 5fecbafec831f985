package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	domrepo "SmartFlow/internal/domain/repository"
	"SmartFlow/internal/handler/api"
	mid "SmartFlow/internal/middleware"
	internalrepo "SmartFlow/internal/repository"
	"SmartFlow/internal/usecase"
	"SmartFlow/pkg/cache"
	pkgch "SmartFlow/pkg/clickhouse"
	"SmartFlow/pkg/config"
	xhttp "SmartFlow/pkg/http"
	pkgkafka "SmartFlow/pkg/kafka"
	applogger "SmartFlow/pkg/logger"
	"SmartFlow/pkg/metrics"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the registry every collector of the process is
// registered on, including the Kafka client metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pkgkafka.SetConsumerMetricsRegisterer(reg)
	pkgkafka.SetProducerMetricsRegisterer(reg)
	return reg
}

// ProvideMetrics creates the pipeline metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when bar
// history is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		l.Info("clickhouse disabled; warm-up and scan unavailable")
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideBarStore creates the ClickHouse bar store and applies its schema
// when init_schema is set. A nil client yields a nil store.
func ProvideBarStore(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (domrepo.BarStore, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewCHBarStore(client, cfg.ClickHouse.Database)
	store.SetLogger(l)
	if !cfg.ClickHouse.InitSchema {
		return store, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, store.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))
	return store, nil
}

// ProvideCache creates the learning stats cache: Redis behind an in-process
// layer, or the in-process cache alone when Redis is disabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mem := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.MemoryCacheSize),
			cache.WithMemoryCleanup(time.Minute),
		)
		l.Warn("redis disabled; learning stats are kept in memory only")
		return mem, func() { _ = mem.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Redis.MemoryCacheSize),
		cache.WithLayeredMemoryTTL(cfg.Redis.MemoryTTL),
	)
	cleanup := func() {
		if err := lc.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return lc, cleanup, nil
}

// ProvideOutcomeStore creates the day-keyed learning stats store.
func ProvideOutcomeStore(c cache.Service, cfg *config.Config) domrepo.OutcomeStore {
	return internalrepo.NewRedisOutcomeStore(c, cfg.Learning.Retention)
}

// ProvideLearningRecorder creates the outcome recorder and its flush schedule.
func ProvideLearningRecorder(store domrepo.OutcomeStore, cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *usecase.LearningRecorder {
	return usecase.NewLearningRecorder(store,
		usecase.WithFlushInterval(cfg.Learning.FlushInterval),
		usecase.WithFlushTimeout(cfg.Learning.Timeout),
		usecase.WithLearningLogger(l.With(applogger.String("component", "learning"))),
		usecase.WithLearningMetrics(m),
	)
}

// ProvideManager creates the session manager with outcomes forwarded to rec.
func ProvideManager(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics, rec *usecase.LearningRecorder) *usecase.Manager {
	return usecase.NewManager(cfg.Strategy,
		usecase.WithSessionLogger(l),
		usecase.WithSessionMetrics(m),
		usecase.WithOutcomeRecorder(rec),
	)
}

// ProvideScanManager creates a session manager without outcome recording.
func ProvideScanManager(cfg *config.Config, l *applogger.Logger, m domrepo.Metrics) *usecase.Manager {
	return usecase.NewManager(cfg.Strategy,
		usecase.WithSessionLogger(l),
		usecase.WithSessionMetrics(m),
	)
}

// ProvideBarGate creates the feed gate sized to feed.window.
func ProvideBarGate(cfg *config.Config, m domrepo.Metrics) *mid.BarGate {
	return mid.NewBarGate(m, mid.WithWindow(cfg.Feed.Window))
}

// ProvideScanner creates the history loader, or nil without a bar store.
func ProvideScanner(store domrepo.BarStore, gate *mid.BarGate, manager *usecase.Manager, cfg *config.Config, l *applogger.Logger) *usecase.Scanner {
	if store == nil {
		return nil
	}
	return usecase.NewScanner(store, gate, manager, cfg.Strategy, cfg.Feed.Timeframes, cfg.Feed.Window, l)
}

// ProvideKafkaProducer creates the journal producer. When the log collector
// is enabled, aggregated error lines are published on the same producer. The
// cleanup detaches the collector before closing the producer.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if c := cfg.Log.Collector; c.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   c.Interval,
			CountThreshold: c.Threshold,
			Topic:          c.Topic,
			Publisher:      producer,
		})
	}
	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideJournal creates the decision and signal journal. Closing it closes
// the producer.
func ProvideJournal(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Journal {
	return internalrepo.NewKafkaJournal(producer, cfg.Kafka.DecisionsTopic, cfg.Kafka.SignalsTopic)
}

// ProvideKafkaConsumer creates the bar feed consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarsHandler creates the bar feed handler.
func ProvideBarsHandler(
	cfg *config.Config,
	gate *mid.BarGate,
	manager *usecase.Manager,
	journal domrepo.Journal,
	store domrepo.BarStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.BarsHandler {
	opts := []usecase.BarsOption{
		usecase.WithBarsLogger(l),
		usecase.WithBarsMetrics(m),
		usecase.WithSymbols(cfg.Feed.Symbols...),
	}
	if cfg.Feed.Persist && store != nil {
		opts = append(opts, usecase.WithBarPersistence(store))
	}
	return usecase.NewBarsHandler(cfg.Kafka.BarsTopic, cfg.Strategy, gate, manager, journal, opts...)
}

// ProvideStateHandler creates the read-only chart API.
func ProvideStateHandler(l *applogger.Logger, manager *usecase.Manager, rec *usecase.LearningRecorder) *api.StateEchoHandler {
	return api.NewStateEchoHandler(l, manager, rec)
}

// ProvideHTTPServer creates the HTTP server with the API routes and metrics.
func ProvideHTTPServer(cfg *config.Config, h *api.StateEchoHandler, l *applogger.Logger, reg *prometheus.Registry) *xhttp.Server {
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(reg, path),
	)
}
