//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SmartFlow/internal/usecase"
	"SmartFlow/pkg/config"
	"SmartFlow/pkg/server"
)

// historySet builds everything needed to load and evaluate bar history.
var historySet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideBarStore,
	ProvideBarGate,
	ProvideScanner,
)

// InitializeApp wires up all dependencies and returns the application. The
// cleanup closes the Kafka producer, the cache and ClickHouse.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		historySet,

		// Learning
		ProvideCache,
		ProvideOutcomeStore,
		ProvideLearningRecorder,

		// Pipeline
		ProvideManager,
		ProvideKafkaProducer,
		ProvideJournal,
		ProvideKafkaConsumer,
		ProvideBarsHandler,

		// HTTP
		ProvideStateHandler,
		ProvideHTTPServer,

		server.New,
	)
	return nil, nil, nil
}

// InitializeScanner wires the one-shot history scanner. It returns a nil
// scanner when ClickHouse is disabled.
func InitializeScanner(cfg *config.Config) (*usecase.Scanner, func(), error) {
	wire.Build(historySet, ProvideScanManager)
	return nil, nil, nil
}
