package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SmartFlow/internal/di"
	"SmartFlow/pkg/config"
)

// serveCmd runs the live pipeline
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bar feed, sessions, journal and HTTP API",
	Long: `Warm up every configured symbol from ClickHouse, consume closed bars from
Kafka, evaluate each symbol on its execution timeframe and publish decisions
and signals. The chart API and Prometheus metrics are served over HTTP.

Examples:
  smartflow serve
  smartflow serve --config configs/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run(cmd.Context())
}
