package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"SmartFlow/internal/di"
	"SmartFlow/pkg/config"
)

// scanCmd evaluates one symbol from stored history
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate the latest closed bar of a symbol from ClickHouse",
	Long: `Load the latest window of every timeframe the strategy reads, evaluate the
last closed execution bar and print the evaluation as JSON.

Examples:
  smartflow scan --symbol EURUSD
  smartflow scan --symbol XAUUSD --config configs/config.yaml`,
	RunE: runScan,
}

var scanSymbol string

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanSymbol, "symbol", "", "symbol to evaluate")
	_ = scanCmd.MarkFlagRequired("symbol")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	// stdout carries the evaluation
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	scanner, cleanup, err := di.InitializeScanner(cfg)
	if err != nil {
		return fmt.Errorf("scanner initialization failed: %w", err)
	}
	defer cleanup()
	if scanner == nil {
		return errors.New("scan needs clickhouse.enabled")
	}

	ev, err := scanner.Scan(cmd.Context(), scanSymbol)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ev)
}
