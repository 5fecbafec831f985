package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the base command for the SmartFlow CLI
var rootCmd = &cobra.Command{
	Use:   "smartflow",
	Short: "Multi-timeframe smart-money signal pipeline",
	Long: `SmartFlow consumes closed bars, tracks liquidity, structure shifts and
entry zones per symbol, and journals qualified entry decisions.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
