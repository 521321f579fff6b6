package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mridulgoel03/ETF-trading-project/internal/config"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "etfsim",
		Short:        "Synthetic index trading simulator",
		Long:         `Simulates synthetic index trading: a sliding-window admission queue over simulated time, per-asset liquidity and price impact, basket fill solving, NAV tracking, and rebalancing, served over HTTP and WebSocket.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger from the log section of the config.
func setupLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}
