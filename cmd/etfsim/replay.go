package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mridulgoel03/ETF-trading-project/internal/config"
	"github.com/mridulgoel03/ETF-trading-project/internal/scenario"
)

func newReplayCmd() *cobra.Command {
	var scenarioFile string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run a scenario fixture against a fresh engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = setupLogger(cfg)

			s, err := scenario.Load(scenarioFile)
			if err != nil {
				return err
			}

			report, err := scenario.NewRunner(s, logger).Run()
			if err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("scenario %q: %d assertion failures", report.Scenario, len(report.Failures))
			}

			logger.WithFields(logrus.Fields{
				"scenario": report.Scenario,
				"steps":    report.Steps,
			}).Info("scenario replay passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioFile, "scenario", "", "scenario fixture file")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}
