package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm/aggregate-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "wwfm-aggregate",
	Short: "Field-distribution aggregation engine for solution reports",
	Long:  "Aggregates raw goal/solution reports into per-field value distributions, deduplicates equivalent answers, derives cost fields, and persists the result for display.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
