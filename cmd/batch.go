package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Aggregate every pairing with reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner, err := newRunner(st)
		if err != nil {
			return err
		}

		n, err := runner.RunAll(ctx)
		zap.L().Info("batch complete", zap.Int("pairings", n))
		return err
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
