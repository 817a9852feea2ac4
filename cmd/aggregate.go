package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm/aggregate-cli/internal/model"
)

var (
	aggregateGoal     string
	aggregateSolution string
	aggregateVariant  string
	aggregateCategory string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate one goal/solution pairing",
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

		pairing := model.Pairing{
			GoalID:     aggregateGoal,
			SolutionID: aggregateSolution,
			VariantID:  aggregateVariant,
			Category:   aggregateCategory,
		}
		agg, err := runner.RunPairing(ctx, pairing)
		if err != nil {
			return eris.Wrap(err, "aggregate")
		}
		if agg == nil {
			zap.L().Warn("pairing has no reports",
				zap.String("goal_id", aggregateGoal),
				zap.String("solution_id", aggregateSolution),
			)
			return nil
		}

		zap.L().Info("aggregation saved",
			zap.String("goal_id", aggregateGoal),
			zap.String("solution_id", aggregateSolution),
			zap.Int("fields", len(agg.Fields)),
			zap.Int("user_ratings", agg.Metadata.UserRatings),
			zap.Float64("confidence", agg.Metadata.Confidence),
		)
		return nil
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateGoal, "goal", "", "goal ID (required)")
	aggregateCmd.Flags().StringVar(&aggregateSolution, "solution", "", "solution ID (required)")
	aggregateCmd.Flags().StringVar(&aggregateVariant, "variant", "", "solution variant ID")
	aggregateCmd.Flags().StringVar(&aggregateCategory, "category", "", "solution category (enables cost derivation)")
	_ = aggregateCmd.MarkFlagRequired("goal")
	_ = aggregateCmd.MarkFlagRequired("solution")
	rootCmd.AddCommand(aggregateCmd)
}
