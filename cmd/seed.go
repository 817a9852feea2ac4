package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/seed"
	"github.com/wwfm/aggregate-cli/pkg/anthropic"
)

var (
	seedGoal     string
	seedSolution string
	seedVariant  string
	seedCategory string
	seedCount    int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate AI sample reports for a pairing",
	Long:  "Asks Claude for synthetic field reports covering the tracked fields and inserts them as ai_sample reports, so sparse pairings still aggregate to a full distribution set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (WWFM_ANTHROPIC_KEY)")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		count := seedCount
		if count == 0 {
			count = cfg.Seed.Count
		}

		gen := seed.NewGenerator(anthropic.NewClient(cfg.Anthropic.Key), seed.Options{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
			RPS:         cfg.Anthropic.RPS,
		})

		pairing := model.Pairing{
			GoalID:     seedGoal,
			SolutionID: seedSolution,
			VariantID:  seedVariant,
			Category:   seedCategory,
		}
		reports, err := gen.Generate(ctx, pairing, cfg.Aggregation.Fields, count)
		if err != nil {
			return eris.Wrap(err, "seed")
		}

		for _, r := range reports {
			if err := st.InsertReport(ctx, r); err != nil {
				return eris.Wrap(err, "seed: insert report")
			}
		}

		zap.L().Info("seed complete",
			zap.String("goal_id", seedGoal),
			zap.String("solution_id", seedSolution),
			zap.Int("inserted", len(reports)),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedGoal, "goal", "", "goal ID (required)")
	seedCmd.Flags().StringVar(&seedSolution, "solution", "", "solution ID (required)")
	seedCmd.Flags().StringVar(&seedVariant, "variant", "", "solution variant ID")
	seedCmd.Flags().StringVar(&seedCategory, "category", "", "solution category")
	seedCmd.Flags().IntVar(&seedCount, "count", 0, "reports to generate (default from config)")
	_ = seedCmd.MarkFlagRequired("goal")
	_ = seedCmd.MarkFlagRequired("solution")
	rootCmd.AddCommand(seedCmd)
}
