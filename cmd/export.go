package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm/aggregate-cli/internal/export"
	"github.com/wwfm/aggregate-cli/internal/model"
)

var (
	exportGoal     string
	exportSolution string
	exportVariant  string
	exportOutput   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a pairing's aggregation to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		agg, err := st.GetAggregation(ctx, model.Pairing{
			GoalID:     exportGoal,
			SolutionID: exportSolution,
			VariantID:  exportVariant,
		})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if agg == nil {
			return eris.Errorf("no aggregation for %s/%s, run aggregate first", exportGoal, exportSolution)
		}

		if err := export.WriteXLSX(agg, exportOutput); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("goal_id", exportGoal),
			zap.String("solution_id", exportSolution),
			zap.String("output", exportOutput),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportGoal, "goal", "", "goal ID (required)")
	exportCmd.Flags().StringVar(&exportSolution, "solution", "", "solution ID (required)")
	exportCmd.Flags().StringVar(&exportVariant, "variant", "", "solution variant ID")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "aggregation.xlsx", "output path")
	_ = exportCmd.MarkFlagRequired("goal")
	_ = exportCmd.MarkFlagRequired("solution")
	rootCmd.AddCommand(exportCmd)
}
