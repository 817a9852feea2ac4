package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wwfm/aggregate-cli/internal/db"
	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

var importCmd = &cobra.Command{
	Use:   "import <reports.jsonl>",
	Short: "Bulk load reports from a JSONL dump",
	Long:  "Reads one report JSON object per line and loads them into the reports table. On Postgres this uses a temp-table COPY upsert; on SQLite it falls back to row inserts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reports, err := readReportsJSONL(args[0])
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			zap.L().Warn("no reports in file", zap.String("path", args[0]))
			return nil
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var inserted int64
		if pg, ok := st.(*store.PostgresStore); ok {
			inserted, err = bulkUpsertReports(ctx, pg, reports)
		} else {
			for _, r := range reports {
				if err = st.InsertReport(ctx, r); err != nil {
					break
				}
				inserted++
			}
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int64("inserted", inserted),
			zap.String("path", args[0]),
		)
		return nil
	},
}

// readReportsJSONL parses a file with one report object per line. Blank lines
// are skipped; a malformed line aborts the import so a partial dump is not
// silently half-loaded.
func readReportsJSONL(path string) ([]model.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: open %s", path)
	}
	defer f.Close()

	var reports []model.Report
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var r model.Report
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrapf(err, "import: parse line %d", line)
		}
		if r.GoalID == "" || r.SolutionID == "" {
			return nil, eris.Errorf("import: line %d missing goal_id or solution_id", line)
		}
		reports = append(reports, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "import: read %s", path)
	}
	return reports, nil
}

// bulkUpsertReports loads reports through the temp-table COPY path.
func bulkUpsertReports(ctx context.Context, pg *store.PostgresStore, reports []model.Report) (int64, error) {
	rows := make([][]any, 0, len(reports))
	for _, r := range reports {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		if r.Source == "" {
			r.Source = model.SourceUserRating
		}
		fields, err := json.Marshal(r.SolutionFields)
		if err != nil {
			return 0, eris.Wrap(err, "import: marshal solution fields")
		}
		rows = append(rows, []any{r.ID, r.GoalID, r.SolutionID, r.VariantID, r.Category, string(r.Source), fields, r.CreatedAt})
	}

	return db.BulkUpsert(ctx, pg.Pool(), db.UpsertConfig{
		Table:        "reports",
		Columns:      []string{"id", "goal_id", "solution_id", "variant_id", "category", "source", "solution_fields", "created_at"},
		ConflictKeys: []string{"id"},
	}, rows)
}

func init() {
	rootCmd.AddCommand(importCmd)
}
