package job

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wwfm/aggregate-cli/internal/aggregate"
	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

// Runner executes the aggregation job: snapshot reports for a pairing, build
// per-field distributions, dedupe, derive cost fields, and persist the result.
type Runner struct {
	store         store.Store
	fields        map[string]string
	deduper       *aggregate.Deduper
	maxConcurrent int
}

// NewRunner creates a Runner. fields maps tracked field names to their shape
// ("value", "array", or "boolean"). maxConcurrent bounds batch fan-out.
func NewRunner(st store.Store, fields map[string]string, rules aggregate.Rules, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		store:         st,
		fields:        fields,
		deduper:       aggregate.NewDeduper(rules),
		maxConcurrent: maxConcurrent,
	}
}

// RunPairing aggregates one pairing and saves the result. A pairing with no
// reports is skipped and returns nil without error.
func (r *Runner) RunPairing(ctx context.Context, pairing model.Pairing) (*store.Aggregation, error) {
	reports, err := r.store.ListReports(ctx, store.ReportFilter{Pairing: pairing})
	if err != nil {
		return nil, eris.Wrapf(err, "job: list reports for %s/%s", pairing.GoalID, pairing.SolutionID)
	}
	if len(reports) == 0 {
		zap.L().Info("no reports for pairing, skipping",
			zap.String("goal_id", pairing.GoalID),
			zap.String("solution_id", pairing.SolutionID),
		)
		return nil, nil
	}

	fields := model.FieldMap{}
	for _, name := range sortedKeys(r.fields) {
		kind := r.fields[name]

		var d model.Distribution
		switch kind {
		case "array":
			d = aggregate.ArrayField(reports, name)
		case "boolean":
			d = aggregate.BooleanField(reports, name)
		default:
			d = aggregate.ValueField(reports, name)
		}
		if len(d.Values) == 0 {
			continue
		}

		// Array fields keep raw co-occurrence rates; redistributing them
		// to 100 would destroy that meaning.
		if kind != "array" {
			d, err = r.deduper.Deduplicate(d)
			if err != nil {
				return nil, eris.Wrapf(err, "job: dedupe %s for %s/%s", name, pairing.GoalID, pairing.SolutionID)
			}
		}
		fields[name] = d
	}

	patch := aggregate.DeriveCostFields(pairing.Category, fields, model.FieldMap{})
	aggregate.ApplyCostPatch(patch, fields, model.FieldMap{})

	agg := store.Aggregation{
		Pairing:  pairing,
		Fields:   fields,
		Metadata: buildMetadata(pairing, reports),
	}
	if err := r.store.SaveAggregation(ctx, agg); err != nil {
		return nil, eris.Wrapf(err, "job: save aggregation for %s/%s", pairing.GoalID, pairing.SolutionID)
	}

	zap.L().Info("aggregated pairing",
		zap.String("goal_id", pairing.GoalID),
		zap.String("solution_id", pairing.SolutionID),
		zap.String("variant_id", pairing.VariantID),
		zap.Int("reports", len(reports)),
		zap.Int("fields", len(fields)),
	)
	return &agg, nil
}

// RunAll aggregates every pairing that has reports, bounded by the configured
// concurrency. It keeps going past per-pairing failures and returns how many
// pairings were processed plus an error if any failed.
func (r *Runner) RunAll(ctx context.Context) (int, error) {
	pairings, err := r.store.ListPairings(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "job: list pairings")
	}

	var processed, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)

	for _, p := range pairings {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := r.RunPairing(ctx, p); err != nil {
				failed.Add(1)
				zap.L().Error("pairing failed",
					zap.String("goal_id", p.GoalID),
					zap.String("solution_id", p.SolutionID),
					zap.Error(err),
				)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(processed.Load()), eris.Wrap(err, "job: batch canceled")
	}
	if n := failed.Load(); n > 0 {
		return int(processed.Load()), eris.Errorf("job: %d of %d pairings failed", n, len(pairings))
	}
	return int(processed.Load()), nil
}

// buildMetadata derives the descriptive envelope from the report set.
func buildMetadata(pairing model.Pairing, reports []model.Report) model.Metadata {
	var userRatings int
	var aiEnhanced bool
	for _, r := range reports {
		switch r.Source {
		case model.SourceUserRating:
			userRatings++
		case model.SourceAISample:
			aiEnhanced = true
		}
	}

	dataSource := aggregate.DefaultDataSource
	if userRatings > 0 {
		dataSource = "user_experiences"
	}

	return model.Metadata{
		Confidence:     confidence(userRatings),
		AIEnhanced:     aiEnhanced,
		GeneratedAt:    time.Now().UTC(),
		DataSource:     dataSource,
		SourceSolution: pairing.SolutionID,
		TargetGoal:     pairing.GoalID,
		UserRatings:    userRatings,
	}
}

// confidence scores an aggregation from its user rating count. AI-only
// aggregations sit at the floor; each rating adds weight up to a cap.
func confidence(userRatings int) float64 {
	c := 0.30 + 0.05*float64(userRatings)
	if c > 0.95 {
		return 0.95
	}
	return c
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
