package job

import (
	"context"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwfm/aggregate-cli/internal/aggregate"
	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

// fakeStore is an in-memory Store for runner tests.
type fakeStore struct {
	mu          sync.Mutex
	reports     map[model.Pairing][]model.Report
	saved       map[model.Pairing]store.Aggregation
	failSaveFor string // goal_id whose save should fail
	listErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports: map[model.Pairing][]model.Report{},
		saved:   map[model.Pairing]store.Aggregation{},
	}
}

func (f *fakeStore) InsertReport(_ context.Context, r model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := model.Pairing{GoalID: r.GoalID, SolutionID: r.SolutionID, VariantID: r.VariantID, Category: r.Category}
	f.reports[p] = append(f.reports[p], r)
	return nil
}

func (f *fakeStore) ListReports(_ context.Context, filter store.ReportFilter) ([]model.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	for p, rs := range f.reports {
		if p.GoalID == filter.Pairing.GoalID && p.SolutionID == filter.Pairing.SolutionID && p.VariantID == filter.Pairing.VariantID {
			return rs, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListPairings(_ context.Context) ([]model.Pairing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Pairing
	for p := range f.reports {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SaveAggregation(_ context.Context, agg store.Aggregation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveFor != "" && agg.Pairing.GoalID == f.failSaveFor {
		return eris.New("disk full")
	}
	f.saved[agg.Pairing] = agg
	return nil
}

func (f *fakeStore) GetAggregation(_ context.Context, p model.Pairing) (*store.Aggregation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if agg, ok := f.saved[p]; ok {
		return &agg, nil
	}
	return nil, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

var trackedFields = map[string]string{
	"ongoing_cost":    "value",
	"startup_cost":    "value",
	"frequency":       "value",
	"time_of_day":     "array",
	"still_following": "boolean",
}

func seedPairing(f *fakeStore, p model.Pairing, reports ...model.Report) {
	for _, r := range reports {
		r.GoalID, r.SolutionID, r.VariantID, r.Category = p.GoalID, p.SolutionID, p.VariantID, p.Category
		f.reports[p] = append(f.reports[p], r)
	}
}

func TestRunPairing_FullAggregation(t *testing.T) {
	f := newFakeStore()
	p := model.Pairing{GoalID: "anxiety", SolutionID: "meditation", Category: "meditation_mindfulness"}
	seedPairing(f, p,
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{
			"ongoing_cost": "$10/month", "startup_cost": "Free",
			"time_of_day": []any{"Morning"}, "still_following": true,
		}},
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{
			"ongoing_cost": "$10/month",
			"time_of_day":  []any{"Morning", "Evening"}, "still_following": true,
		}},
		model.Report{Source: model.SourceAISample, SolutionFields: map[string]any{
			"ongoing_cost": "Free", "still_following": false,
		}},
	)

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)
	agg, err := r.RunPairing(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, agg)

	ongoing, ok := model.AsDistribution(agg.Fields["ongoing_cost"])
	require.True(t, ok)
	assert.Equal(t, "$10/month", ongoing.Mode)
	require.Len(t, ongoing.Values, 2)
	assert.Equal(t, 67.0, ongoing.Values[0].Percentage)
	assert.Equal(t, 33.0, ongoing.Values[1].Percentage)

	// Array fields keep co-occurrence rates: no closure to 100.
	tod, ok := model.AsDistribution(agg.Fields["time_of_day"])
	require.True(t, ok)
	assert.Equal(t, 2, tod.TotalReports)
	var sum float64
	for _, v := range tod.Values {
		sum += v.Percentage
	}
	assert.Equal(t, 150.0, sum)

	following, ok := model.AsDistribution(agg.Fields["still_following"])
	require.True(t, ok)
	assert.Equal(t, "Yes", following.Mode)

	// Practice category gets derived cost and cost_type.
	cost, ok := model.AsDistribution(agg.Fields["cost"])
	require.True(t, ok)
	assert.Equal(t, "$10/month", cost.Mode)
	costType, ok := model.AsDistribution(agg.Fields["cost_type"])
	require.True(t, ok)
	assert.Equal(t, "recurring", costType.Mode)

	assert.Equal(t, 2, agg.Metadata.UserRatings)
	assert.True(t, agg.Metadata.AIEnhanced)
	assert.Equal(t, "user_experiences", agg.Metadata.DataSource)
	assert.InDelta(t, 0.40, agg.Metadata.Confidence, 1e-9)
	assert.Equal(t, "meditation", agg.Metadata.SourceSolution)
	assert.Equal(t, "anxiety", agg.Metadata.TargetGoal)
	assert.False(t, agg.Metadata.GeneratedAt.IsZero())

	// Persisted.
	stored, err := f.GetAggregation(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestRunPairing_DedupesScalarFields(t *testing.T) {
	f := newFakeStore()
	p := model.Pairing{GoalID: "anxiety", SolutionID: "meditation"}
	seedPairing(f, p,
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "Once daily"}},
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "1x daily"}},
	)

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)
	agg, err := r.RunPairing(context.Background(), p)
	require.NoError(t, err)

	freq, ok := model.AsDistribution(agg.Fields["frequency"])
	require.True(t, ok)
	require.Len(t, freq.Values, 1)
	assert.Equal(t, 2, freq.Values[0].Count)
	assert.Equal(t, 100.0, freq.Values[0].Percentage)
}

func TestRunPairing_AIOnlyMetadata(t *testing.T) {
	f := newFakeStore()
	p := model.Pairing{GoalID: "sleep", SolutionID: "magnesium"}
	seedPairing(f, p,
		model.Report{Source: model.SourceAISample, SolutionFields: map[string]any{"frequency": "Once daily"}},
	)

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)
	agg, err := r.RunPairing(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 0, agg.Metadata.UserRatings)
	assert.True(t, agg.Metadata.AIEnhanced)
	assert.Equal(t, "ai_training_data", agg.Metadata.DataSource)
	assert.InDelta(t, 0.30, agg.Metadata.Confidence, 1e-9)
}

func TestRunPairing_NoReports(t *testing.T) {
	f := newFakeStore()
	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)

	agg, err := r.RunPairing(context.Background(), model.Pairing{GoalID: "nope", SolutionID: "nothing"})
	require.NoError(t, err)
	assert.Nil(t, agg)
	assert.Empty(t, f.saved)
}

func TestRunPairing_SkipsFieldsWithoutData(t *testing.T) {
	f := newFakeStore()
	p := model.Pairing{GoalID: "anxiety", SolutionID: "meditation"}
	seedPairing(f, p,
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "Once daily"}},
	)

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)
	agg, err := r.RunPairing(context.Background(), p)
	require.NoError(t, err)

	assert.Contains(t, agg.Fields, "frequency")
	assert.NotContains(t, agg.Fields, "time_of_day")
	assert.NotContains(t, agg.Fields, "still_following")
}

func TestRunPairing_SaveError(t *testing.T) {
	f := newFakeStore()
	f.failSaveFor = "anxiety"
	p := model.Pairing{GoalID: "anxiety", SolutionID: "meditation"}
	seedPairing(f, p,
		model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "Once daily"}},
	)

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 1)
	_, err := r.RunPairing(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save aggregation")
}

func TestRunAll_ProcessesEveryPairing(t *testing.T) {
	f := newFakeStore()
	for _, goal := range []string{"anxiety", "sleep", "focus"} {
		seedPairing(f, model.Pairing{GoalID: goal, SolutionID: "meditation"},
			model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "Once daily"}},
		)
	}

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 2)
	n, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, f.saved, 3)
}

func TestRunAll_ContinuesPastFailures(t *testing.T) {
	f := newFakeStore()
	f.failSaveFor = "sleep"
	for _, goal := range []string{"anxiety", "sleep", "focus"} {
		seedPairing(f, model.Pairing{GoalID: goal, SolutionID: "meditation"},
			model.Report{Source: model.SourceUserRating, SolutionFields: map[string]any{"frequency": "Once daily"}},
		)
	}

	r := NewRunner(f, trackedFields, aggregate.DefaultRules(), 2)
	n, err := r.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 pairings failed")
	assert.Equal(t, 2, n)
	assert.Len(t, f.saved, 2)
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.30, confidence(0), 1e-9)
	assert.InDelta(t, 0.55, confidence(5), 1e-9)
	assert.InDelta(t, 0.95, confidence(13), 1e-9)
	assert.InDelta(t, 0.95, confidence(100), 1e-9)
}
