package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwfm/aggregate-cli/internal/model"
)

func costDist(mode string) model.Distribution {
	return model.Distribution{
		Mode: mode,
		Values: []model.DistributionValue{
			{Value: mode, Count: 10, Percentage: 100, Source: "user_experiences"},
		},
		TotalReports: 10,
		DataSource:   "user_experiences",
	}
}

func TestDeriveCostFields_RecurringScenario(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("Free/No startup cost"),
		"ongoing_cost": costDist("$10/month"),
	}

	patch := DeriveCostFields("meditation_mindfulness", aggregated, model.FieldMap{})

	require.NotNil(t, patch.Cost)
	assert.Equal(t, "$10/month", patch.Cost.Mode)
	require.NotNil(t, patch.CostType)
	assert.Equal(t, "recurring", patch.CostType.Mode)
	require.Len(t, patch.CostType.Values, 1)
	assert.Equal(t, 100.0, patch.CostType.Values[0].Percentage)
	assert.Equal(t, 100, patch.CostType.TotalReports)
	assert.Equal(t, "ai_training_data", patch.CostType.DataSource)
}

func TestDeriveCostFields_NonPracticeCategory(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("$50"),
		"ongoing_cost": costDist("$10/month"),
	}
	patch := DeriveCostFields("medications", aggregated, model.FieldMap{})
	assert.True(t, patch.Empty())
}

func TestDeriveCostFields_NothingToReadFrom(t *testing.T) {
	patch := DeriveCostFields("habits_routines", model.FieldMap{}, model.FieldMap{})
	assert.True(t, patch.Empty())
}

func TestDeriveCostFields_Dual(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("$120 one-time"),
		"ongoing_cost": costDist("$15/month"),
	}
	patch := DeriveCostFields("exercise_movement", aggregated, model.FieldMap{})
	require.NotNil(t, patch.CostType)
	assert.Equal(t, "dual", patch.CostType.Mode)
	// Ongoing paid wins the cost preference ladder.
	assert.Equal(t, "$15/month", patch.Cost.Mode)
}

func TestDeriveCostFields_OneTime(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("$200 for equipment"),
		"ongoing_cost": costDist("Free"),
	}
	patch := DeriveCostFields("hobbies_activities", aggregated, model.FieldMap{})
	require.NotNil(t, patch.CostType)
	assert.Equal(t, "one_time", patch.CostType.Mode)
	assert.Equal(t, "$200 for equipment", patch.Cost.Mode)
}

func TestDeriveCostFields_Free(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("Free"),
		"ongoing_cost": costDist("Free"),
	}
	patch := DeriveCostFields("habits_routines", aggregated, model.FieldMap{})
	require.NotNil(t, patch.CostType)
	assert.Equal(t, "free", patch.CostType.Mode)
	// Meaningful ongoing wins the fallback ladder.
	assert.Equal(t, "Free", patch.Cost.Mode)
}

func TestDeriveCostFields_NotMeaningful(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("Don't remember"),
		"ongoing_cost": costDist("Unknown cost"),
	}
	patch := DeriveCostFields("meditation_mindfulness", aggregated, model.FieldMap{})

	// cost falls back to whichever exists (ongoing first); cost_type stays unset.
	require.NotNil(t, patch.Cost)
	assert.Equal(t, "Unknown cost", patch.Cost.Mode)
	assert.Nil(t, patch.CostType)
}

func TestDeriveCostFields_ExistingFieldsUntouched(t *testing.T) {
	aggregated := model.FieldMap{
		"cost":         costDist("$5/month"),
		"cost_type":    costDist("recurring"),
		"startup_cost": costDist("$50"),
		"ongoing_cost": costDist("$10/month"),
	}
	patch := DeriveCostFields("exercise_movement", aggregated, model.FieldMap{})
	assert.True(t, patch.Empty())
}

func TestDeriveCostFields_StartupOnly(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("$30 for a mat"),
	}
	patch := DeriveCostFields("meditation_mindfulness", aggregated, model.FieldMap{})
	require.NotNil(t, patch.Cost)
	assert.Equal(t, "$30 for a mat", patch.Cost.Mode)
	require.NotNil(t, patch.CostType)
	assert.Equal(t, "one_time", patch.CostType.Mode)
}

func TestDeriveCostFields_ReadsJSONDecodedShape(t *testing.T) {
	// Field maps loaded from JSONB arrive as map[string]any, not typed structs.
	aggregated := model.FieldMap{
		"ongoing_cost": map[string]any{
			"mode": "$8/month",
			"values": []any{
				map[string]any{"value": "$8/month", "count": float64(6), "percentage": float64(100)},
			},
			"totalReports": float64(6),
		},
	}
	patch := DeriveCostFields("habits_routines", aggregated, model.FieldMap{})
	require.NotNil(t, patch.Cost)
	assert.Equal(t, "$8/month", patch.Cost.Mode)
	assert.Equal(t, 6, patch.Cost.TotalReports)
}

func TestDeriveCostFields_MalformedUpstreamIgnored(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": "not a distribution",
		"ongoing_cost": costDist("$10/month"),
	}
	patch := DeriveCostFields("habits_routines", aggregated, model.FieldMap{})
	require.NotNil(t, patch.Cost)
	assert.Equal(t, "$10/month", patch.Cost.Mode)
	assert.Equal(t, "recurring", patch.CostType.Mode)
}

func TestApplyCostPatch_WritesBothMaps(t *testing.T) {
	aggregated := model.FieldMap{
		"startup_cost": costDist("Free"),
		"ongoing_cost": costDist("$10/month"),
	}
	solution := model.FieldMap{}

	DeriveCostFieldsForCategory("meditation_mindfulness", aggregated, solution)

	cost, ok := model.AsDistribution(aggregated["cost"])
	require.True(t, ok)
	assert.Equal(t, "$10/month", cost.Mode)
	_, ok = model.AsDistribution(solution["cost"])
	assert.True(t, ok)
	ct, ok := model.AsDistribution(aggregated["cost_type"])
	require.True(t, ok)
	assert.Equal(t, "recurring", ct.Mode)
}
