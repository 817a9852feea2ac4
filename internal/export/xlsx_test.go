package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

func sampleAggregation() *store.Aggregation {
	return &store.Aggregation{
		Pairing: model.Pairing{GoalID: "anxiety", SolutionID: "meditation", Category: "meditation_mindfulness"},
		Fields: model.FieldMap{
			"ongoing_cost": model.Distribution{
				Mode: "$10/month",
				Values: []model.DistributionValue{
					{Value: "$10/month", Count: 2, Percentage: 67, Source: "user_experiences"},
					{Value: "Free", Count: 1, Percentage: 33, Source: "user_experiences"},
				},
				TotalReports: 3,
				DataSource:   "user_experiences",
			},
			"time_of_day": model.Distribution{
				Mode: "Morning",
				Values: []model.DistributionValue{
					{Value: "Morning", Count: 2, Percentage: 100, Source: "user_experiences"},
				},
				TotalReports: 2,
				DataSource:   "user_experiences",
			},
		},
		Metadata: model.Metadata{
			Confidence:  0.4,
			DataSource:  "user_experiences",
			UserRatings: 2,
			GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(sampleAggregation(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)

	require.Contains(t, f.Sheet, "Overview")
	require.Contains(t, f.Sheet, "Ongoing Cost")
	require.Contains(t, f.Sheet, "Time Of Day")

	overview := f.Sheet["Overview"]
	assert.Equal(t, "Goal", overview.Rows[0].Cells[0].String())
	assert.Equal(t, "anxiety", overview.Rows[0].Cells[1].String())

	cost := f.Sheet["Ongoing Cost"]
	assert.Equal(t, "Mode", cost.Rows[0].Cells[0].String())
	assert.Equal(t, "$10/month", cost.Rows[0].Cells[1].String())
	assert.Equal(t, "Total reports", cost.Rows[1].Cells[0].String())
	assert.Equal(t, "3", cost.Rows[1].Cells[1].String())
	// header then values
	assert.Equal(t, "Value", cost.Rows[3].Cells[0].String())
	assert.Equal(t, "$10/month", cost.Rows[4].Cells[0].String())
	assert.Equal(t, "67.00", cost.Rows[4].Cells[2].String())
	assert.Equal(t, "Free", cost.Rows[5].Cells[0].String())
}

func TestWriteXLSX_SkipsLegacyFields(t *testing.T) {
	agg := sampleAggregation()
	agg.Fields["notes"] = "free-form text"

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(agg, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.NotContains(t, f.Sheet, "Notes")
}

func TestWriteXLSX_NilAggregation(t *testing.T) {
	err := WriteXLSX(nil, filepath.Join(t.TempDir(), "out.xlsx"))
	require.Error(t, err)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Still Following", sheetName("still_following"))
	assert.LessOrEqual(t, len(sheetName("a_very_long_field_name_that_keeps_going_and_going")), 31)
}
