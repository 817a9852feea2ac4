package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwfm/aggregate-cli/internal/aggregate"
	"github.com/wwfm/aggregate-cli/internal/job"
	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	runner := job.NewRunner(st, map[string]string{"frequency": "value"}, aggregate.DefaultRules(), 1)
	return newRouter(context.Background(), st, runner), st
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookAggregate_Valid(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, st.InsertReport(ctx, model.Report{
		GoalID: "anxiety", SolutionID: "meditation",
		Source:         model.SourceUserRating,
		SolutionFields: map[string]any{"frequency": "Once daily"},
	}))

	payload, _ := json.Marshal(map[string]string{
		"goal_id":     "anxiety",
		"solution_id": "meditation",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook/aggregate", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])

	// The job runs async; poll until the aggregation lands.
	require.Eventually(t, func() bool {
		agg, err := st.GetAggregation(ctx, model.Pairing{GoalID: "anxiety", SolutionID: "meditation"})
		return err == nil && agg != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebhookAggregate_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/aggregate", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	payload, _ := json.Marshal(map[string]string{"goal_id": "anxiety"})
	req = httptest.NewRequest(http.MethodPost, "/webhook/aggregate", bytes.NewReader(payload))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetAggregation_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/aggregations/anxiety/unknown", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetAggregation_Found(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	require.NoError(t, st.SaveAggregation(ctx, store.Aggregation{
		Pairing: model.Pairing{GoalID: "anxiety", SolutionID: "meditation", Category: "meditation_mindfulness"},
		Fields: model.FieldMap{
			"frequency": model.Distribution{Mode: "Once daily", TotalReports: 2},
		},
		Metadata: model.Metadata{UserRatings: 2, DataSource: "user_experiences"},
	}))

	req := httptest.NewRequest(http.MethodGet, "/aggregations/anxiety/meditation", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		GoalID   string         `json:"goal_id"`
		Category string         `json:"category"`
		Fields   map[string]any `json:"fields"`
		Metadata model.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "anxiety", body.GoalID)
	assert.Equal(t, "meditation_mindfulness", body.Category)
	assert.Contains(t, body.Fields, "frequency")
	assert.Equal(t, 2, body.Metadata.UserRatings)
}
