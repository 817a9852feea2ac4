package model

import "time"

// ReportSource identifies where a report came from.
type ReportSource string

const (
	SourceUserRating ReportSource = "user_rating"
	SourceAISample   ReportSource = "ai_sample"
)

// Report is one raw observation for a (goal, solution) pairing: a human
// rating or an AI-generated sample. SolutionFields maps field name to a
// scalar, a bool, or a slice of scalars for multi-select fields. Reports are
// read-only inputs to aggregation and are never mutated by the core.
type Report struct {
	ID             string         `json:"id"`
	GoalID         string         `json:"goal_id"`
	SolutionID     string         `json:"solution_id"`
	VariantID      string         `json:"variant_id,omitempty"`
	Category       string         `json:"category,omitempty"`
	Source         ReportSource   `json:"source"`
	SolutionFields map[string]any `json:"solution_fields"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Pairing identifies one goal/solution-variant link, the unit an
// AggregatedFieldMap is attached to.
type Pairing struct {
	GoalID     string `json:"goal_id"`
	SolutionID string `json:"solution_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Category   string `json:"category,omitempty"`
}
