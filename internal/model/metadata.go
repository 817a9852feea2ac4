package model

import "time"

// Metadata is the descriptive envelope persisted alongside an aggregated
// field map. It carries no statistical role.
type Metadata struct {
	Confidence     float64   `json:"confidence"`
	AIEnhanced     bool      `json:"ai_enhanced"`
	GeneratedAt    time.Time `json:"generated_at"`
	DataSource     string    `json:"data_source"`
	ValueMapped    bool      `json:"value_mapped"`
	MappingVersion string    `json:"mapping_version,omitempty"`
	SourceSolution string    `json:"source_solution,omitempty"`
	TargetGoal     string    `json:"target_goal,omitempty"`
	UserRatings    int       `json:"user_ratings"`
}
