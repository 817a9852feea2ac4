// Package store persists raw reports and aggregated field maps.
package store

import (
	"context"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Pairing model.Pairing `json:"pairing"`
	Limit   int           `json:"limit,omitempty"`
}

// Aggregation is one persisted aggregation result for a pairing.
type Aggregation struct {
	Pairing  model.Pairing  `json:"pairing"`
	Fields   model.FieldMap `json:"fields"`
	Metadata model.Metadata `json:"metadata"`
}

// Store defines the persistence interface for the aggregation pipeline.
type Store interface {
	// Reports
	InsertReport(ctx context.Context, r model.Report) error
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)
	ListPairings(ctx context.Context) ([]model.Pairing, error)

	// Aggregations. SaveAggregation overwrites the whole row
	// (last-writer-wins), matching the fully-recomputed field map.
	SaveAggregation(ctx context.Context, agg Aggregation) error
	GetAggregation(ctx context.Context, p model.Pairing) (*Aggregation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
