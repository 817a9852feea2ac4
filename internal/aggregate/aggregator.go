// Package aggregate merges raw per-report field values into normalized
// categorical distributions: one Distribution per field, percentages closed
// to 100, near-duplicate labels collapsed, and category-specific cost fields
// derived. Everything here is a pure in-memory transform; persistence and
// report collection belong to the caller.
package aggregate

import (
	"math"
	"strconv"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// SyntheticReportCount is the conventional TotalReports for distributions
// whose true denominator is unknown, e.g. freshly-seeded AI data.
const SyntheticReportCount = 100

// DefaultDataSource tags values and distributions with no explicit provenance.
const DefaultDataSource = "ai_training_data"

// bucket accumulates one distinct value during aggregation.
type bucket struct {
	value string
	count int
}

// ValueField aggregates a scalar field across reports. Reports missing the
// field or holding nil/empty values are skipped and do not count toward
// TotalReports. Values bucket by exact post-extraction string match; no case
// folding happens here (that is the deduplicator's job).
func ValueField(reports []model.Report, field string) model.Distribution {
	var order []*bucket
	index := make(map[string]*bucket)

	contributing := 0
	for _, r := range reports {
		s, ok := scalarString(r.SolutionFields[field])
		if !ok {
			continue
		}
		contributing++
		if b, seen := index[s]; seen {
			b.count++
			continue
		}
		b := &bucket{value: s, count: 1}
		index[s] = b
		order = append(order, b)
	}

	return finishPartition(order, contributing, dataSourceFor(reports))
}

// ArrayField aggregates a multi-select field. Every array element increments
// its own count, so a report contributes once per distinct item it lists.
// TotalReports counts reports with a non-empty array, and percentages are
// per-report co-occurrence rates: they may individually exceed 100 and are
// deliberately NOT closed to sum 100.
func ArrayField(reports []model.Report, field string) model.Distribution {
	var order []*bucket
	index := make(map[string]*bucket)

	contributing := 0
	for _, r := range reports {
		items := arrayStrings(r.SolutionFields[field])
		if len(items) == 0 {
			continue
		}
		contributing++
		for _, s := range items {
			if b, seen := index[s]; seen {
				b.count++
				continue
			}
			b := &bucket{value: s, count: 1}
			index[s] = b
			order = append(order, b)
		}
	}

	if contributing == 0 {
		return model.Distribution{Values: []model.DistributionValue{}}
	}

	source := dataSourceFor(reports)
	values := make([]model.DistributionValue, 0, len(order))
	mode := ""
	best := 0
	for _, b := range order {
		pct := math.Round(float64(b.count) / float64(contributing) * 100)
		values = append(values, model.DistributionValue{
			Value:      b.value,
			Count:      b.count,
			Percentage: pct,
			Source:     source,
		})
		if b.count > best {
			best = b.count
			mode = b.value
		}
	}

	return model.Distribution{
		Mode:         mode,
		Values:       values,
		TotalReports: contributing,
		DataSource:   source,
	}
}

// BooleanField aggregates a boolean field into "Yes"/"No" buckets with the
// same closure rules as scalar aggregation.
func BooleanField(reports []model.Report, field string) model.Distribution {
	var order []*bucket
	index := make(map[string]*bucket)

	contributing := 0
	for _, r := range reports {
		v, ok := r.SolutionFields[field].(bool)
		if !ok {
			continue
		}
		contributing++
		label := "No"
		if v {
			label = "Yes"
		}
		if b, seen := index[label]; seen {
			b.count++
			continue
		}
		b := &bucket{value: label, count: 1}
		index[label] = b
		order = append(order, b)
	}

	return finishPartition(order, contributing, dataSourceFor(reports))
}

// finishPartition turns ordered buckets into a Distribution whose
// percentages partition 100. The rounding remainder goes to the entry with
// the highest raw count (first such entry on ties), and the mode is picked
// the same way.
func finishPartition(order []*bucket, contributing int, source string) model.Distribution {
	if contributing == 0 {
		return model.Distribution{Values: []model.DistributionValue{}}
	}

	values := make([]model.DistributionValue, 0, len(order))
	sum := 0.0
	modeIdx := 0
	for i, b := range order {
		pct := math.Round(float64(b.count) / float64(contributing) * 100)
		sum += pct
		values = append(values, model.DistributionValue{
			Value:      b.value,
			Count:      b.count,
			Percentage: pct,
			Source:     source,
		})
		if b.count > order[modeIdx].count {
			modeIdx = i
		}
	}

	if diff := 100 - sum; diff != 0 {
		values[modeIdx].Percentage += diff
	}

	return model.Distribution{
		Mode:         values[modeIdx].Value,
		Values:       values,
		TotalReports: contributing,
		DataSource:   source,
	}
}

// scalarString extracts a non-empty string form of a scalar field value.
// Unsupported shapes (arrays, maps, bools, nil) report ok=false and are
// skipped by the caller.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	default:
		return "", false
	}
}

// arrayStrings extracts the scalar elements of an array field value.
func arrayStrings(v any) []string {
	var out []string
	switch items := v.(type) {
	case []string:
		for _, s := range items {
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range items {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// dataSourceFor picks the provenance tag for freshly-aggregated values: user
// ratings outrank AI samples, so any human report marks the whole field as
// user-experience data.
func dataSourceFor(reports []model.Report) string {
	for _, r := range reports {
		if r.Source == model.SourceUserRating {
			return "user_experiences"
		}
	}
	return DefaultDataSource
}
