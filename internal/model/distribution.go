package model

// DistributionValue is one observed categorical outcome and its share of the
// population. Source is a provenance tag ("research", "user_experiences",
// "ai_training_data", ...) used for merge tie-breaking and display only,
// never for statistics.
type DistributionValue struct {
	Value      string  `json:"value"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
	Source     string  `json:"source,omitempty"`
}

// Distribution is the aggregated categorical summary of one field across all
// reports for a solution.
//
// Invariants maintained by the aggregate package:
//   - Mode equals the Value of the highest-count entry (first-seen wins ties).
//   - Percentages sum to exactly 100 when Values is non-empty and
//     TotalReports > 0, except for array fields where entries are independent
//     co-occurrence rates.
//   - After deduplication, no two entries are semantically equivalent.
type Distribution struct {
	Mode         string              `json:"mode"`
	Values       []DistributionValue `json:"values"`
	TotalReports int                 `json:"totalReports"`
	DataSource   string              `json:"dataSource,omitempty"`
}

// FieldMap maps field name to an aggregated Distribution, or to arbitrary
// raw JSON for legacy fields. Attached 1:1 to a goal/solution pairing and
// always fully recomputed from the current report set.
type FieldMap map[string]any

// AsDistribution extracts a Distribution from a FieldMap entry. It accepts
// both typed Distributions and the map[string]any shape produced by JSON
// round-trips; ok is false for anything else.
func AsDistribution(v any) (Distribution, bool) {
	switch d := v.(type) {
	case Distribution:
		return d, true
	case *Distribution:
		if d == nil {
			return Distribution{}, false
		}
		return *d, true
	case map[string]any:
		mode, hasMode := d["mode"].(string)
		rawValues, hasValues := d["values"].([]any)
		if !hasMode && !hasValues {
			return Distribution{}, false
		}
		out := Distribution{Mode: mode}
		if ds, ok := d["dataSource"].(string); ok {
			out.DataSource = ds
		}
		if tr, ok := toFloat(d["totalReports"]); ok {
			out.TotalReports = int(tr)
		}
		for _, rv := range rawValues {
			m, ok := rv.(map[string]any)
			if !ok {
				continue
			}
			dv := DistributionValue{}
			dv.Value, _ = m["value"].(string)
			dv.Source, _ = m["source"].(string)
			if c, ok := toFloat(m["count"]); ok {
				dv.Count = int(c)
			}
			if p, ok := toFloat(m["percentage"]); ok {
				dv.Percentage = p
			}
			out.Values = append(out.Values, dv)
		}
		return out, true
	default:
		return Distribution{}, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
