package aggregate

import (
	"strings"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// practiceCategories are the solution categories with separate startup and
// ongoing cost concepts instead of a single cost field.
var practiceCategories = map[string]bool{
	"meditation_mindfulness": true,
	"exercise_movement":      true,
	"habits_routines":        true,
	"hobbies_activities":     true,
}

// CostPatch holds the fields the deriver wants to add to a field map. Nil
// entries mean nothing to add.
type CostPatch struct {
	Cost     *model.Distribution
	CostType *model.Distribution
}

// Empty reports whether the patch adds nothing.
func (p CostPatch) Empty() bool {
	return p.Cost == nil && p.CostType == nil
}

// DeriveCostFields synthesizes cost and cost_type for practice-shaped
// categories from startup_cost and ongoing_cost, so the display schema stays
// uniform across categories. It returns a patch instead of mutating its
// inputs; DeriveCostFieldsForCategory applies the patch in place for callers
// that want the mutating contract. Never errors: malformed or missing
// upstream distributions just mean nothing to derive.
func DeriveCostFields(category string, aggregated, solution model.FieldMap) CostPatch {
	var patch CostPatch
	if !practiceCategories[category] {
		return patch
	}

	startup, hasStartup := fieldDistribution(aggregated, solution, "startup_cost")
	ongoing, hasOngoing := fieldDistribution(aggregated, solution, "ongoing_cost")
	if !hasStartup && !hasOngoing {
		return patch
	}

	startupMeaningful := hasStartup && meaningfulMode(startup.Mode)
	ongoingMeaningful := hasOngoing && meaningfulMode(ongoing.Mode)
	startupPaid := startupMeaningful && paidMode(startup.Mode)
	ongoingPaid := ongoingMeaningful && paidMode(ongoing.Mode)

	if _, hasCost := aggregated["cost"]; !hasCost {
		switch {
		case ongoingPaid:
			patch.Cost = &ongoing
		case startupPaid:
			patch.Cost = &startup
		case ongoingMeaningful:
			patch.Cost = &ongoing
		case startupMeaningful:
			patch.Cost = &startup
		case hasOngoing:
			patch.Cost = &ongoing
		default:
			patch.Cost = &startup
		}
	}

	if _, hasType := aggregated["cost_type"]; !hasType {
		var class string
		switch {
		case startupPaid && ongoingPaid:
			class = "dual"
		case ongoingPaid:
			class = "recurring"
		case startupPaid:
			class = "one_time"
		case startupMeaningful || ongoingMeaningful:
			free := (startupMeaningful && !startupPaid) || (ongoingMeaningful && !ongoingPaid)
			if free {
				class = "free"
			} else {
				class = "unknown"
			}
		}
		if class != "" {
			patch.CostType = syntheticDistribution(class)
		}
	}

	return patch
}

// ApplyCostPatch writes the patch into the aggregated field map and the raw
// solution field map, mirroring how the display layer reads both.
func ApplyCostPatch(patch CostPatch, aggregated, solution model.FieldMap) {
	if patch.Cost != nil {
		aggregated["cost"] = *patch.Cost
		if solution != nil {
			solution["cost"] = *patch.Cost
		}
	}
	if patch.CostType != nil {
		aggregated["cost_type"] = *patch.CostType
		if solution != nil {
			solution["cost_type"] = *patch.CostType
		}
	}
}

// DeriveCostFieldsForCategory is the mutating wrapper: derive, then apply.
func DeriveCostFieldsForCategory(category string, aggregated, solution model.FieldMap) {
	ApplyCostPatch(DeriveCostFields(category, aggregated, solution), aggregated, solution)
}

// fieldDistribution pulls a Distribution out of the aggregated map, falling
// back to the raw solution map. It tolerates both typed values and
// JSON-decoded maps; anything else is treated as not meaningful rather than
// an error.
func fieldDistribution(aggregated, solution model.FieldMap, name string) (model.Distribution, bool) {
	if raw, ok := aggregated[name]; ok {
		if d, ok := model.AsDistribution(raw); ok {
			return d, true
		}
	}
	if raw, ok := solution[name]; ok {
		return model.AsDistribution(raw)
	}
	return model.Distribution{}, false
}

// meaningfulMode reports whether a mode is a real answer rather than a
// don't-know placeholder.
func meaningfulMode(mode string) bool {
	m := strings.ToLower(mode)
	return m != "" && !strings.Contains(m, "don't remember") && !strings.Contains(m, "unknown")
}

// paidMode reports whether a meaningful mode describes a paid cost.
func paidMode(mode string) bool {
	return !strings.Contains(strings.ToLower(mode), "free")
}

// syntheticDistribution builds the single-value placeholder distribution
// used for derived classifications.
func syntheticDistribution(value string) *model.Distribution {
	return &model.Distribution{
		Mode: value,
		Values: []model.DistributionValue{{
			Value:      value,
			Count:      SyntheticReportCount,
			Percentage: 100,
			Source:     DefaultDataSource,
		}},
		TotalReports: SyntheticReportCount,
		DataSource:   DefaultDataSource,
	}
}
