package aggregate

import "github.com/wwfm/aggregate-cli/internal/model"

// Normalize returns a corrected copy of a possibly-malformed or
// freshly-assembled Distribution: provenance defaults filled in, TotalReports
// defaulted to the synthetic convention when unknown, and percentages closed
// to exactly 100. The input is never mutated.
func Normalize(d model.Distribution) model.Distribution {
	out := d

	if out.DataSource == "" {
		out.DataSource = DefaultDataSource
	}
	if out.TotalReports <= 0 {
		out.TotalReports = SyntheticReportCount
	}

	values := make([]model.DistributionValue, len(d.Values))
	copy(values, d.Values)
	for i := range values {
		if values[i].Source == "" {
			values[i].Source = DefaultDataSource
		}
	}
	out.Values = RedistributeToHundred(values)

	return out
}
