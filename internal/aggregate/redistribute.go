package aggregate

import (
	"math"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// closureTolerance is how far a percentage sum may drift from 100 before
// redistribution rewrites it.
const closureTolerance = 0.01

// RedistributeToHundred returns a copy of values whose percentages sum to
// exactly 100. It is the single correction pass shared by Normalize and
// Deduplicate; compounding rounding drift makes it a correctness requirement,
// not polish.
//
// Three cases:
//   - sum already within tolerance of 100: returned unchanged (copied).
//   - sum is 0: split 100 evenly, spreading the 100 mod n remainder one
//     point at a time over the first entries in order.
//   - otherwise: scale each percentage by 100/sum, round to the nearest
//     integer, and dump any remaining difference on the largest entry.
func RedistributeToHundred(values []model.DistributionValue) []model.DistributionValue {
	out := make([]model.DistributionValue, len(values))
	copy(out, values)
	if len(out) == 0 {
		return out
	}

	sum := 0.0
	for _, v := range out {
		sum += v.Percentage
	}

	if math.Abs(sum-100) <= closureTolerance {
		return out
	}

	if sum == 0 {
		share := float64(100 / len(out))
		remainder := 100 % len(out)
		for i := range out {
			out[i].Percentage = share
			if i < remainder {
				out[i].Percentage++
			}
		}
		return out
	}

	scale := 100 / sum
	rounded := 0.0
	largest := 0
	for i := range out {
		out[i].Percentage = math.Round(out[i].Percentage * scale)
		rounded += out[i].Percentage
		if out[i].Percentage > out[largest].Percentage {
			largest = i
		}
	}
	if diff := 100 - rounded; diff != 0 {
		out[largest].Percentage += diff
	}
	return out
}
