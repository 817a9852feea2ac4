package aggregate

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/wwfm/aggregate-cli/internal/model"
)

// ErrInvalidDistribution marks a distribution whose Values slice is missing.
// The deduplicator only ever receives aggregator or normalizer output, so
// hitting this is an upstream contract violation, not bad user data.
var ErrInvalidDistribution = eris.New("aggregate: invalid distribution shape: missing values")

// EquivalenceRule reports whether two labels mean the same real-world answer.
type EquivalenceRule func(a, b string) bool

// Deduper collapses distribution entries that are the same answer under
// different phrasing, using an ordered list of equivalence rules.
type Deduper struct {
	rules Rules
	eq    []EquivalenceRule
}

// NewDeduper builds a Deduper from a rule table. Extra equivalence rules run
// after the built-in ones (exact, case/whitespace fold, synonym set).
func NewDeduper(rules Rules, extra ...EquivalenceRule) *Deduper {
	d := &Deduper{rules: rules}
	d.eq = append(d.eq,
		func(a, b string) bool { return a == b },
		func(a, b string) bool { return foldLabel(a) == foldLabel(b) },
		func(a, b string) bool {
			i := rules.synonymIndex(a)
			return i >= 0 && i == rules.synonymIndex(b)
		},
	)
	d.eq = append(d.eq, extra...)
	return d
}

// Deduplicate collapses semantically duplicate entries in d and closes the
// surviving percentages to 100. Merging keeps the summed count and
// percentage, the better-ranked source, and a canonical label. The input is
// never mutated.
func Deduplicate(d model.Distribution) (model.Distribution, error) {
	return NewDeduper(DefaultRules()).Deduplicate(d)
}

// Deduplicate is the instance form of the package-level Deduplicate.
func (dd *Deduper) Deduplicate(d model.Distribution) (model.Distribution, error) {
	if d.Values == nil {
		return model.Distribution{}, ErrInvalidDistribution
	}
	if len(d.Values) <= 1 {
		return d, nil
	}

	var merged []model.DistributionValue
	for _, incoming := range d.Values {
		idx := -1
		for i, kept := range merged {
			if dd.equivalent(kept.Value, incoming.Value) {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, incoming)
			continue
		}
		merged[idx] = dd.merge(merged[idx], incoming)
	}

	out := d
	out.Values = RedistributeToHundred(merged)
	return out, nil
}

// equivalent runs the ordered rule list.
func (dd *Deduper) equivalent(a, b string) bool {
	for _, rule := range dd.eq {
		if rule(a, b) {
			return true
		}
	}
	return false
}

// merge combines a duplicate pair: counts and percentages sum, the
// better-ranked source wins, and the canonical label is chosen by case
// preference, then standard-term preference, then first-seen.
func (dd *Deduper) merge(kept, incoming model.DistributionValue) model.DistributionValue {
	out := kept
	out.Count += incoming.Count
	out.Percentage += incoming.Percentage

	if dd.rules.sourceRank(incoming.Source) > dd.rules.sourceRank(kept.Source) {
		out.Source = incoming.Source
	}

	out.Value = dd.canonicalLabel(kept.Value, incoming.Value)
	return out
}

func (dd *Deduper) canonicalLabel(first, second string) string {
	if first == second {
		return first
	}
	if strings.EqualFold(first, second) {
		// Same word, different casing: prefer the capitalized form.
		if startsLower(first) && !startsLower(second) {
			return second
		}
		return first
	}
	firstStd := dd.rules.isStandardTerm(first)
	secondStd := dd.rules.isStandardTerm(second)
	if secondStd && !firstStd {
		return second
	}
	return first
}

func startsLower(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}
