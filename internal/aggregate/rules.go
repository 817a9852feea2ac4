package aggregate

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultSourceRanks is the provenance quality ladder used to break merge
// ties. Higher wins; unknown sources rank with fallback.
var defaultSourceRanks = map[string]int{
	"research":           10,
	"studies":            9,
	"clinical_trials":    8,
	"medical_literature": 7,
	"consumer_reports":   6,
	"user_experiences":   5,
	"community_feedback": 4,
	"expert_opinions":    3,
	"general_knowledge":  2,
	"fallback":           1,
}

// defaultSynonymSets are the seed equivalence classes for common
// temporal/frequency phrasing. Any two members of a set are duplicates.
var defaultSynonymSets = [][]string{
	{"once daily", "daily", "1x daily", "once per day", "one time daily"},
	{"twice daily", "2x daily", "two times daily", "twice per day"},
	{"as needed", "when needed", "prn", "on demand"},
}

// defaultStandardTerms is the canonical-label allowlist: when exactly one of
// two merged labels is a standard term, it wins.
var defaultStandardTerms = []string{
	"Once daily",
	"Twice daily",
	"Three times daily",
	"Daily",
	"Weekly",
	"Monthly",
	"As needed",
	"Every other day",
}

// Rules is the deduplication rule table: equivalence classes, canonical
// terms, and the source quality ladder. The built-in table is a seed set;
// LoadRules extends it from a YAML file so new phrasing variants do not
// require a code change.
type Rules struct {
	SynonymSets   [][]string     `yaml:"synonym_sets"`
	StandardTerms []string       `yaml:"standard_terms"`
	SourceRanks   map[string]int `yaml:"source_ranks"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	return Rules{
		SynonymSets:   defaultSynonymSets,
		StandardTerms: defaultStandardTerms,
		SourceRanks:   defaultSourceRanks,
	}
}

// LoadRules reads a YAML rules file and merges it over the defaults:
// synonym sets and standard terms append, source ranks overlay.
func LoadRules(path string) (Rules, error) {
	base := DefaultRules()

	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "aggregate: read rules %s", path)
	}

	// The YAML has a top-level "dedup" key.
	var wrapper struct {
		Dedup Rules `yaml:"dedup"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return base, eris.Wrap(err, "aggregate: parse rules")
	}

	var merged Rules
	merged.SynonymSets = append(append([][]string{}, base.SynonymSets...), wrapper.Dedup.SynonymSets...)
	merged.StandardTerms = append(append([]string{}, base.StandardTerms...), wrapper.Dedup.StandardTerms...)
	merged.SourceRanks = make(map[string]int, len(base.SourceRanks)+len(wrapper.Dedup.SourceRanks))
	for k, v := range base.SourceRanks {
		merged.SourceRanks[k] = v
	}
	for k, v := range wrapper.Dedup.SourceRanks {
		merged.SourceRanks[strings.ToLower(k)] = v
	}
	return merged, nil
}

// sourceRank looks up a source tag on the quality ladder.
func (r Rules) sourceRank(source string) int {
	if rank, ok := r.SourceRanks[strings.ToLower(source)]; ok {
		return rank
	}
	return 1
}

// isStandardTerm reports whether label is on the canonical allowlist.
func (r Rules) isStandardTerm(label string) bool {
	for _, t := range r.StandardTerms {
		if t == label {
			return true
		}
	}
	return false
}

// synonymIndex maps each normalized synonym to its set index, or -1.
func (r Rules) synonymIndex(label string) int {
	key := foldLabel(label)
	for i, set := range r.SynonymSets {
		for _, member := range set {
			if foldLabel(member) == key {
				return i
			}
		}
	}
	return -1
}

// foldLabel normalizes a label for equivalence comparison.
func foldLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
