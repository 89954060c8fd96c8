// Package classify maps free-text diagnoses onto the biobank's short
// diagnosis taxonomy.
package classify

import (
	"strings"

	"github.com/nishad/biobank/internal/models"
)

// Taxonomy labels.
const (
	AML       = "AML"
	CML       = "CML"
	MF        = "MF"
	MDS       = "MDS"
	MM        = "MM"
	ANBM      = "aNBM"
	PV        = "PV"
	ET        = "ET"
	CordBlood = "Cord Blood"
)

// Rule assigns Label when any Diagnosis term matches, or any Tissue term
// matches. When TissueRequired is set, the tissue must also contain one of
// those terms. All matching is case-insensitive substring matching.
type Rule struct {
	Label          string
	Diagnosis      []string
	Tissue         []string
	TissueRequired []string
}

// rules are evaluated in order and the first match wins.
//
// The aNBM terms are how non-malignant bone marrow controls have been labelled
// over the years, including the name of the collection they came from.
var rules = []Rule{
	{Label: AML, Diagnosis: []string{"AML", "acute myeloid leukemia"}},
	{Label: CML, Diagnosis: []string{"CML", "chronic myeloid leukemia"}},
	{Label: MF, Diagnosis: []string{"MF", "myelofibrosis"}},
	{Label: MDS, Diagnosis: []string{"MDS", "myelodysplastic syndrome"}},
	{Label: MM, Diagnosis: []string{"MM", "myeloma"}},
	{
		Label:          ANBM,
		Diagnosis:      []string{"AVN", "osteoarthritis", "aNBM", "normal", "Kulidjian"},
		TissueRequired: []string{"BM"},
	},
	{Label: PV, Diagnosis: []string{"PV", "polycythemia"}},
	{Label: ET, Diagnosis: []string{"ET", "essential", "thrombo"}},
	{Label: CordBlood, Diagnosis: []string{"CB", "cord blood"}, Tissue: []string{"CB"}},
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Labels returns the taxonomy in priority order.
func Labels() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Label
	}
	return out
}

// Matches reports whether the rule fires for the given diagnosis and tissue.
func (r Rule) Matches(diagnosis, tissue string) bool {
	if len(r.TissueRequired) > 0 && !containsAny(tissue, r.TissueRequired) {
		return false
	}
	return containsAny(diagnosis, r.Diagnosis) || containsAny(tissue, r.Tissue)
}

// Classify returns the label of the first matching rule, or the diagnosis
// unchanged when nothing matches.
func Classify(diagnosis, tissue string) string {
	for _, r := range rules {
		if r.Matches(diagnosis, tissue) {
			return r.Label
		}
	}
	return diagnosis
}

// ClassifyRows attaches a Simple_Diagnosis to each row. Callers filter out
// expended specimens first.
func ClassifyRows(rows []models.MergedInventoryRow) []models.ClassifiedRow {
	out := make([]models.ClassifiedRow, len(rows))
	for i, row := range rows {
		out[i] = models.ClassifiedRow{
			MergedInventoryRow: row,
			SimpleDiagnosis:    Classify(row.Diagnosis, row.Tissue),
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, term := range terms {
		if strings.Contains(s, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
