// Package aggregate builds the summary tables used for regulatory reporting:
// consent demographics and specimen counts by diagnosis, sex and age.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
)

// Sex values summed into the diagnosis Total column.
const (
	Male   = "M"
	Female = "F"
)

type demoKey struct {
	ethnicity string
	race      string
}

// Demographics counts consents per (Ethnicity, Race) with one column per
// distinct Sex value. When since is set, consents dated before it, or with no
// consent date, are left out. Rows missing Ethnicity or Race are not
// tabulated and a missing Sex is not counted.
func Demographics(consents []models.ConsentRecord, since *time.Time) (*models.DemographicsTable, error) {
	const op errors.Op = "aggregate.demographics"
	if len(consents) == 0 {
		return nil, errors.EmptyInput(op, "consent log")
	}

	groups := make(map[demoKey]map[string]int)
	sexes := make(map[string]struct{})
	for _, c := range consents {
		if since != nil && (c.ConsentDate == nil || c.ConsentDate.Before(*since)) {
			continue
		}
		if c.Ethnicity == "" || c.Race == "" {
			continue
		}
		k := demoKey{ethnicity: c.Ethnicity, race: c.Race}
		counts, ok := groups[k]
		if !ok {
			counts = make(map[string]int)
			groups[k] = counts
		}
		if c.Sex != "" {
			counts[c.Sex]++
			sexes[c.Sex] = struct{}{}
		}
	}

	keys := lo.Keys(groups)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ethnicity != keys[j].ethnicity {
			return keys[i].ethnicity < keys[j].ethnicity
		}
		return keys[i].race < keys[j].race
	})

	out := &models.DemographicsTable{SexColumns: sortedKeys(sexes)}
	for _, k := range keys {
		out.Rows = append(out.Rows, models.DemographicsRow{
			Ethnicity: k.ethnicity,
			Race:      k.race,
			Counts:    fill(groups[k], out.SexColumns),
		})
	}
	return out, nil
}

type diagnosisGroup struct {
	ageSum float64
	ages   int
	counts map[string]int
}

// DiagnosisSexAge summarises classified rows per Simple_Diagnosis: mean age
// over rows with an age (NaN when none), a count per Sex value, and Total as
// the number of M and F rows only. Rows with no Simple_Diagnosis are not
// tabulated.
func DiagnosisSexAge(rows []models.ClassifiedRow) (*models.DiagnosisTable, error) {
	const op errors.Op = "aggregate.diagnosis"
	if len(rows) == 0 {
		return nil, errors.EmptyInput(op, "specimen table")
	}

	groups := make(map[string]*diagnosisGroup)
	sexes := make(map[string]struct{})
	for _, r := range rows {
		if r.SimpleDiagnosis == "" {
			continue
		}
		g, ok := groups[r.SimpleDiagnosis]
		if !ok {
			g = &diagnosisGroup{counts: make(map[string]int)}
			groups[r.SimpleDiagnosis] = g
		}
		if r.Age != nil {
			g.ageSum += *r.Age
			g.ages++
		}
		if r.Sex != "" {
			g.counts[r.Sex]++
			sexes[r.Sex] = struct{}{}
		}
	}

	out := &models.DiagnosisTable{SexColumns: sortedKeys(sexes)}
	for _, label := range sortedKeys(groups) {
		g := groups[label]
		avg := math.NaN()
		if g.ages > 0 {
			avg = g.ageSum / float64(g.ages)
		}
		out.Rows = append(out.Rows, models.DiagnosisRow{
			SimpleDiagnosis: label,
			Counts:          fill(g.counts, out.SexColumns),
			Total:           g.counts[Male] + g.counts[Female],
			AvgAge:          avg,
		})
	}
	return out, nil
}

// fill returns counts with an explicit zero for every column.
func fill(counts map[string]int, columns []string) map[string]int {
	out := make(map[string]int, len(columns))
	for _, c := range columns {
		out[c] = counts[c]
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
