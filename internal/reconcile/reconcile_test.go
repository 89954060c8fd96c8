package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/table"
)

var jan1 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func sample(subject, tissue string, date time.Time) models.SampleRecord {
	return models.SampleRecord{Subject: subject, Tissue: tissue, DateOfSample: date, Fields: map[string]string{}}
}

func vial(subject, tissue string, date time.Time, takenBy, dateTaken string) models.InventoryRecord {
	return models.InventoryRecord{Subject: subject, Tissue: tissue, DateOfSample: date, TakenBy: takenBy, DateTaken: dateTaken}
}

func sampleLog(recs ...models.SampleRecord) *models.SampleLog {
	return &models.SampleLog{Header: []string{"Subject", "Tissue", "Date_of_Sample"}, Records: recs}
}

func TestTwoUnusedVials(t *testing.T) {
	inv := []models.InventoryRecord{
		vial("A1", "BM", jan1, "", ""),
		vial("A1", "BM", jan1, "", ""),
	}
	res := Merge(sampleLog(sample("A1", "BM", jan1)), CountVials(inv))

	require.Len(t, res.Rows, 1)
	assert.Equal(t, 2, res.Rows[0].VialsRemaining)
	assert.Equal(t, civil.Date{Year: 2021, Month: 1, Day: 1}, res.Rows[0].SampleDate)
	assert.Equal(t, 1, res.Summary.MatchedByTissue)
}

func TestNoMatchingInventoryIsZero(t *testing.T) {
	inv := []models.InventoryRecord{vial("Z9", "BM", jan1, "", "")}
	res := Merge(sampleLog(sample("A1", "BM", jan1)), CountVials(inv))

	require.Len(t, res.Rows, 1)
	assert.Equal(t, 0, res.Rows[0].VialsRemaining)
	assert.Equal(t, 1, res.Summary.Unmatched)
}

func TestAvailabilityUsesOr(t *testing.T) {
	inv := []models.InventoryRecord{
		vial("A1", "BM", jan1, "", ""),
		vial("A1", "BM", jan1, "JD", ""),           // who, but not when
		vial("A1", "BM", jan1, "", "2021-05-05"),   // when, but not who
		vial("A1", "BM", jan1, "JD", "2021-05-05"), // gone
	}
	counts := CountVials(inv)
	require.Len(t, counts, 1)
	assert.Equal(t, 3, counts[0].Count)
}

func TestTissueQualifiedCountWins(t *testing.T) {
	inv := []models.InventoryRecord{
		vial("A1", "BM", jan1, "", ""),
		vial("A1", "PB", jan1, "", ""),
		vial("A1", "PB", jan1, "", ""),
	}
	res := Merge(sampleLog(
		sample("A1", "PB", jan1), // tissue match
		sample("A1", "", jan1),   // sample log missing tissue: whole draw
		sample("A1", "CB", jan1), // unknown tissue: whole draw
	), CountVials(inv))

	require.Len(t, res.Rows, 3)
	assert.Equal(t, 2, res.Rows[0].VialsRemaining)
	assert.Equal(t, 3, res.Rows[1].VialsRemaining)
	assert.Equal(t, 3, res.Rows[2].VialsRemaining)
	assert.Equal(t, "", res.Rows[1].Tissue, "sample tissue is the tissue of record")
	assert.Equal(t, "CB", res.Rows[2].Tissue)
	assert.Equal(t, 1, res.Summary.MatchedByTissue)
	assert.Equal(t, 2, res.Summary.MatchedByDraw)
}

func TestDateMustMatch(t *testing.T) {
	inv := []models.InventoryRecord{vial("A1", "BM", jan1.AddDate(0, 0, 1), "", "")}
	res := Merge(sampleLog(sample("A1", "BM", jan1)), CountVials(inv))
	assert.Equal(t, 0, res.Rows[0].VialsRemaining)
}

func TestNanTissueCleaned(t *testing.T) {
	inv := []models.InventoryRecord{vial("A1", "nan", jan1, "", "")}
	res := Merge(sampleLog(sample("A1", "nan", jan1)), CountVials(inv))
	assert.Equal(t, "", res.Rows[0].Tissue)
	assert.Equal(t, 1, res.Rows[0].VialsRemaining)
}

func TestCountVialsSorted(t *testing.T) {
	inv := []models.InventoryRecord{
		vial("B", "BM", jan1, "", ""),
		vial("A", "PB", jan1, "", ""),
		vial("A", "BM", jan1.AddDate(0, 1, 0), "", ""),
		vial("A", "BM", jan1, "", ""),
	}
	counts := CountVials(inv)
	require.Len(t, counts, 4)
	assert.Equal(t, "A", counts[0].Key.Subject)
	assert.Equal(t, "BM", counts[0].Key.Tissue)
	assert.Equal(t, 1, int(counts[0].Key.DateOfSample.Date.Month))
	assert.Equal(t, 2, int(counts[1].Key.DateOfSample.Date.Month))
	assert.Equal(t, "PB", counts[2].Key.Tissue)
	assert.Equal(t, "B", counts[3].Key.Subject)
}

// Property checks over random logs: counts are non-negative and sum to the
// number of available vials, and merging never adds or drops sample rows.
func TestRandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	subjects := []string{"A1", "A2", "B1"}
	tissues := []string{"BM", "PB", "", "CB"}
	pick := func(xs []string) string { return xs[rng.Intn(len(xs))] }
	day := func() time.Time { return jan1.AddDate(0, 0, rng.Intn(3)) }

	for iter := 0; iter < 50; iter++ {
		var inv []models.InventoryRecord
		available := 0
		for n := rng.Intn(40); n > 0; n-- {
			takenBy, dateTaken := "", ""
			if rng.Intn(2) == 0 {
				takenBy = "JD"
			}
			if rng.Intn(2) == 0 {
				dateTaken = "2022-01-01"
			}
			rec := vial(pick(subjects), pick(tissues), day(), takenBy, dateTaken)
			if takenBy == "" || dateTaken == "" {
				available++
			}
			inv = append(inv, rec)
		}
		var samples []models.SampleRecord
		for n := rng.Intn(20); n > 0; n-- {
			samples = append(samples, sample(pick(subjects), pick(tissues), day()))
		}

		counts := CountVials(inv)
		sum := 0
		for _, c := range counts {
			require.Positive(t, c.Count)
			sum += c.Count
		}
		require.Equal(t, available, sum, "iteration %d", iter)

		res := Merge(sampleLog(samples...), counts)
		require.Len(t, res.Rows, len(samples), "iteration %d", iter)
		for i, row := range res.Rows {
			require.GreaterOrEqual(t, row.VialsRemaining, 0)
			require.Equal(t, samples[i].Subject, row.Subject, "row order must follow the sample log")
		}
		s := res.Summary
		require.Equal(t, len(samples), s.MatchedByTissue+s.MatchedByDraw+s.Unmatched)
	}
}

func TestReconcileTables(t *testing.T) {
	samples := table.New("samples", "Subject", "Tissue", "Date of Sample", "Diagnosis", "Vials Remaining")
	samples.Append("A 1", "BM", "2021-01-01", "AML", "99")
	samples.Append("A2", "", "2021-01-02", "MDS", "")

	inv := table.New("inventory", "Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken")
	inv.Append("A1", "BM", "1/1/2021", "", "")
	inv.Append("A1 ", "BM", "2021-01-01", "", "")
	inv.Append("A1", "BM", "2021-01-01", "JD", "2021-02-02")

	res, err := Reconcile(normalize.New(), samples, inv)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 2, res.Rows[0].VialsRemaining)
	assert.Equal(t, 0, res.Rows[1].VialsRemaining)
	assert.NotContains(t, res.Header, "Vials_Remaining")
	assert.Equal(t, 3, res.Summary.InventoryRows)
	assert.Equal(t, 2, res.Summary.AvailableVials)
}

func TestReconcileMissingKeys(t *testing.T) {
	good := table.New("inventory", "Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken")
	tests := []struct {
		name    string
		samples *table.Table
		inv     *table.Table
		missing string
	}{
		{"samples without subject", table.New("samples", "Tissue", "Date of Sample"), good, "Subject"},
		{"samples without date", table.New("samples", "Subject", "Tissue"), good, "Date_of_Sample"},
		{"inventory without date", table.New("samples", "Subject", "Tissue", "Date of Sample"),
			table.New("inventory", "Subject", "Tissue", "Taken By", "Date Taken"), "Date_of_Sample"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(normalize.New(), tt.samples, tt.inv)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInputSchema), fmt.Sprint(err))
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}
