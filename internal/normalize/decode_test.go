package normalize

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

func TestSamples(t *testing.T) {
	sl, err := New().Samples(rawSamples(), ClinicalColumns...)
	require.NoError(t, err)
	require.Len(t, sl.Records, 2)

	assert.NotContains(t, sl.Header, "Vials_Remaining", "stale vial column must be dropped")
	assert.Equal(t, []string{"Subject", "Tissue", "Date_of_Sample", "Diagnosis", "Age", "Sex", "Notes"}, sl.Header)

	first := sl.Records[0]
	assert.Equal(t, "A1", first.Subject)
	assert.Equal(t, "BM", first.Tissue)
	assert.Equal(t, "2021-01-01", FormatDate(first.DateOfSample))
	assert.Equal(t, "AML", first.Diagnosis)
	assert.Equal(t, "M", first.Sex)
	require.NotNil(t, first.Age)
	assert.Equal(t, 63.0, *first.Age)
	assert.Equal(t, "first draw", first.Fields["Notes"])

	second := sl.Records[1]
	assert.Nil(t, second.Age)
	assert.Equal(t, "", second.Tissue)
}

func TestSamplesMissingColumns(t *testing.T) {
	raw := table.New("samples", "Subject", "Tissue", "Date of Sample")
	raw.Append("A1", "BM", "2021-01-01")

	_, err := New().Samples(raw)
	require.NoError(t, err, "clinical columns are only required on request")

	_, err = New().Samples(raw, ClinicalColumns...)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "Diagnosis, Age, Sex")
}

func TestSamplesLogsNonNumericAge(t *testing.T) {
	raw := rawSamples()
	raw.Rows[0][4] = "sixty"

	var buf bytes.Buffer
	sl, err := New(WithLogger(zerolog.New(&buf))).Samples(raw, ClinicalColumns...)
	require.NoError(t, err)
	assert.Nil(t, sl.Records[0].Age)
	assert.Equal(t, "sixty", sl.Records[0].Fields["Age"], "raw cell is kept for passthrough")
	assert.Contains(t, buf.String(), "values skipped")
}

func TestInventory(t *testing.T) {
	raw := table.New("inventory", "Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken")
	raw.Append("A 1", "BM", "2021-01-01", "", "")
	raw.Append("A1", "BM", "2021-01-01", "JD", "2021-06-01")

	recs, err := New().Inventory(raw)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "A1", recs[0].Subject)
	assert.True(t, recs[0].Remaining())
	assert.False(t, recs[1].Remaining())
}

func TestInventoryMissingColumn(t *testing.T) {
	raw := table.New("inventory", "Subject", "Tissue", "Date of Sample", "Taken By")
	_, err := New().Inventory(raw)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "Date_Taken")
}

func TestConsents(t *testing.T) {
	raw := table.New("consents", "Consent Date", "Ethnicity", "Race", "Sex")
	raw.Append("2022-05-01", "Hispanic", "White", "M")
	raw.Append("", "Non-hispanic", "Asian", "F")

	recs, err := New().Consents(raw, true)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].ConsentDate)
	assert.Equal(t, "2022-05-01", FormatDate(*recs[0].ConsentDate))
	assert.Nil(t, recs[1].ConsentDate)
	assert.Equal(t, "Asian", recs[1].Race)
}

func TestConsentsBadDate(t *testing.T) {
	raw := table.New("consents", "Consent_Date", "Ethnicity", "Race", "Sex")
	raw.Append("someday", "Hispanic", "White", "M")

	_, err := New().Consents(raw, true)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), `"someday"`)

	var buf bytes.Buffer
	recs, err := New(WithLogger(zerolog.New(&buf))).Consents(raw, false)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ConsentDate)
	assert.Equal(t, "Hispanic", recs[0].Ethnicity)
	assert.Contains(t, buf.String(), "values skipped")
}

func TestSamplesRejectMissingDate(t *testing.T) {
	raw := rawSamples()
	raw.Rows[0][2] = " "

	_, err := New().Samples(raw)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "row 2")
}

func TestSamplesRequireTissue(t *testing.T) {
	raw := table.New("samples", "Subject", "Date of Sample")
	raw.Append("A1", "2021-01-01")

	_, err := New().Samples(raw)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "Tissue")
}

func TestInventorySkipsUndatedVials(t *testing.T) {
	raw := table.New("inventory", "Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken")
	raw.Append("A1", "BM", "2021-01-01", "", "")
	raw.Append("A2", "BM", "", "", "")

	var buf bytes.Buffer
	recs, err := New(WithLogger(zerolog.New(&buf))).Inventory(raw)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A1", recs[0].Subject)
	assert.Contains(t, buf.String(), "normalize.inventory.date")
}
