package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// Canonical column names, as produced by the normalizer.
const (
	ColSubject         = "Subject"
	ColTissue          = "Tissue"
	ColDateOfSample    = "Date_of_Sample"
	ColDiagnosis       = "Diagnosis"
	ColAge             = "Age"
	ColSex             = "Sex"
	ColVialsRemaining  = "Vials_Remaining"
	ColTakenBy         = "Taken_By"
	ColDateTaken       = "Date_Taken"
	ColConsentDate     = "Consent_Date"
	ColEthnicity       = "Ethnicity"
	ColRace            = "Race"
	ColSimpleDiagnosis = "Simple_Diagnosis"
	ColTotal           = "Total"
	ColAvgAge          = "Avg Age"
)

// SampleRecord is one row of the sample (draw) log.
type SampleRecord struct {
	Subject      string
	Tissue       string
	DateOfSample time.Time
	Diagnosis    string
	Age          *float64 // nil when missing or not numeric
	Sex          string

	// Fields holds the raw cell of every other column, keyed by canonical
	// column name, so reports can pass clinical columns through untouched.
	Fields map[string]string
}

// SampleLog is a decoded sample log together with its normalized header.
type SampleLog struct {
	Header  []string
	Records []SampleRecord
}

// InventoryRecord is one physical vial in the master inventory.
type InventoryRecord struct {
	Subject      string
	Tissue       string
	DateOfSample time.Time
	TakenBy      string // empty when unused
	DateTaken    string // empty when unused
}

// Remaining reports whether the vial still counts as available: it is only
// gone once both who took it and when are recorded.
func (r InventoryRecord) Remaining() bool {
	return r.TakenBy == "" || r.DateTaken == ""
}

// VialKey identifies a merge group.
type VialKey struct {
	Subject      string
	Tissue       string
	DateOfSample civil.DateTime
}

// DrawKey identifies a draw regardless of tissue.
type DrawKey struct {
	Subject      string
	DateOfSample civil.DateTime
}

// Draw returns the tissue-independent part of the key.
func (k VialKey) Draw() DrawKey {
	return DrawKey{Subject: k.Subject, DateOfSample: k.DateOfSample}
}

// VialCount is the number of remaining vials in a merge group.
type VialCount struct {
	Key   VialKey
	Count int
}

// MergedInventoryRow is a sample row with its reconciled vial count.
type MergedInventoryRow struct {
	SampleRecord
	SampleDate     civil.Date
	VialsRemaining int
}

// ClassifiedRow is a merged row with its normalized diagnosis.
type ClassifiedRow struct {
	MergedInventoryRow
	SimpleDiagnosis string
}

// ConsentRecord is one row of the consent log.
type ConsentRecord struct {
	ConsentDate *time.Time // nil when missing
	Ethnicity   string
	Race        string
	Sex         string
}

// DemographicsTable counts consents per (Ethnicity, Race) with one column per
// distinct Sex value.
type DemographicsTable struct {
	SexColumns []string
	Rows       []DemographicsRow
}

// DemographicsRow is one (Ethnicity, Race) group.
type DemographicsRow struct {
	Ethnicity string
	Race      string
	Counts    map[string]int
}

// DiagnosisTable summarises specimens per normalized diagnosis.
type DiagnosisTable struct {
	SexColumns []string
	Rows       []DiagnosisRow
}

// DiagnosisRow is one Simple_Diagnosis group. AvgAge is NaN when no row in
// the group has an age.
type DiagnosisRow struct {
	SimpleDiagnosis string
	Counts          map[string]int
	Total           int
	AvgAge          float64
}
