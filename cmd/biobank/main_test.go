package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/parser"
)

// execute runs the root command with fresh flag state and a config file
// that does not exist, so defaults apply.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	for _, v := range reportInputs {
		*v = ""
	}
	reportSince, reportOutput, reportFormat, reportForce = "", "", "", false
	configPath, quiet, verbose, debug, logFormat = "", false, false, false, ""

	cfgFile := filepath.Join(t.TempDir(), "biobank.yaml")
	rootCmd.SetArgs(append([]string{"--config", cfgFile, "-q"}, args...))
	return rootCmd.Execute()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const (
	samplesCSV = "Subject,Tissue,Date of Sample,Diagnosis,Age,Sex\n" +
		"A1,BM,2021-01-01,AML,60,M\n" +
		"A2,BM,2021-01-02,normal,40,F\n"
	inventoryCSV = "Subject,Tissue,Date of Sample,Taken By,Date Taken\n" +
		"A1,BM,1/1/2021,,\n" +
		"A2,BM,2021-01-02,JD,2021-02-01\n"
)

func TestInventoryCommand(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	err := execute(t, "inventory",
		"--samples", writeFile(t, dir, "samples.csv", samplesCSV),
		"--inventory", writeFile(t, dir, "inventory.csv", inventoryCSV),
		"-o", out)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(out, "* Inventory.xlsx"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got, err := parser.ParseFile(matches[0], parser.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "0"}, got.Column("Vials_Remaining"))

	// A second run the same day needs --force.
	err = execute(t, "inventory",
		"--samples", filepath.Join(dir, "samples.csv"),
		"--inventory", filepath.Join(dir, "inventory.csv"),
		"-o", out)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	err = execute(t, "inventory",
		"--samples", filepath.Join(dir, "samples.csv"),
		"--inventory", filepath.Join(dir, "inventory.csv"),
		"-o", out, "--force", "-f", "csv")
	require.NoError(t, err)
	matches, _ = filepath.Glob(filepath.Join(out, "* Inventory.csv"))
	assert.Len(t, matches, 1)
}

func TestMissingInputExitsWithTwo(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "diagnosis",
		"--samples", writeFile(t, dir, "samples.csv", samplesCSV),
		"-o", dir)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindSourceUnavailable), "got %v", err)
	assert.Equal(t, 2, exitCode(err))

	err = execute(t, "diagnosis",
		"--samples", filepath.Join(dir, "samples.csv"),
		"--inventory", filepath.Join(dir, "nope.xlsx"),
		"-o", dir)
	assert.Equal(t, 2, exitCode(err))
}

func TestDemographicsRejectsBadSince(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "demographics",
		"--consents", writeFile(t, dir, "consents.csv", "Consent Date,Ethnicity,Race,Sex\n2021-01-01,Hispanic,White,F\n"),
		"--since", "last year",
		"-o", dir)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Equal(t, 1, exitCode(err))
}

func TestReportCommandsExposeTheirInputs(t *testing.T) {
	tests := []struct {
		cmd     string
		present []string
		absent  []string
	}{
		{"inventory", []string{"samples", "inventory"}, []string{"consents", "since"}},
		{"diagnosis", []string{"samples", "inventory"}, []string{"consents", "since"}},
		{"demographics", []string{"consents", "since"}, []string{"samples", "inventory"}},
	}
	for _, tt := range tests {
		cmd, _, err := rootCmd.Find([]string{tt.cmd})
		require.NoError(t, err)
		for _, name := range tt.present {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%s --%s", tt.cmd, name)
		}
		for _, name := range tt.absent {
			assert.Nil(t, cmd.Flags().Lookup(name), "%s --%s", tt.cmd, name)
		}
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(errors.SourceUnavailable("test", "samples")))
	assert.Equal(t, 1, exitCode(errors.EmptyInput("test", "consent log")))
	assert.Equal(t, 1, exitCode(os.ErrNotExist))
}
