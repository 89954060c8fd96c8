package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nishad/biobank/internal/config"
	"github.com/nishad/biobank/internal/logging"
)

// Version info
var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

// Global flags
var (
	configPath string
	noColor    bool
	quiet      bool
	verbose    bool
	debug      bool
	logFormat  string
)

// Loaded by the root command before any subcommand runs.
var (
	cfg    *config.Config
	logger = zerolog.Nop()
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "biobank",
	Short: "Biobank inventory and demographics reports",
	Long: `biobank reconciles the sample log against the master inventory and builds
the biobank's standing reports:

  inventory     sample log with the number of vials remaining
  demographics  consent counts by ethnicity, race and sex
  diagnosis     specimens with vials remaining by diagnosis, sex and mean age

Inputs are .xlsx, .csv or .tsv files, local or on S3 (s3://bucket/key).`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	Example: `  # Vials remaining per draw
  biobank inventory --samples samples.xlsx --inventory inventory.xlsx

  # Consents since the start of the year, as CSV
  biobank demographics --consents consents.xlsx --since 2024-01-01 -f csv

  # Serve the reports over HTTP
  biobank server --port 8080`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $BIOBANK_CONFIG, ./biobank.yaml or the XDG config dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console|json)")

	rootCmd.AddCommand(newReportCmd(inventoryCmdSpec))
	rootCmd.AddCommand(newReportCmd(demographicsCmdSpec))
	rootCmd.AddCommand(newReportCmd(diagnosisCmdSpec))
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the configuration and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		configPath = config.GetConfigPath()
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	opts := logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		NoColor: noColor || os.Getenv("NO_COLOR") != "",
	}
	if logFormat != "" {
		opts.Format = logFormat
	}
	switch {
	case debug:
		opts.Level = "debug"
	case quiet:
		opts.Level = "error"
	}
	logger = logging.New(opts)
	printDebug("config: %s", configPath)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(exitCode(err))
	}
}
