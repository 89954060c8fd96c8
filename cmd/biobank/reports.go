package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/export"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/report"
	"github.com/nishad/biobank/internal/service"
	"github.com/nishad/biobank/internal/source"
	"github.com/nishad/biobank/internal/ui"
)

// reportCmdSpec describes one report subcommand.
type reportCmdSpec struct {
	kind    report.Kind
	example string
}

var (
	inventoryCmdSpec = reportCmdSpec{
		kind: report.Inventory,
		example: `  biobank inventory --samples samples.xlsx --inventory inventory.xlsx
  biobank inventory --samples s3://lab-exports/samples.xlsx --inventory s3://lab-exports/inventory.xlsx -o reports/`,
	}
	demographicsCmdSpec = reportCmdSpec{
		kind: report.Demographics,
		example: `  biobank demographics --consents consents.xlsx
  biobank demographics --consents consents.xlsx --since 2024-01-01 -f csv`,
	}
	diagnosisCmdSpec = reportCmdSpec{
		kind:    report.Diagnosis,
		example: `  biobank diagnosis --samples samples.xlsx --inventory inventory.xlsx`,
	}
)

// Report command flags, shared by every report subcommand.
var (
	reportInputs = map[string]*string{
		report.InputSamples:   new(string),
		report.InputInventory: new(string),
		report.InputConsents:  new(string),
	}
	reportSince  string
	reportOutput string
	reportFormat string
	reportForce  bool
)

var inputHelp = map[string]string{
	report.InputSamples:   "Sample log (path or s3://bucket/key)",
	report.InputInventory: "Master inventory (path or s3://bucket/key)",
	report.InputConsents:  "Consent log (path or s3://bucket/key)",
}

func newReportCmd(spec reportCmdSpec) *cobra.Command {
	def, ok := report.Lookup(string(spec.kind))
	if !ok {
		panic(fmt.Sprintf("no report definition for %q", spec.kind))
	}

	cmd := &cobra.Command{
		Use:     string(def.Kind),
		Short:   def.Description,
		Long:    fmt.Sprintf("%s.\n\nWrites \"<YYYY-MM-DD> %s.<format>\" into the output directory.", def.Description, def.Name),
		Example: spec.example,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, def)
		},
	}

	for _, in := range def.Inputs {
		cmd.Flags().StringVar(reportInputs[in], in, "", inputHelp[in])
	}
	if lo.Contains(def.Options, "since") {
		cmd.Flags().StringVar(&reportSince, "since", "", "Only count consents on or after this date (YYYY-MM-DD)")
	}
	cmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVarP(&reportFormat, "format", "f", "", "Output format (xlsx|csv|tsv|json)")
	cmd.Flags().BoolVar(&reportForce, "force", false, "Overwrite an existing report of the same name")
	return cmd
}

func runReport(cmd *cobra.Command, def report.Definition) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := service.Request{Kind: def.Kind}
	if reportSince != "" {
		since, err := time.Parse("2006-01-02", reportSince)
		if err != nil {
			return errors.E(errors.Op("cli.report"), errors.KindValidation,
				fmt.Sprintf("--since %q is not a YYYY-MM-DD date", reportSince))
		}
		req.Since = &since
	}

	exporter, err := newExporter()
	if err != nil {
		return err
	}

	refs := make(map[string]string, len(def.Inputs))
	for _, in := range def.Inputs {
		refs[in] = *reportInputs[in]
	}
	src, err := source.Resolve(ctx, refs, source.Options{
		Sheets: cfg.SheetNames(),
		S3:     cfg.S3,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	svc := service.NewReportService(
		service.WithLogger(logger),
		service.WithNormalizer(normalize.New(
			normalize.WithLogger(logger),
			normalize.WithDateLayouts(cfg.DateLayouts),
		)),
	)

	var (
		resp  *service.Response
		stats *export.Stats
	)
	build := func() (err error) {
		resp, stats, err = svc.Save(ctx, src, req, exporter)
		return err
	}
	if quiet {
		err = build()
	} else {
		err = ui.Run(os.Stderr, fmt.Sprintf("Building %s report", def.Kind), build)
	}
	if err != nil {
		if missing := missingInputs(def, refs); len(missing) > 0 {
			printWarning("%s needs %s", def.Kind, flagList(missing))
		}
		return err
	}

	printSuccess("Wrote %s (%d rows)", stats.Path, stats.Rows)
	if verbose {
		if s := resp.Result.Reconcile; s != nil {
			printInfo("  sample rows: %d, inventory rows: %d, available vials: %d", s.SampleRows, s.InventoryRows, s.AvailableVials)
			printInfo("  matched by tissue: %d, by draw: %d, unmatched: %d", s.MatchedByTissue, s.MatchedByDraw, s.Unmatched)
		}
		printInfo("  run %s in %s", resp.RunID, stats.Duration.Round(time.Millisecond))
	}
	return nil
}

func newExporter() (*export.Exporter, error) {
	format := reportFormat
	if format == "" {
		format = cfg.Output.Format
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	dir := reportOutput
	if dir == "" {
		dir = cfg.Output.Directory
	}
	return export.NewExporter(&export.Config{
		OutputDir: dir,
		Format:    f,
		Overwrite: reportForce || cfg.Output.Overwrite,
	})
}

func missingInputs(def report.Definition, refs map[string]string) []string {
	var missing []string
	for _, in := range def.Inputs {
		if strings.TrimSpace(refs[in]) == "" {
			missing = append(missing, in)
		}
	}
	return missing
}

func flagList(inputs []string) string {
	flags := make([]string, len(inputs))
	for i, in := range inputs {
		flags[i] = "--" + in
	}
	return strings.Join(flags, " and ")
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
