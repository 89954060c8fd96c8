package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nishad/biobank/internal/api"
	"github.com/nishad/biobank/internal/export"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/service"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the report server",
	Long: `Start an HTTP server that builds reports from uploaded spreadsheets.

The server provides:
- POST /api/v1/reports/{report}: multipart upload, report download
- GET /api/v1/reports: available reports and their inputs
- GET /api/v1/health and GET /metrics (Prometheus)`,
	Example: `  biobank server
  biobank server --port 3000
  curl -F samples=@samples.xlsx -F inventory=@inventory.xlsx -OJ localhost:8080/api/v1/reports/inventory`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

var (
	serverPort       int
	serverHost       string
	serverEnableCORS bool
	serverArchive    bool
)

func init() {
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Port to listen on (default from config)")
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Host to bind to (default from config)")
	serverCmd.Flags().BoolVar(&serverEnableCORS, "enable-cors", true, "Enable CORS for web access")
	serverCmd.Flags().BoolVar(&serverArchive, "archive", false, "Keep a copy of every report served")
}

func runServer(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = serverPort
	}
	if flags.Changed("host") {
		cfg.Server.Host = serverHost
	}
	if flags.Changed("enable-cors") {
		cfg.Server.EnableCORS = serverEnableCORS
	}
	if flags.Changed("archive") {
		cfg.Server.Archive = serverArchive
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(service.NewMetrics(reg)),
		service.WithNormalizer(normalize.New(
			normalize.WithLogger(logger),
			normalize.WithDateLayouts(cfg.DateLayouts),
		)),
	}
	if cfg.Server.Archive {
		format, err := export.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}
		archive, err := export.NewExporter(&export.Config{
			OutputDir: cfg.Server.ArchiveDir,
			Format:    format,
			Overwrite: true,
		})
		if err != nil {
			return err
		}
		opts = append(opts, service.WithArchive(archive))
		printInfo("Archiving reports to %s", cfg.Server.ArchiveDir)
	}

	server, err := api.NewServer(&api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		EnableCORS:  cfg.Server.EnableCORS,
		MaxUploadMB: cfg.Server.MaxUploadMB,
		Sheets:      cfg.SheetNames(),
		Service:     service.NewReportService(opts...),
		Gatherer:    reg,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		printSuccess("Server ready at http://%s", server.Addr())
		if err := server.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt or server error
	select {
	case <-sigChan:
		printInfo("Shutting down server...")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	printSuccess("Server stopped gracefully")
	return nil
}
