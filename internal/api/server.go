// Package api serves the biobank reports over HTTP: upload the input
// spreadsheets, download the finished report.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nishad/biobank/internal/report"
	"github.com/nishad/biobank/internal/service"
	"github.com/nishad/biobank/internal/source"
)

// Version is reported by the root endpoint.
var Version = "dev"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	server    *http.Server
	service   *service.ReportService
	sheets    source.Sheets
	gatherer  prometheus.Gatherer
	logger    zerolog.Logger
	maxUpload int64
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	EnableCORS  bool
	MaxUploadMB int64
	Sheets      source.Sheets

	// Service runs the reports; nil builds one with default settings.
	Service *service.ReportService
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// NewServer creates a new API server instance
func NewServer(cfg *Config) (*Server, error) {
	if cfg.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("max upload size must be positive, got %d MB", cfg.MaxUploadMB)
	}

	svc := cfg.Service
	if svc == nil {
		svc = service.NewReportService(service.WithLogger(cfg.Logger))
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	sheets := cfg.Sheets
	if sheets == nil {
		sheets = source.DefaultSheets()
	}

	s := &Server{
		router:    mux.NewRouter(),
		service:   svc,
		sheets:    sheets,
		gatherer:  gatherer,
		logger:    cfg.Logger,
		maxUpload: cfg.MaxUploadMB << 20,
	}

	// Setup routes
	s.setupRoutes()

	// Setup middleware, outermost first
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Use(recoveryMiddleware(s.logger))
	if cfg.EnableCORS {
		s.router.Use(corsMiddleware)
	}
	s.router.Use(jsonMiddleware)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Reports
	api.HandleFunc("/reports", s.handleListReports).Methods("GET")
	api.HandleFunc("/reports/{report}", s.handleRunReport).Methods("POST", "OPTIONS")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// Root endpoint
	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting report server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down report server")
	return s.server.Shutdown(ctx)
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error     bool   `json:"error"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, status, errorBody{
		Error:     true,
		Code:      code,
		Message:   message,
		RequestID: RequestID(r.Context()),
	})
}

// handleRoot returns API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "biobank",
		"version":     Version,
		"description": "Biobank inventory and demographics reports",
		"reports":     report.Kinds(),
		"endpoints": map[string]string{
			"reports": "/api/v1/reports",
			"run":     "/api/v1/reports/{report}",
			"health":  "/api/v1/health",
			"metrics": "/metrics",
		},
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleHealth returns health status. The server keeps no state, so being
// able to answer is enough.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
