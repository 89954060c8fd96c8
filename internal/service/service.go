// Package service provides the report workflow shared by the CLI and the
// HTTP server: load the inputs a report needs, run it, and render or save
// the result.
package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/export"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/report"
	"github.com/nishad/biobank/internal/source"
	"github.com/nishad/biobank/internal/table"
)

// Request selects a report and its options.
type Request struct {
	Kind   report.Kind
	Since  *time.Time
	Format export.Format
}

// Response is a finished report.
type Response struct {
	RunID    string
	Result   *report.Result
	Format   export.Format
	Filename string
	Duration time.Duration

	// Data holds the encoded report for Render; Path is set by Save.
	Data []byte
	Path string
}

// ReportService runs reports.
type ReportService struct {
	norm    *normalize.Normalizer
	runner  *report.Runner
	logger  zerolog.Logger
	metrics *Metrics
	archive *export.Exporter
	now     func() time.Time
}

// Option configures a ReportService.
type Option func(*ReportService)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *ReportService) { s.logger = logger }
}

// WithNormalizer replaces the default normalizer, typically to add date layouts.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *ReportService) { s.norm = n }
}

// WithMetrics records every run in m.
func WithMetrics(m *Metrics) Option {
	return func(s *ReportService) { s.metrics = m }
}

// WithArchive keeps a copy of every rendered report in e.
func WithArchive(e *export.Exporter) Option {
	return func(s *ReportService) { s.archive = e }
}

// WithClock sets the clock used for run dates and filenames.
func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

// NewReportService creates a report service.
func NewReportService(opts ...Option) *ReportService {
	s := &ReportService{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = report.NewRunner(s.norm, s.logger)
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// Run loads the inputs the report needs from src and builds it.
func (s *ReportService) Run(ctx context.Context, src source.Source, req Request) (*Response, error) {
	const op errors.Op = "service.run"
	start := time.Now()

	def, ok := report.Lookup(string(req.Kind))
	if !ok {
		return nil, errors.E(op, errors.KindValidation, fmt.Sprintf("unknown report %q", req.Kind))
	}
	format := req.Format
	if format == "" {
		format = export.FormatXLSX
	}
	if _, err := export.ParseFormat(string(format)); err != nil {
		return nil, errors.Wrap(op, err)
	}

	resp := &Response{
		RunID:  uuid.NewString(),
		Format: format,
	}
	logger := s.logger.With().
		Str("run_id", resp.RunID).
		Str("report", string(def.Kind)).
		Logger()

	tables, err := s.load(ctx, src, def.Inputs)
	if err == nil {
		var res *report.Result
		res, err = s.runner.Run(report.Request{
			Kind:   def.Kind,
			Tables: tables,
			Since:  req.Since,
		})
		resp.Result = res
	}

	resp.Duration = time.Since(start)
	rows := 0
	if resp.Result != nil {
		rows = resp.Result.Table.Len()
	}
	s.metrics.observe(string(def.Kind), resp.Duration, rows, err)

	if err != nil {
		logger.Warn().Err(err).Str("kind", errors.GetKind(err).String()).Msg("report failed")
		return nil, errors.Wrap(op, err)
	}

	resp.Filename = export.Filename(s.now(), def.Name, format)
	logger.Info().
		Int("rows", rows).
		Dur("duration", resp.Duration).
		Msg("report built")
	return resp, nil
}

// Render runs the report and encodes it in memory. With an archive
// configured a copy is also written there; archive failures are logged and
// do not fail the request.
func (s *ReportService) Render(ctx context.Context, src source.Source, req Request) (*Response, error) {
	const op errors.Op = "service.render"

	resp, err := s.Run(ctx, src, req)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, resp.Result.Table, resp.Format); err != nil {
		return nil, errors.Wrap(op, err)
	}
	resp.Data = buf.Bytes()

	if s.archive != nil {
		name := export.Filename(s.now(), resp.Result.Name, s.archive.Format())
		stats, err := s.archive.Export(resp.Result.Table, name)
		if err != nil {
			s.logger.Warn().Err(err).Str("run_id", resp.RunID).Msg("failed to archive report")
		} else {
			s.logger.Debug().Str("run_id", resp.RunID).Str("path", stats.Path).Msg("report archived")
		}
	}
	return resp, nil
}

// Save runs the report and writes it through e. The response format is the
// exporter's.
func (s *ReportService) Save(ctx context.Context, src source.Source, req Request, e *export.Exporter) (*Response, *export.Stats, error) {
	req.Format = e.Format()
	resp, err := s.Run(ctx, src, req)
	if err != nil {
		return nil, nil, err
	}
	stats, err := e.Export(resp.Result.Table, resp.Filename)
	if err != nil {
		return nil, nil, errors.Wrap("service.save", err)
	}
	resp.Path = stats.Path
	return resp, stats, nil
}

// load fetches the named inputs concurrently. A missing input is not an
// error here; the runner reports it.
func (s *ReportService) load(ctx context.Context, src source.Source, inputs []string) (map[string]*table.Table, error) {
	var mu sync.Mutex
	tables := make(map[string]*table.Table, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range inputs {
		id := id
		g.Go(func() error {
			t, err := src.Load(gctx, id)
			if errors.IsKind(err, errors.KindSourceUnavailable) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			tables[id] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
