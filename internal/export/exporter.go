package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

// Config holds the export configuration
type Config struct {
	OutputDir string
	Format    Format
	Overwrite bool
}

// Stats holds export statistics
type Stats struct {
	Path     string
	Rows     int
	Columns  int
	Bytes    int64
	Duration time.Duration
}

// Exporter writes report tables into an output directory.
type Exporter struct {
	cfg *Config
}

// NewExporter creates a new exporter instance
func NewExporter(cfg *Config) (*Exporter, error) {
	const op errors.Op = "export.new"

	if cfg.Format == "" {
		cfg.Format = FormatXLSX
	}
	if _, err := ParseFormat(string(cfg.Format)); err != nil {
		return nil, err
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, errors.E(op, errors.KindIO, err, "failed to create output directory")
	}
	return &Exporter{cfg: cfg}, nil
}

// Format returns the format every export is written in.
func (e *Exporter) Format() Format {
	return e.cfg.Format
}

// Export writes t under name. Output goes to a temporary file in the same
// directory and is renamed into place only once fully written, so a failed
// report never leaves a partial spreadsheet behind.
func (e *Exporter) Export(t *table.Table, name string) (*Stats, error) {
	const op errors.Op = "export.export"
	startTime := time.Now()

	finalPath := filepath.Join(e.cfg.OutputDir, name)
	if !e.cfg.Overwrite {
		if _, err := os.Stat(finalPath); err == nil {
			return nil, errors.E(op, errors.KindValidation,
				fmt.Sprintf("%s already exists (use --force to overwrite)", finalPath))
		}
	}

	tmp, err := os.CreateTemp(e.cfg.OutputDir, ".biobank-*.tmp")
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err, "failed to create temporary file")
	}
	tempPath := tmp.Name()
	defer os.Remove(tempPath)

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return nil, errors.E(op, errors.KindIO, err)
	}
	if err := Write(tmp, t, e.cfg.Format); err != nil {
		tmp.Close()
		return nil, errors.Wrap(op, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.E(op, errors.KindIO, err, "failed to flush output")
	}

	info, err := os.Stat(tempPath)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, errors.E(op, errors.KindIO, err, "failed to move output into place")
	}

	return &Stats{
		Path:     finalPath,
		Rows:     t.Len(),
		Columns:  len(t.Header),
		Bytes:    info.Size(),
		Duration: time.Since(startTime),
	}, nil
}
