// Package source loads the input tables of a report from wherever they live:
// local files, in-memory uploads or S3-compatible object storage.
package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/parser"
	"github.com/nishad/biobank/internal/table"
)

// Source loads the table registered under an input name ("samples",
// "inventory", "consents"). An input that was never supplied fails with a
// SourceUnavailable error; one that is present but unreadable fails with a
// Parse or InputSchema error.
type Source interface {
	Load(ctx context.Context, id string) (*table.Table, error)
}

// Sheets maps input names to the worksheet holding them.
type Sheets map[string]string

// DefaultSheets returns the worksheet names used by the lab's exports.
func DefaultSheets() Sheets {
	return Sheets{
		"samples":   "Sheet1",
		"inventory": "Main Biobank Inventory",
		"consents":  "Sheet1",
	}
}

// For returns the worksheet for an input, or "" for the first sheet.
func (s Sheets) For(id string) string {
	return s[id]
}

// FileSource reads inputs from local files.
type FileSource struct {
	paths  map[string]string
	sheets Sheets
}

// NewFileSource creates a source over the given input paths.
func NewFileSource(paths map[string]string, sheets Sheets) *FileSource {
	return &FileSource{paths: paths, sheets: sheets}
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context, id string) (*table.Table, error) {
	const op errors.Op = "source.file"

	path := strings.TrimSpace(s.paths[id])
	if path == "" {
		return nil, errors.SourceUnavailable(op, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	if _, err := os.Stat(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.E(op, errors.KindSourceUnavailable, err, "input \""+id+"\" not found")
		}
		return nil, errors.E(op, errors.KindIO, err)
	}

	t, err := parser.ParseFile(path, parser.Options{Sheet: s.sheets.For(id), Name: id})
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	return t, nil
}

// Upload is a file received over HTTP.
type Upload struct {
	Filename string
	Data     []byte
}

// UploadSource serves inputs from memory.
type UploadSource struct {
	mu      sync.RWMutex
	uploads map[string]Upload
	sheets  Sheets
}

// NewUploadSource creates an empty upload source.
func NewUploadSource(sheets Sheets) *UploadSource {
	return &UploadSource{uploads: make(map[string]Upload), sheets: sheets}
}

// Add registers an uploaded file under an input name.
func (s *UploadSource) Add(id, filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[id] = Upload{Filename: filename, Data: data}
}

// Inputs returns the names of the uploaded inputs, sorted.
func (s *UploadSource) Inputs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.uploads))
	for id := range s.uploads {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Load implements Source.
func (s *UploadSource) Load(ctx context.Context, id string) (*table.Table, error) {
	const op errors.Op = "source.upload"

	s.mu.RLock()
	up, ok := s.uploads[id]
	s.mu.RUnlock()
	if !ok || len(up.Data) == 0 {
		return nil, errors.SourceUnavailable(op, id)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}

	t, err := parser.Parse(bytes.NewReader(up.Data), up.Filename, parser.Options{Sheet: s.sheets.For(id), Name: id})
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	return t, nil
}
