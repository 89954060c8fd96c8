package testutil

import (
	"context"
	"sync"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

// MockSource is an in-memory table source that records every load.
type MockSource struct {
	mu     sync.Mutex
	tables map[string]*table.Table
	loads  []string

	// Configurable return values
	LoadErr error
}

// NewMockSource creates a source serving the given tables by input name.
func NewMockSource(tables map[string]*table.Table) *MockSource {
	return &MockSource{tables: tables}
}

// Load returns a copy of the table registered under id. Unknown ids fail
// with a SourceUnavailable error.
func (m *MockSource) Load(ctx context.Context, id string) (*table.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads = append(m.loads, id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	t, ok := m.tables[id]
	if !ok {
		return nil, errors.SourceUnavailable("mock.load", id)
	}
	return t.Clone(), nil
}

// Has reports whether a table is registered under id.
func (m *MockSource) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[id]
	return ok
}

// Loads returns the ids requested so far.
func (m *MockSource) Loads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.loads))
	copy(out, m.loads)
	return out
}
