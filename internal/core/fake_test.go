package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Destination backend. Each Open returns a new
// handle so tests can check that every handle was closed.
type fakeStore struct {
	mu      sync.Mutex
	tables  map[string]*fakeTable
	handles []*fakeDest
	creates int

	openErr  error
	writeErr error
}

type fakeTable struct {
	cols []ColumnDef
	rows [][]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]*fakeTable)}
}

func (s *fakeStore) Open(ctx context.Context) (Destination, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	d := &fakeDest{store: s}
	s.mu.Lock()
	s.handles = append(s.handles, d)
	s.mu.Unlock()
	return d, nil
}

func (s *fakeStore) allClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.handles {
		if !h.closed {
			return false
		}
	}
	return true
}

func (s *fakeStore) table(ref TableRef) *fakeTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[strings.ToLower(ref.String())]
}

type fakeDest struct {
	store  *fakeStore
	closed bool
}

var errFakeClosed = errors.New("destination closed")

func (d *fakeDest) Columns(ctx context.Context, ref TableRef) ([]ColumnDef, error) {
	if d.closed {
		return nil, errFakeClosed
	}
	t := d.store.table(ref)
	if t == nil {
		return nil, nil
	}
	return t.cols, nil
}

func (d *fakeDest) CreateTable(ctx context.Context, ref TableRef, cond ColumnCondition) error {
	if d.closed {
		return errFakeClosed
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	key := strings.ToLower(ref.String())
	if _, ok := d.store.tables[key]; !ok {
		d.store.tables[key] = &fakeTable{cols: append([]ColumnDef(nil), cond...)}
		d.store.creates++
	}
	return nil
}

func (d *fakeDest) WriteRows(ctx context.Context, ref TableRef, t *CleanTable, mode WriteMode) (int64, error) {
	if d.closed {
		return 0, errFakeClosed
	}
	if d.store.writeErr != nil {
		return 0, d.store.writeErr
	}
	tbl := d.store.table(ref)
	if mode == ModeReplace {
		tbl.rows = nil
	}
	tbl.rows = append(tbl.rows, t.Rows...)
	return int64(len(t.Rows)), nil
}

func (d *fakeDest) Preview(ctx context.Context, ref TableRef, limit int) (*CleanTable, error) {
	if d.closed {
		return nil, errFakeClosed
	}
	tbl := d.store.table(ref)
	if tbl == nil {
		return nil, errors.New("no such table")
	}
	return (&CleanTable{Columns: tbl.cols, Rows: tbl.rows}).Head(limit), nil
}

func (d *fakeDest) Materialize(ctx context.Context, ref TableRef, query string) (int64, error) {
	if d.closed {
		return 0, errFakeClosed
	}
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.tables[strings.ToLower(ref.String())] = &fakeTable{
		cols: []ColumnDef{{Name: "query", Type: MustColumnType("VARCHAR")}},
		rows: [][]any{{query}},
	}
	return 1, nil
}

func (d *fakeDest) Close() error {
	d.closed = true
	return nil
}

// recordingObserver captures everything a run reports.
type recordingObserver struct {
	mu       sync.Mutex
	lines    []string
	previews []*CleanTable
}

func (o *recordingObserver) LogLine(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, msg)
}

func (o *recordingObserver) ShowPreview(t *CleanTable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.previews = append(o.previews, t)
}

func (o *recordingObserver) contains(substr string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range o.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// writeFile writes content to a file in a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func mustCondition(t *testing.T, pairs ...string) ColumnCondition {
	t.Helper()
	cond, err := NewColumnCondition(pairs...)
	require.NoError(t, err)
	return cond
}
