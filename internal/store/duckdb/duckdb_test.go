package duckdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/planload/internal/core"
)

var orders = core.TableRef{Schema: "plan", Name: "orders"}

func openTemp(t *testing.T) (string, *Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "plan.duckdb")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return path, s
}

func ordersCondition(t *testing.T) core.ColumnCondition {
	cond, err := core.NewColumnCondition(
		"item", "VARCHAR",
		"quantity", "DOUBLE",
		"units", "INTEGER",
		"price", "DECIMAL(18,2)",
		"active", "BOOLEAN",
		"ordered", "DATE",
		"seen", "TIMESTAMP",
	)
	require.NoError(t, err)
	return cond
}

func TestStore_CreateAndInspect(t *testing.T) {
	_, s := openTemp(t)
	ctx := context.Background()
	cond := ordersCondition(t)

	cols, err := s.Columns(ctx, orders)
	require.NoError(t, err)
	assert.Nil(t, cols, "absent table")

	require.NoError(t, s.CreateTable(ctx, orders, cond))
	require.NoError(t, s.CreateTable(ctx, orders, cond), "idempotent")

	cols, err = s.Columns(ctx, orders)
	require.NoError(t, err)
	require.Len(t, cols, len(cond))
	for i := range cond {
		assert.Equal(t, cond[i].Name, cols[i].Name)
		assert.True(t, cond[i].Type.Equal(cols[i].Type), "%s: %s vs %s", cond[i].Name, cond[i].Type, cols[i].Type)
	}
}

func TestStore_WriteAndPreview(t *testing.T) {
	_, s := openTemp(t)
	ctx := context.Background()
	cond := ordersCondition(t)
	require.NoError(t, s.CreateTable(ctx, orders, cond))

	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)
	clean := &core.CleanTable{
		Columns: cond,
		Rows: [][]any{
			{"widget", 3.5, int64(2), 12.25, true, day, seen},
			{"gadget", nil, nil, nil, nil, nil, nil},
		},
	}

	n, err := s.WriteRows(ctx, orders, clean, core.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.WriteRows(ctx, orders, clean, core.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	preview, err := s.Preview(ctx, orders, 10)
	require.NoError(t, err)
	require.Len(t, preview.Rows, 2, "replace leaves one copy")

	first := preview.Rows[0]
	assert.Equal(t, "widget", first[0])
	assert.Equal(t, 3.5, first[1])
	assert.Equal(t, int64(2), first[2])
	assert.InDelta(t, 12.25, first[3], 0.001)
	assert.Equal(t, true, first[4])
	assert.True(t, day.Equal(first[5].(time.Time)))
	assert.True(t, seen.Equal(first[6].(time.Time)))

	assert.Equal(t, []any{"gadget", nil, nil, nil, nil, nil, nil}, preview.Rows[1])

	_, err = s.WriteRows(ctx, orders, clean, core.ModeAppend)
	require.NoError(t, err)
	preview, err = s.Preview(ctx, orders, 10)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 4)

	preview, err = s.Preview(ctx, orders, 1)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 1)
}

func TestStore_Materialize(t *testing.T) {
	_, s := openTemp(t)
	ctx := context.Background()
	cond := ordersCondition(t)
	require.NoError(t, s.CreateTable(ctx, orders, cond))
	_, err := s.WriteRows(ctx, orders, &core.CleanTable{
		Columns: cond,
		Rows: [][]any{
			{"a", 1.0, nil, nil, nil, nil, nil},
			{"b", 2.0, nil, nil, nil, nil, nil},
		},
	}, core.ModeReplace)
	require.NoError(t, err)

	final := core.TableRef{Schema: "report", Name: "orders_final"}
	query := core.DerivedQuery(core.DerivedTable{
		SQL:         `SELECT item, quantity * 2 AS doubled FROM plan.orders`,
		StampColumn: "updated_at",
	})

	for i := 0; i < 2; i++ {
		n, err := s.Materialize(ctx, final, query)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	}

	cols, err := s.Columns(ctx, final)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "updated_at", cols[2].Name)
	assert.Equal(t, core.KindTimestamp, cols[2].Type.Kind)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	_, s := openTemp(t)

	assert.False(t, s.Closed())
	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.NoError(t, s.Close())
}

func TestLoaderAgainstDuckDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.duckdb")
	cond := ordersCondition(t)[:2]
	clean := &core.CleanTable{Columns: cond, Rows: [][]any{{"widget", 3.0}, {"gadget", nil}}}

	var handles []*Store
	open := func(ctx context.Context) (core.Destination, error) {
		s, err := Open(ctx, path)
		if err != nil {
			return nil, err
		}
		handles = append(handles, s)
		return s, nil
	}

	loader := &core.Loader{}
	first, err := loader.Load(context.Background(), open, orders, clean, cond)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), open, orders, clean, cond)
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, int64(2), second.Rows)
	for _, h := range handles {
		assert.True(t, h.Closed())
	}

	changed, err := core.NewColumnCondition("item", "VARCHAR", "quantity", "INTEGER")
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), open, orders, &core.CleanTable{Columns: changed}, changed)
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	assert.True(t, handles[len(handles)-1].Closed(), "closed after failure")
}

func TestLoaderAgainstDuckDB_OutOfRangeNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.duckdb")
	ref := core.TableRef{Schema: "plan", Name: "amounts"}

	cond, err := core.NewColumnCondition("id", "INTEGER", "price", "DECIMAL(5,2)", "ratio", "FLOAT", "big", "HUGEINT")
	require.NoError(t, err)
	raw := &core.Table{
		Columns: []string{"id", "price", "ratio", "big"},
		Rows: [][]string{
			{"1", "12.5", "0.25", "98765432109876543210"},
			{"2", "123456", "1e300", "1e40"},
		},
	}

	clean, report, err := core.Transform(raw, cond, core.TransformOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalCoerced())

	res, err := (&core.Loader{}).Load(context.Background(), Opener(path), ref, clean, cond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Preview(context.Background(), ref, 10)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, int64(1), got.Rows[0][0])
	assert.InDelta(t, 12.5, got.Rows[0][1], 1e-9)
	assert.Equal(t, "98765432109876543210", fmt.Sprint(got.Rows[0][3]))
	assert.Equal(t, []any{int64(2), nil, nil, nil}, got.Rows[1])
}

func TestIsLockError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "driver connect error",
			err:  errors.New(`database/sql/driver: could not connect to database: IO Error: Could not set lock on file "/data/plan.duckdb": Conflicting lock is held`),
			want: true,
		},
		{
			name: "typed io error",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeIO, Msg: `IO Error: Could not set lock on file "plan.duckdb"`},
			want: true,
		},
		{
			name: "lock text inside a path",
			err:  errors.New(`database/sql/driver: could not connect to database: IO Error: Cannot open file "/tmp/IO Error: Could not set lock on file/plan.duckdb"`),
			want: false,
		},
		{
			name: "other io error",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeIO, Msg: "IO Error: Permission denied"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLockError(tt.err))
		})
	}
}

func TestOpener_BadPath(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened as a database file.
	_, err := Opener(dir)(context.Background())
	assert.ErrorIs(t, err, core.ErrConnection)
}
