// Package duckdb implements core.Destination on an embedded DuckDB file.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/store"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ""

// Store is an open DuckDB database.
type Store struct {
	db     *sqlx.DB
	path   string
	closed atomic.Bool
}

// Open opens (creating if needed) the database file at path.
// Failures wrap core.ErrConnection.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%w: create directory for %s: %w", core.ErrConnection, path, err)
			}
		}
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		if isLockError(err) {
			return nil, fmt.Errorf("%w: %w: open duckdb %s: %w", core.ErrConnection, core.ErrStoreLocked, path, err)
		}
		return nil, fmt.Errorf("%w: open duckdb %s: %w", core.ErrConnection, path, err)
	}

	db := sqlx.NewDb(sql.OpenDB(connector), "duckdb")
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping duckdb %s: %w", core.ErrConnection, path, err)
	}

	return &Store{db: db, path: path}, nil
}

// lockErrorPrefix starts the message DuckDB returns when another process
// holds the file. The driver flattens the typed *duckdb.Error into text at
// connect time, so the prefix is all that is left to match.
const lockErrorPrefix = "IO Error: Could not set lock on file"

func isLockError(err error) bool {
	var dErr *duckdb.Error
	if errors.As(err, &dErr) {
		return dErr.Type == duckdb.ErrorTypeIO && strings.HasPrefix(dErr.Msg, lockErrorPrefix)
	}
	return strings.Contains(err.Error(), ": "+lockErrorPrefix)
}

// Opener returns a core.Opener that opens path for each operation.
func Opener(path string) core.Opener {
	return func(ctx context.Context) (core.Destination, error) {
		s, err := Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

const columnsQuery = `
SELECT column_name, data_type, numeric_precision, numeric_scale
FROM information_schema.columns
WHERE lower(table_schema) = lower(?) AND lower(table_name) = lower(?)
ORDER BY ordinal_position`

// Columns returns the table's columns, or nil if it does not exist.
func (s *Store) Columns(ctx context.Context, ref core.TableRef) ([]core.ColumnDef, error) {
	var infos []store.ColumnInfo
	if err := s.db.SelectContext(ctx, &infos, columnsQuery, schemaOf(ref), ref.Name); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", ref, err)
	}
	return store.ColumnDefs(infos), nil
}

// CreateTable creates the schema and table if absent.
func (s *Store) CreateTable(ctx context.Context, ref core.TableRef, cond core.ColumnCondition) error {
	ddl, err := store.CreateTableSQL(ref, cond, TypeName)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrConnection, err)
	}
	defer tx.Rollback()

	if ref.Schema != "" {
		if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+store.QuoteIdent(ref.Schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", ref.Schema, err)
		}
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrConnection, err)
	}
	return nil
}

// WriteRows writes all rows in one transaction.
func (s *Store) WriteRows(ctx context.Context, ref core.TableRef, t *core.CleanTable, mode core.WriteMode) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", core.ErrConnection, err)
	}
	defer tx.Rollback()

	if mode == core.ModeReplace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+store.QualifiedName(ref)); err != nil {
			return 0, fmt.Errorf("clear %s: %w", ref, err)
		}
	}

	stmt, err := tx.PreparexContext(ctx, store.InsertSQL(ref, t.ColumnNames(), func(int) string { return "?" }))
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", ref, err)
	}
	defer stmt.Close()

	var n int64
	for i, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("insert row %d into %s: %w", i+1, ref, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit %s: %w", core.ErrConnection, ref, err)
	}
	return n, nil
}

// Preview returns up to limit rows from the table.
func (s *Store) Preview(ctx context.Context, ref core.TableRef, limit int) (*core.CleanTable, error) {
	cols, err := s.Columns(ctx, ref)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, fmt.Errorf("preview %s: %w", ref, core.ErrUnknownTable)
	}

	rows, err := s.db.QueryxContext(ctx, store.PreviewSQL(ref, limit))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref, err)
	}
	defer rows.Close()

	out := &core.CleanTable{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("preview %s: %w", ref, err)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref, err)
	}
	return out, nil
}

// Materialize replaces the table with the result of query in one transaction.
func (s *Store) Materialize(ctx context.Context, ref core.TableRef, query string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", core.ErrConnection, err)
	}
	defer tx.Rollback()

	name := store.QualifiedName(ref)
	stmts := []string{
		"DROP TABLE IF EXISTS " + name,
		fmt.Sprintf("CREATE TABLE %s AS %s", name, query),
	}
	if ref.Schema != "" {
		stmts = append([]string{"CREATE SCHEMA IF NOT EXISTS " + store.QuoteIdent(ref.Schema)}, stmts...)
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("materialize %s: %w", ref, err)
		}
	}

	var n int64
	if err := tx.GetContext(ctx, &n, "SELECT count(*) FROM "+name); err != nil {
		return 0, fmt.Errorf("count %s: %w", ref, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit %s: %w", core.ErrConnection, ref, err)
	}
	return n, nil
}

// TypeName renders a declared type as DuckDB DDL. Canonical names are DuckDB's own.
func TypeName(t core.ColumnType) (string, error) {
	if t.Name == "" {
		return "", errors.New("column type not set")
	}
	return t.Name, nil
}

func schemaOf(ref core.TableRef) string {
	if ref.Schema == "" {
		return "main"
	}
	return ref.Schema
}

// normalizeValue converts driver values to the CleanTable value set.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		return x
	case float32:
		return float64(x)
	case duckdb.Decimal:
		return x.Float64()
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

var _ core.Destination = (*Store)(nil)
