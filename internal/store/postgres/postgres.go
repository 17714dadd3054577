// Package postgres implements core.Destination on a PostgreSQL pool.
//
// Each core.Opener call acquires one pooled connection; Close releases it.
// Bulk writes use the COPY protocol.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/store"
)

// DefaultSchema is used for table references without a schema.
const DefaultSchema = "public"

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Pool is a PostgreSQL connection pool that hands out destinations.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects and pings the database. Failures wrap core.ErrConnection.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database URL: %w", core.ErrConnection, err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", core.ErrConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", core.ErrConnection, err)
	}

	return &Pool{pool: pool}, nil
}

// Opener acquires a pooled connection for each operation.
func (p *Pool) Opener() core.Opener {
	return func(ctx context.Context) (core.Destination, error) {
		conn, err := p.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: acquire: %w", core.ErrConnection, err)
		}
		return &Conn{conn: conn}, nil
	}
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Conn is one acquired connection.
type Conn struct {
	conn     *pgxpool.Conn
	released atomic.Bool
}

// Closed reports whether the connection was returned to the pool.
func (c *Conn) Closed() bool {
	return c.released.Load()
}

// Close returns the connection to the pool. Safe to call more than once.
func (c *Conn) Close() error {
	if c.released.CompareAndSwap(false, true) {
		c.conn.Release()
	}
	return nil
}

const columnsQuery = `
SELECT column_name::text, data_type::text, numeric_precision::int4, numeric_scale::int4
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// Columns returns the table's columns, or nil if it does not exist.
func (c *Conn) Columns(ctx context.Context, ref core.TableRef) ([]core.ColumnDef, error) {
	rows, err := c.conn.Query(ctx, columnsQuery, schemaOf(ref), ref.Name)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", ref, err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ColumnInfo, error) {
		var (
			info       store.ColumnInfo
			prec, scal *int32
		)
		if err := row.Scan(&info.Name, &info.DataType, &prec, &scal); err != nil {
			return info, err
		}
		if prec != nil && scal != nil {
			p, s := int64(*prec), int64(*scal)
			info.Precision, info.Scale = &p, &s
		}
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", ref, err)
	}
	return store.ColumnDefs(infos), nil
}

// CreateTable creates the schema and table if absent.
func (c *Conn) CreateTable(ctx context.Context, ref core.TableRef, cond core.ColumnCondition) error {
	ddl, err := store.CreateTableSQL(withSchema(ref), cond, TypeName)
	if err != nil {
		return err
	}

	return c.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+store.QuoteIdent(schemaOf(ref))); err != nil {
			return fmt.Errorf("create schema %s: %w", schemaOf(ref), err)
		}
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", ref, err)
		}
		return nil
	})
}

// WriteRows copies all rows in one transaction.
func (c *Conn) WriteRows(ctx context.Context, ref core.TableRef, t *core.CleanTable, mode core.WriteMode) (int64, error) {
	var n int64
	err := c.inTx(ctx, func(tx pgx.Tx) error {
		if mode == core.ModeReplace {
			if _, err := tx.Exec(ctx, "DELETE FROM "+store.QualifiedName(withSchema(ref))); err != nil {
				return fmt.Errorf("clear %s: %w", ref, err)
			}
		}

		var err error
		n, err = tx.CopyFrom(ctx,
			pgx.Identifier{schemaOf(ref), ref.Name},
			t.ColumnNames(),
			pgx.CopyFromRows(t.Rows),
		)
		if err != nil {
			return fmt.Errorf("copy into %s: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Preview returns up to limit rows from the table.
func (c *Conn) Preview(ctx context.Context, ref core.TableRef, limit int) (*core.CleanTable, error) {
	cols, err := c.Columns(ctx, ref)
	if err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, fmt.Errorf("preview %s: %w", ref, core.ErrUnknownTable)
	}

	rows, err := c.conn.Query(ctx, store.PreviewSQL(withSchema(ref), limit))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref, err)
	}
	defer rows.Close()

	out := &core.CleanTable{Columns: cols}
	for rows.Next() {
		vals, err := rows.Values()
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
func (c *Conn) Materialize(ctx context.Context, ref core.TableRef, query string) (int64, error) {
	name := store.QualifiedName(withSchema(ref))

	var n int64
	err := c.inTx(ctx, func(tx pgx.Tx) error {
		stmts := []string{
			"CREATE SCHEMA IF NOT EXISTS " + store.QuoteIdent(schemaOf(ref)),
			"DROP TABLE IF EXISTS " + name,
			fmt.Sprintf("CREATE TABLE %s AS %s", name, query),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("materialize %s: %w", ref, err)
			}
		}
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM "+name).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", ref, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// inTx runs fn in a transaction. A failed commit wraps core.ErrConnection.
func (c *Conn) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", core.ErrConnection, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return describe(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", core.ErrConnection, err)
	}
	return nil
}

// describe adds the server's detail and hint to a PostgreSQL error.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Detail != "" && pgErr.Hint != "":
		return fmt.Errorf("%w (detail: %s; hint: %s)", err, pgErr.Detail, pgErr.Hint)
	case pgErr.Detail != "":
		return fmt.Errorf("%w (detail: %s)", err, pgErr.Detail)
	case pgErr.Hint != "":
		return fmt.Errorf("%w (hint: %s)", err, pgErr.Hint)
	}
	return err
}

// TypeName renders a declared type as PostgreSQL DDL. Every mapping
// introspects back to the same canonical type.
func TypeName(t core.ColumnType) (string, error) {
	switch t.Name {
	case "VARCHAR":
		return "TEXT", nil
	case "BOOLEAN", "SMALLINT", "INTEGER", "BIGINT", "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return t.Name, nil
	case "FLOAT":
		return "REAL", nil
	case "DOUBLE":
		return "DOUBLE PRECISION", nil
	}
	if t.Kind == core.KindDecimal {
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale), nil
	}
	return "", fmt.Errorf("%w: %s has no PostgreSQL equivalent", core.ErrSchemaMismatch, t.Name)
}

func schemaOf(ref core.TableRef) string {
	if ref.Schema == "" {
		return DefaultSchema
	}
	return ref.Schema
}

func withSchema(ref core.TableRef) core.TableRef {
	ref.Schema = schemaOf(ref)
	return ref
}

// normalizeValue converts driver values to the CleanTable value set.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}

var _ core.Destination = (*Conn)(nil)
