package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DerivedQuery returns the statement whose result replaces the derived table.
// With a stamp column every row also carries the load time.
func DerivedQuery(d DerivedTable) string {
	query := strings.TrimRight(strings.TrimSpace(d.SQL), ";")
	if d.StampColumn == "" {
		return query
	}
	stamp := `"` + strings.ReplaceAll(d.StampColumn, `"`, `""`) + `"`
	return fmt.Sprintf("SELECT src.*, CURRENT_TIMESTAMP AS %s FROM (%s) AS src", stamp, query)
}

// Derive rebuilds a derived table from its query. The destination is closed
// on every return path.
func Derive(ctx context.Context, open Opener, d DerivedTable, obs Observer) (res *DeriveResult, err error) {
	if obs == nil {
		obs = nopObserver{}
	}
	start := time.Now()

	dest, err := open(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return nil, fmt.Errorf("derive %s: %w", d.Name, err)
	}
	defer func() {
		if cerr := dest.Close(); cerr != nil && err == nil {
			res, err = nil, fmt.Errorf("derive %s: %w: close: %w", d.Name, ErrConnection, cerr)
		}
	}()

	logf(obs, "Rebuilding %s from %s", d.Table, strings.Join(d.DependsOn, ", "))

	rows, err := dest.Materialize(ctx, d.Table, DerivedQuery(d))
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", d.Name, err)
	}

	preview, err := dest.Preview(ctx, d.Table, 1)
	if err != nil {
		return nil, fmt.Errorf("derive %s: read back: %w", d.Name, err)
	}
	if len(preview.Rows) > 0 {
		logf(obs, "Sample row from %s: %s", d.Table, formatRow(preview.Rows[0]))
	}
	logf(obs, "Derived %s: %d rows", d.Table, rows)

	return &DeriveResult{
		Name:     d.Name,
		Table:    d.Table.String(),
		Rows:     rows,
		Duration: time.Since(start),
	}, nil
}
