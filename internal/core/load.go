package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Loader writes clean tables to a destination obtained from an Opener.
type Loader struct {
	Mode     WriteMode // Default: ModeReplace
	Observer Observer
}

// LoadResult describes a completed load.
type LoadResult struct {
	Table   TableRef
	Rows    int64
	Created bool        // Table did not exist before this load
	Sample  *CleanTable // First row read back from the destination
}

// Load writes clean into ref, creating the table from cond when it is absent.
//
// The destination is opened here and closed on every return path. Returns
// ErrSchemaMismatch when clean or an existing table disagrees with cond, and
// ErrConnection when the destination cannot be opened or the write cannot be
// committed.
func (l *Loader) Load(ctx context.Context, open Opener, ref TableRef, clean *CleanTable, cond ColumnCondition) (res *LoadResult, err error) {
	obs := l.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	mode := l.Mode
	if mode == "" {
		mode = ModeReplace
	}

	if err := checkColumns(clean.Columns, cond); err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}

	dest, err := open(ctx)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = fmt.Errorf("%w: %w", ErrConnection, err)
		}
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	defer func() {
		if cerr := dest.Close(); cerr != nil && err == nil {
			res, err = nil, fmt.Errorf("load %s: %w: close: %w", ref, ErrConnection, cerr)
		}
	}()

	res = &LoadResult{Table: ref}

	existing, err := dest.Columns(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load %s: inspect table: %w", ref, err)
	}
	if existing == nil {
		if err := dest.CreateTable(ctx, ref, cond); err != nil {
			return nil, fmt.Errorf("load %s: create table: %w", ref, err)
		}
		res.Created = true
		logf(obs, "Created table %s (%d columns)", ref, len(cond))
	} else if err := checkColumns(existing, cond); err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", ref, ErrTableConflict, err)
	}

	res.Rows, err = dest.WriteRows(ctx, ref, clean, mode)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	logf(obs, "Wrote %d rows to %s (%s)", res.Rows, ref, mode)

	res.Sample, err = dest.Preview(ctx, ref, 1)
	if err != nil {
		return nil, fmt.Errorf("load %s: read back: %w", ref, err)
	}
	if len(res.Sample.Rows) > 0 {
		logf(obs, "Sample row from %s: %s", ref, formatRow(res.Sample.Rows[0]))
	}

	return res, nil
}

// checkColumns verifies that got matches cond in names, order and types.
func checkColumns(got []ColumnDef, cond ColumnCondition) error {
	if len(got) != len(cond) {
		return fmt.Errorf("%w: %d columns, condition declares %d", ErrSchemaMismatch, len(got), len(cond))
	}

	var problems []string
	for i, col := range cond {
		switch {
		case !strings.EqualFold(got[i].Name, col.Name):
			problems = append(problems, fmt.Sprintf("column %d is %q, want %q", i+1, got[i].Name, col.Name))
		case !got[i].Type.Equal(col.Type):
			problems = append(problems, fmt.Sprintf("column %q is %s, want %s", col.Name, got[i].Type, col.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
	}
	return nil
}

func formatRow(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, " | ")
}
