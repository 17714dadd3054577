package core

import (
	"fmt"
	"strings"
)

// Validate checks the reshape settings independent of any table.
func (u *Unpivot) Validate() error {
	if len(u.ValueColumns) == 0 {
		return fmt.Errorf("unpivot needs at least one value column")
	}
	if u.NameColumn == "" || u.ValueColumn == "" {
		return fmt.Errorf("unpivot needs name_column and value_column")
	}
	if u.PrefixColumn != "" && u.PrefixSeparator == "" {
		return fmt.Errorf("unpivot prefix_column %q needs a prefix_separator", u.PrefixColumn)
	}
	return nil
}

// Apply melts the value columns of raw into name/value rows.
//
// Output columns are the id columns, NameColumn, ValueColumn and, when set,
// PrefixColumn. Rows are grouped by value column: every source row for the
// first value column, then every source row for the second, and so on.
func (u *Unpivot) Apply(raw *Table) (*Table, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	idx := raw.Index()
	lookup := func(cols []string) ([]int, []string) {
		pos := make([]int, len(cols))
		var missing []string
		for i, c := range cols {
			p, ok := idx[strings.ToLower(c)]
			if !ok {
				missing = append(missing, c)
				continue
			}
			pos[i] = p
		}
		return pos, missing
	}

	idPos, missingIDs := lookup(u.IDColumns)
	valuePos, missingValues := lookup(u.ValueColumns)
	if missing := append(missingIDs, missingValues...); len(missing) > 0 {
		return nil, fmt.Errorf("%w: unpivot columns not found: %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	columns := make([]string, 0, len(u.IDColumns)+3)
	for _, p := range idPos {
		columns = append(columns, raw.Columns[p])
	}
	columns = append(columns, u.NameColumn, u.ValueColumn)
	if u.PrefixColumn != "" {
		columns = append(columns, u.PrefixColumn)
	}

	out := &Table{
		Columns: columns,
		Rows:    make([][]string, 0, len(raw.Rows)*len(valuePos)),
	}

	for v, vp := range valuePos {
		name := raw.Columns[vp]
		prefix := ""
		if u.PrefixColumn != "" {
			prefix, _, _ = strings.Cut(u.ValueColumns[v], u.PrefixSeparator)
		}

		for _, row := range raw.Rows {
			r := make([]string, 0, len(columns))
			for _, p := range idPos {
				r = append(r, cellAt(row, p))
			}
			r = append(r, name, cellAt(row, vp))
			if u.PrefixColumn != "" {
				r = append(r, prefix)
			}
			out.Rows = append(out.Rows, r)
		}
	}

	return out, nil
}

func cellAt(row []string, pos int) string {
	if pos < len(row) {
		return row[pos]
	}
	return ""
}
