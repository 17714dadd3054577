package core

// transform.go coerces a raw table to the declared column condition.
//
// Coercion is best-effort: a value that cannot be converted to its declared
// type becomes null and is counted in the ValidationReport. The only failure
// is a column set that disagrees with the condition.

import (
	"fmt"
	"math/big"
	"strings"
)

// TransformOptions controls how undeclared source columns are handled.
type TransformOptions struct {
	// AllowExtraColumns drops source columns missing from the condition
	// instead of failing with ErrSchemaMismatch.
	AllowExtraColumns bool
}

// Transform coerces every declared column of raw and reports the outcome.
// The clean table's columns follow the condition's order and names.
func Transform(raw *Table, cond ColumnCondition, opts TransformOptions) (*CleanTable, *ValidationReport, error) {
	if len(cond) == 0 {
		return nil, nil, fmt.Errorf("%w: empty column condition", ErrSchemaMismatch)
	}

	positions, ignored, err := matchColumns(raw.Columns, cond)
	if err != nil {
		return nil, nil, err
	}
	if len(ignored) > 0 && !opts.AllowExtraColumns {
		return nil, nil, fmt.Errorf("%w: undeclared columns %s", ErrSchemaMismatch, strings.Join(ignored, ", "))
	}

	report := NewValidationReport(cond)
	report.Rows = len(raw.Rows)
	report.Ignored = ignored

	clean := &CleanTable{
		Columns: append([]ColumnDef(nil), cond...),
		Rows:    make([][]any, len(raw.Rows)),
	}

	for i, row := range raw.Rows {
		out := make([]any, len(cond))
		for j, col := range cond {
			var cell string
			if pos := positions[j]; pos < len(row) {
				cell = row[pos]
			}
			out[j] = coerceCell(cell, col.Type, report.Columns[j])
		}
		clean.Rows[i] = out
	}

	for _, c := range report.Columns {
		c.finalize()
	}

	return clean, report, nil
}

// matchColumns maps each declared column to its raw position.
// Missing declared columns are an error; undeclared raw columns are returned.
func matchColumns(columns []string, cond ColumnCondition) ([]int, []string, error) {
	idx := MakeHeaderIndex(columns)

	positions := make([]int, len(cond))
	var missing []string
	for i, col := range cond {
		pos, ok := idx[strings.ToLower(col.Name)]
		if !ok {
			missing = append(missing, col.Name)
			continue
		}
		positions[i] = pos
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing declared columns %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	var ignored []string
	for _, name := range columns {
		if _, ok := cond.Lookup(CleanCell(name)); !ok {
			ignored = append(ignored, name)
		}
	}
	return positions, ignored, nil
}

func hugeintFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f
	}
	return 0
}

// coerceCell converts one raw value to the declared type, recording the outcome.
// Returns nil for empty or invalid input, including numbers that parse but
// overflow the declared type.
func coerceCell(raw string, t ColumnType, rep *ColumnReport) any {
	if t.Kind == KindText {
		v := NormalizeText(raw)
		if v == "" {
			rep.recordEmpty()
			return nil
		}
		if v != raw {
			rep.Normalized++
		}
		rep.recordValid()
		return v
	}

	if CleanCell(raw) == "" {
		rep.recordEmpty()
		return nil
	}

	var (
		v  any
		ok bool
	)
	switch t.Kind {
	case KindInteger:
		if t.Name == "HUGEINT" {
			v, ok = ParseHugeint(raw)
			if ok {
				rep.recordNumber(hugeintFloat(v))
			}
			break
		}
		var i int64
		i, ok = ParseInteger(raw, integerBits[t.Name])
		v = i
		if ok {
			rep.recordNumber(float64(i))
		}
	case KindFloat, KindDecimal:
		var f float64
		f, ok = ParseFloat(raw)
		ok = ok && FitsType(f, t)
		v = f
		if ok {
			rep.recordNumber(f)
		}
	case KindBool:
		v, ok = ParseBool(raw)
	case KindDate:
		v, ok = ParseDate(raw)
	case KindTimestamp:
		v, ok = ParseTimestamp(raw)
	}

	if !ok {
		rep.recordCoerced(raw)
		return nil
	}
	rep.recordValid()
	return v
}
