// Package store holds the SQL helpers shared by the destination drivers.
package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/planload/internal/core"
)

// QuoteIdent quotes an identifier for DuckDB and PostgreSQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName returns the quoted schema.table name.
func QualifiedName(ref core.TableRef) string {
	if ref.Schema == "" {
		return QuoteIdent(ref.Name)
	}
	return QuoteIdent(ref.Schema) + "." + QuoteIdent(ref.Name)
}

// TypeMapper renders a declared column type in a driver's dialect.
type TypeMapper func(core.ColumnType) (string, error)

// CreateTableSQL builds CREATE TABLE IF NOT EXISTS for the condition.
func CreateTableSQL(ref core.TableRef, cond core.ColumnCondition, typeName TypeMapper) (string, error) {
	if len(cond) == 0 {
		return "", fmt.Errorf("%w: no columns for %s", core.ErrSchemaMismatch, ref)
	}

	cols := make([]string, len(cond))
	for i, col := range cond {
		sqlType, err := typeName(col.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		cols[i] = QuoteIdent(col.Name) + " " + sqlType
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", QualifiedName(ref), strings.Join(cols, ",\n\t")), nil
}

// InsertSQL builds a parameterized INSERT for the given columns.
// placeholder renders the i-th (1-based) bind parameter.
func InsertSQL(ref core.TableRef, columns []string, placeholder func(i int) string) string {
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		names[i] = QuoteIdent(c)
		params[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", QualifiedName(ref), strings.Join(names, ", "), strings.Join(params, ", "))
}

// PreviewSQL selects the first limit rows of a table.
func PreviewSQL(ref core.TableRef, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", QualifiedName(ref), limit)
}

// ColumnInfo is one row of information_schema.columns.
type ColumnInfo struct {
	Name      string `db:"column_name"`
	DataType  string `db:"data_type"`
	Precision *int64 `db:"numeric_precision"`
	Scale     *int64 `db:"numeric_scale"`
}

// ColumnDefs converts introspected columns to canonical definitions.
// Types outside the declarable set (lists, structs, ...) are kept under their
// store name so they still compare unequal to any declared type.
func ColumnDefs(infos []ColumnInfo) []core.ColumnDef {
	if len(infos) == 0 {
		return nil
	}

	defs := make([]core.ColumnDef, len(infos))
	for i, info := range infos {
		decl := info.DataType
		if strings.EqualFold(decl, "numeric") && info.Precision != nil && info.Scale != nil {
			decl = fmt.Sprintf("DECIMAL(%d,%d)", *info.Precision, *info.Scale)
		}
		t, err := core.ParseColumnType(decl)
		if err != nil {
			t = core.ColumnType{Kind: core.KindText, Name: strings.ToUpper(decl)}
		}
		defs[i] = core.ColumnDef{Name: info.Name, Type: t}
	}
	return defs
}
