package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Format identifies how a source file is parsed.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// SourceFile describes a tabular input file. It is never modified by the pipeline.
type SourceFile struct {
	Path      string // File path on disk
	Format    Format // Empty means infer from the extension
	Sheet     string // Excel sheet name (default: first sheet)
	Delimiter rune   // CSV field delimiter (default: ',')
}

// Table is the raw output of extraction: a header row plus ordered data rows.
// Cells are uncoerced strings; "" means empty.
type Table struct {
	Columns []string
	Rows    [][]string
}

// HeaderIndex maps column names (lowercase) to their position in a row.
type HeaderIndex map[string]int

// Index builds the case-insensitive header index for the table.
func (t *Table) Index() HeaderIndex {
	return MakeHeaderIndex(t.Columns)
}

// ColumnKind groups SQL types by how raw values are coerced into them.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindFloat
	KindDecimal
	KindBool
	KindDate
	KindTimestamp
)

// IsNumeric reports whether values of this kind are parsed as numbers.
func (k ColumnKind) IsNumeric() bool {
	return k == KindInteger || k == KindFloat || k == KindDecimal
}

func (k ColumnKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	default:
		return "value"
	}
}

// ColumnType is a declared SQL type in canonical form (see ParseColumnType).
type ColumnType struct {
	Kind      ColumnKind
	Name      string // Canonical name: VARCHAR, INTEGER, DECIMAL(18,3), ...
	Precision int    // DECIMAL only
	Scale     int    // DECIMAL only
}

func (t ColumnType) String() string {
	return t.Name
}

// Equal reports whether two types declare the same column storage.
func (t ColumnType) Equal(o ColumnType) bool {
	return t.Name == o.Name
}

// ColumnDef declares one destination column.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// ColumnCondition is the ordered set of declared destination columns.
// It drives both coercion and table creation.
type ColumnCondition []ColumnDef

// Names returns the declared column names in order.
func (c ColumnCondition) Names() []string {
	names := make([]string, len(c))
	for i, col := range c {
		names[i] = col.Name
	}
	return names
}

// Lookup returns the declared column matching name case-insensitively.
func (c ColumnCondition) Lookup(name string) (ColumnDef, bool) {
	for _, col := range c {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return ColumnDef{}, false
}

// CleanTable holds coerced values in declared column order.
// A nil value is the null marker for empty or invalid input.
type CleanTable struct {
	Columns []ColumnDef
	Rows    [][]any
}

// Head returns a copy of the table limited to the first n rows.
func (t *CleanTable) Head(n int) *CleanTable {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &CleanTable{Columns: t.Columns, Rows: t.Rows[:n]}
}

// ColumnNames returns the table's column names in order.
func (t *CleanTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// TableRef identifies a destination table.
type TableRef struct {
	Schema string
	Name   string
}

func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// WriteMode controls what happens to rows already in the destination table.
type WriteMode string

const (
	ModeReplace WriteMode = "replace" // Delete existing rows, then insert
	ModeAppend  WriteMode = "append"  // Insert only
)

// Destination is an open connection to the analytical store.
// Implementations must be safe to Close more than once.
type Destination interface {
	// Columns returns the table's columns in ordinal order, or nil if the table does not exist.
	Columns(ctx context.Context, ref TableRef) ([]ColumnDef, error)

	// CreateTable creates the schema and table if absent.
	CreateTable(ctx context.Context, ref TableRef, cond ColumnCondition) error

	// WriteRows writes all rows in a single transaction and returns the count written.
	WriteRows(ctx context.Context, ref TableRef, t *CleanTable, mode WriteMode) (int64, error)

	// Preview returns up to limit rows from the table.
	Preview(ctx context.Context, ref TableRef, limit int) (*CleanTable, error)

	// Materialize replaces the table with the result of query and returns its row count.
	Materialize(ctx context.Context, ref TableRef, query string) (int64, error)

	Close() error
}

// Opener acquires a destination. The caller owns the returned handle.
type Opener func(ctx context.Context) (Destination, error)

// Observer receives progress messages and table snapshots from a run.
type Observer interface {
	LogLine(msg string)
	ShowPreview(t *CleanTable)
}

// Recorder receives run measurements.
type Recorder interface {
	RunFinished(job string, phase RunPhase, d time.Duration)
	RowsLoaded(table string, n int64)
	ValuesCoerced(table, column string, n int)
}

type nopObserver struct{}

func (nopObserver) LogLine(string)           {}
func (nopObserver) ShowPreview(*CleanTable) {}

type nopRecorder struct{}

func (nopRecorder) RunFinished(string, RunPhase, time.Duration) {}
func (nopRecorder) RowsLoaded(string, int64)                    {}
func (nopRecorder) ValuesCoerced(string, string, int)           {}

// logf formats a message for an Observer.
func logf(obs Observer, format string, args ...any) {
	obs.LogLine(fmt.Sprintf(format, args...))
}

// RunPhase indicates the current stage of a pipeline run.
type RunPhase string

const (
	PhaseStarting     RunPhase = "starting"
	PhaseReading      RunPhase = "reading"
	PhaseTransforming RunPhase = "transforming"
	PhaseLoading      RunPhase = "loading"
	PhaseComplete     RunPhase = "complete"
	PhaseFailed       RunPhase = "failed"
)

// Unpivot reshapes wide value columns into name/value rows.
type Unpivot struct {
	IDColumns       []string
	ValueColumns    []string
	NameColumn      string // Receives the original value column name
	ValueColumn     string // Receives the cell value
	PrefixColumn    string // Optional: text of NameColumn before PrefixSeparator
	PrefixSeparator string
}

// Job is one configured extract-transform-load unit.
type Job struct {
	Name              string
	Group             string
	Source            SourceFile
	Table             TableRef
	Mode              WriteMode
	AllowExtraColumns bool // Drop undeclared columns instead of failing
	Unpivot           *Unpivot
	Condition         ColumnCondition
}

// DerivedTable is a table rebuilt from a query over loaded tables.
type DerivedTable struct {
	Name        string
	Table       TableRef
	SQL         string
	StampColumn string // Optional: adds a load timestamp column
	DependsOn   []string
}

// RunResult contains the outcome of a single job run.
type RunResult struct {
	RunID    string            `json:"runId"`
	Job      string            `json:"job"`
	Table    string            `json:"table"`
	Phase    RunPhase          `json:"phase"`
	Rows     int64             `json:"rows"`
	Created  bool              `json:"created"`
	Report   *ValidationReport `json:"report,omitempty"`
	Duration time.Duration     `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// DeriveResult contains the outcome of materializing a derived table.
type DeriveResult struct {
	Name     string        `json:"name"`
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// BatchResult contains the outcome of running every registered job.
type BatchResult struct {
	Runs    []*RunResult    `json:"runs"`
	Derived []*DeriveResult `json:"derived"`
}
