package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Default DECIMAL precision and scale when a declaration omits them.
const (
	DefaultDecimalPrecision = 18
	DefaultDecimalScale     = 3
)

// decimalRegex matches DECIMAL/NUMERIC with optional (precision[, scale]).
var decimalRegex = regexp.MustCompile(`^(?:DECIMAL|NUMERIC)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?$`)

// sizedTextRegex matches length-qualified text types such as VARCHAR(255).
var sizedTextRegex = regexp.MustCompile(`^(?:VARCHAR|CHAR|CHARACTER VARYING|CHARACTER|BPCHAR)\s*\(\s*\d+\s*\)$`)

// typeAliases maps accepted spellings to canonical type names.
var typeAliases = map[string]ColumnType{
	"VARCHAR":           {Kind: KindText, Name: "VARCHAR"},
	"TEXT":              {Kind: KindText, Name: "VARCHAR"},
	"STRING":            {Kind: KindText, Name: "VARCHAR"},
	"CHAR":              {Kind: KindText, Name: "VARCHAR"},
	"BPCHAR":            {Kind: KindText, Name: "VARCHAR"},
	"CHARACTER":         {Kind: KindText, Name: "VARCHAR"},
	"CHARACTER VARYING": {Kind: KindText, Name: "VARCHAR"},

	"BOOLEAN": {Kind: KindBool, Name: "BOOLEAN"},
	"BOOL":    {Kind: KindBool, Name: "BOOLEAN"},
	"LOGICAL": {Kind: KindBool, Name: "BOOLEAN"},

	"TINYINT":  {Kind: KindInteger, Name: "TINYINT"},
	"INT1":     {Kind: KindInteger, Name: "TINYINT"},
	"SMALLINT": {Kind: KindInteger, Name: "SMALLINT"},
	"INT2":     {Kind: KindInteger, Name: "SMALLINT"},
	"SHORT":    {Kind: KindInteger, Name: "SMALLINT"},
	"INTEGER":  {Kind: KindInteger, Name: "INTEGER"},
	"INT":      {Kind: KindInteger, Name: "INTEGER"},
	"INT4":     {Kind: KindInteger, Name: "INTEGER"},
	"SIGNED":   {Kind: KindInteger, Name: "INTEGER"},
	"BIGINT":   {Kind: KindInteger, Name: "BIGINT"},
	"INT8":     {Kind: KindInteger, Name: "BIGINT"},
	"LONG":     {Kind: KindInteger, Name: "BIGINT"},
	"HUGEINT":  {Kind: KindInteger, Name: "HUGEINT"},
	"INT128":   {Kind: KindInteger, Name: "HUGEINT"},

	"FLOAT":            {Kind: KindFloat, Name: "FLOAT"},
	"FLOAT4":           {Kind: KindFloat, Name: "FLOAT"},
	"REAL":             {Kind: KindFloat, Name: "FLOAT"},
	"DOUBLE":           {Kind: KindFloat, Name: "DOUBLE"},
	"FLOAT8":           {Kind: KindFloat, Name: "DOUBLE"},
	"DOUBLE PRECISION": {Kind: KindFloat, Name: "DOUBLE"},

	"DATE": {Kind: KindDate, Name: "DATE"},

	"TIMESTAMP":                   {Kind: KindTimestamp, Name: "TIMESTAMP"},
	"DATETIME":                    {Kind: KindTimestamp, Name: "TIMESTAMP"},
	"TIMESTAMP WITHOUT TIME ZONE": {Kind: KindTimestamp, Name: "TIMESTAMP"},
	"TIMESTAMPTZ":                 {Kind: KindTimestamp, Name: "TIMESTAMPTZ"},
	"TIMESTAMP WITH TIME ZONE":    {Kind: KindTimestamp, Name: "TIMESTAMPTZ"},
}

// integerBits is the storage width of each canonical integer type.
// HUGEINT is parsed by ParseHugeint.
var integerBits = map[string]int{
	"TINYINT":  8,
	"SMALLINT": 16,
	"INTEGER":  32,
	"BIGINT":   64,
}

// ParseColumnType parses a declared SQL type into its canonical form.
// Aliases collapse to one spelling (INT -> INTEGER, TEXT -> VARCHAR, NUMERIC -> DECIMAL(18,3))
// so declared and introspected types compare equal.
func ParseColumnType(decl string) (ColumnType, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(decl), " "))
	if s == "" {
		return ColumnType{}, fmt.Errorf("empty column type")
	}

	if t, ok := typeAliases[s]; ok {
		return t, nil
	}

	if sizedTextRegex.MatchString(s) {
		return typeAliases["VARCHAR"], nil
	}

	if m := decimalRegex.FindStringSubmatch(s); m != nil {
		precision, scale := DefaultDecimalPrecision, DefaultDecimalScale
		if m[1] != "" {
			precision, _ = strconv.Atoi(m[1])
			scale = 0
		}
		if m[2] != "" {
			scale, _ = strconv.Atoi(m[2])
		}
		if precision < 1 || precision > 38 {
			return ColumnType{}, fmt.Errorf("decimal precision %d out of range 1-38", precision)
		}
		if scale > precision {
			return ColumnType{}, fmt.Errorf("decimal scale %d exceeds precision %d", scale, precision)
		}
		return ColumnType{
			Kind:      KindDecimal,
			Name:      fmt.Sprintf("DECIMAL(%d,%d)", precision, scale),
			Precision: precision,
			Scale:     scale,
		}, nil
	}

	return ColumnType{}, fmt.Errorf("unsupported column type %q", decl)
}

// MustColumnType is like ParseColumnType but panics on error.
// Intended for tests and static declarations.
func MustColumnType(decl string) ColumnType {
	t, err := ParseColumnType(decl)
	if err != nil {
		panic(err)
	}
	return t
}

// NewColumnCondition builds a condition from alternating name/type pairs.
func NewColumnCondition(pairs ...string) (ColumnCondition, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("column condition needs name/type pairs, got %d values", len(pairs))
	}

	cond := make(ColumnCondition, 0, len(pairs)/2)
	seen := make(map[string]bool, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name := strings.TrimSpace(pairs[i])
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i/2+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[key] = true

		t, err := ParseColumnType(pairs[i+1])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		cond = append(cond, ColumnDef{Name: name, Type: t})
	}
	return cond, nil
}
