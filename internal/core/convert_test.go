package core

import (
	"fmt"
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// ParseFloat Tests
// ----------------------------------------------------------------------------

func TestParseFloat(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   float64
	}{
		{name: "positive integer", input: "123", wantOK: true, want: 123},
		{name: "zero", input: "0", wantOK: true, want: 0},
		{name: "negative integer", input: "-456", wantOK: true, want: -456},
		{name: "decimal number", input: "123.45", wantOK: true, want: 123.45},
		{name: "leading decimal point", input: ".99", wantOK: true, want: 0.99},
		{name: "trailing decimal point", input: "99.", wantOK: true, want: 99},
		{name: "dollar with thousands", input: "$1,234.56", wantOK: true, want: 1234.56},
		{name: "euro", input: "€100", wantOK: true, want: 100},
		{name: "accounting negative", input: "(123.45)", wantOK: true, want: -123.45},
		{name: "scientific notation", input: "1e3", wantOK: true, want: 1000},
		{name: "surrounding whitespace", input: "  42  ", wantOK: true, want: 42},
		{name: "excel formula wrapper", input: `="12"`, wantOK: true, want: 12},

		{name: "empty", input: "", wantOK: false},
		{name: "word", input: "No", wantOK: false},
		{name: "trailing letters", input: "12abc", wantOK: false},
		{name: "two decimal points", input: "1.2.3", wantOK: false},
		{name: "NaN", input: "NaN", wantOK: false},
		{name: "infinity", input: "Inf", wantOK: false},
		{name: "signed accounting negative", input: "(-5)", wantOK: false},
		{name: "double sign", input: "--5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFloat(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseFloat(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseFloat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseInteger Tests
// ----------------------------------------------------------------------------

func TestParseInteger(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		bits   int
		wantOK bool
		want   int64
	}{
		{name: "plain", input: "42", bits: 64, wantOK: true, want: 42},
		{name: "integral float", input: "12.0", bits: 64, wantOK: true, want: 12},
		{name: "scientific", input: "1.2e3", bits: 64, wantOK: true, want: 1200},
		{name: "thousands separator", input: "1,000", bits: 32, wantOK: true, want: 1000},
		{name: "tinyint max", input: "127", bits: 8, wantOK: true, want: 127},
		{name: "tinyint min", input: "-128", bits: 8, wantOK: true, want: -128},
		{name: "bigint max", input: "9223372036854775807", bits: 64, wantOK: true, want: 9223372036854775807},
		{name: "unknown width means 64", input: "5", bits: 0, wantOK: true, want: 5},

		{name: "fractional", input: "12.5", bits: 64, wantOK: false},
		{name: "tinyint overflow", input: "128", bits: 8, wantOK: false},
		{name: "integer overflow", input: "2147483648", bits: 32, wantOK: false},
		{name: "integral float overflow", input: "3e9", bits: 32, wantOK: false},
		{name: "word", input: "No", bits: 64, wantOK: false},
		{name: "empty", input: "", bits: 64, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseInteger(tt.input, tt.bits)
			if ok != tt.wantOK {
				t.Fatalf("ParseInteger(%q, %d) ok = %v, want %v", tt.input, tt.bits, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseInteger(%q, %d) = %d, want %d", tt.input, tt.bits, got, tt.want)
			}
		})
	}
}

func TestParseHugeint(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   string
	}{
		{name: "fits in int64", input: "42", wantOK: true, want: "42"},
		{name: "beyond int64", input: "9223372036854775808", wantOK: true, want: "9223372036854775808"},
		{name: "negative beyond int64", input: "-20,000,000,000,000,000,000", wantOK: true, want: "-20000000000000000000"},
		{name: "integral float notation", input: "1.5e20", wantOK: true, want: "150000000000000000000"},
		{name: "hugeint max", input: "170141183460469231731687303715884105727", wantOK: true, want: "170141183460469231731687303715884105727"},
		{name: "hugeint min", input: "-170141183460469231731687303715884105728", wantOK: true, want: "-170141183460469231731687303715884105728"},

		{name: "hugeint overflow", input: "170141183460469231731687303715884105728", wantOK: false},
		{name: "fractional", input: "12345678901234567890.5", wantOK: false},
		{name: "word", input: "lots", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseHugeint(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseHugeint(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && fmt.Sprint(got) != tt.want {
				t.Errorf("ParseHugeint(%q) = %v, want %s", tt.input, got, tt.want)
			}
		})
	}

	if v, _ := ParseHugeint("7"); v != int64(7) {
		t.Errorf("ParseHugeint(%q) = %T, want int64", "7", v)
	}
}

func TestFitsType(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		decl  string
		want  bool
	}{
		{name: "decimal within range", value: 999.99, decl: "DECIMAL(5,2)", want: true},
		{name: "decimal negative within range", value: -999.99, decl: "DECIMAL(5,2)", want: true},
		{name: "decimal too many integer digits", value: 123456, decl: "DECIMAL(5,2)", want: false},
		{name: "decimal rounds up past limit", value: 999.999, decl: "DECIMAL(5,2)", want: false},
		{name: "decimal scale only", value: 0.5, decl: "DECIMAL(2,2)", want: true},
		{name: "decimal scale only overflow", value: 1, decl: "DECIMAL(2,2)", want: false},
		{name: "float within range", value: 3.4e38, decl: "FLOAT", want: true},
		{name: "float overflow", value: 1e300, decl: "FLOAT", want: false},
		{name: "double accepts large", value: 1e300, decl: "DOUBLE", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitsType(tt.value, MustColumnType(tt.decl)); got != tt.want {
				t.Errorf("FitsType(%g, %s) = %v, want %v", tt.value, tt.decl, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseBool Tests
// ----------------------------------------------------------------------------

func TestParseBool(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
		want   bool
	}{
		{"true", true, true},
		{"TRUE", true, true},
		{"t", true, true},
		{"Yes", true, true},
		{"y", true, true},
		{"1", true, true},
		{"false", true, false},
		{"F", true, false},
		{"no", true, false},
		{"N", true, false},
		{"0", true, false},
		{`"yes"`, true, true},
		{"", false, false},
		{"maybe", false, false},
		{"2", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseBool(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseBool(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseDate Tests
// ----------------------------------------------------------------------------

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   string // YYYY-MM-DD
	}{
		{name: "ISO", input: "2024-01-15", wantOK: true, want: "2024-01-15"},
		{name: "ISO leap day", input: "2024-02-29", wantOK: true, want: "2024-02-29"},
		{name: "US with zero padding", input: "01/15/2024", wantOK: true, want: "2024-01-15"},
		{name: "US without padding", input: "1/5/2024", wantOK: true, want: "2024-01-05"},
		{name: "slashed ISO", input: "2024/03/01", wantOK: true, want: "2024-03-01"},
		{name: "month name", input: "Jan 15, 2024", wantOK: true, want: "2024-01-15"},
		{name: "compact", input: "20240115", wantOK: true, want: "2024-01-15"},
		{name: "excel serial", input: "45306", wantOK: true, want: "2024-01-15"},
		{name: "excel serial with time", input: "45306.75", wantOK: true, want: "2024-01-15"},

		{name: "empty", input: "", wantOK: false},
		{name: "text", input: "not a date", wantOK: false},
		{name: "invalid month", input: "2024-13-45", wantOK: false},
		{name: "not leap year", input: "2023-02-29", wantOK: false},
		{name: "negative serial", input: "-5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	originalPivot := TwoDigitYearPivot
	defer func() { TwoDigitYearPivot = originalPivot }()

	TwoDigitYearPivot = 20
	pivotYear := time.Now().Year() + 20

	tests := []struct {
		input    string
		wantYear int
	}{
		{"01/15/25", 2025},
		{"01/15/99", 1999},
		{"01/15/85", 1985},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if !ok {
				t.Fatalf("ParseDate(%q) not ok", tt.input)
			}
			if got.Year() != tt.wantYear {
				t.Errorf("ParseDate(%q) year = %d, want %d", tt.input, got.Year(), tt.wantYear)
			}
			if got.Year() > pivotYear {
				t.Errorf("ParseDate(%q) year %d is past pivot %d", tt.input, got.Year(), pivotYear)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
		want   time.Time
	}{
		{name: "space separated", input: "2024-01-15 10:30:00", wantOK: true, want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{name: "RFC3339", input: "2024-01-15T10:30:00Z", wantOK: true, want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{name: "RFC3339 with offset", input: "2024-01-15T12:30:00+02:00", wantOK: true, want: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{name: "date only", input: "2024-01-15", wantOK: true, want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{name: "excel serial noon", input: "45306.5", wantOK: true, want: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)},

		{name: "empty", input: "", wantOK: false},
		{name: "text", input: "yesterday", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if diff := got.Sub(tt.want); diff > time.Second || diff < -time.Second {
				t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// NormalizeText Tests
// ----------------------------------------------------------------------------

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{"  hello   world  ", "hello world"},
		{"a\tb\nc", "a b c"},
		{`="ABC"`, "ABC"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// CleanCell Tests
// ----------------------------------------------------------------------------

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple string unchanged", input: "hello", want: "hello"},
		{name: "empty string", input: "", want: ""},
		{name: "surrounded by whitespace", input: "  hello  ", want: "hello"},
		{name: "Excel formula with quotes", input: `="hello"`, want: "hello"},
		{name: "Excel formula number as text", input: `="12345"`, want: "12345"},
		{name: "bare equals sign", input: "=SUM(A1)", want: "SUM(A1)"},
		{name: "double quotes removed", input: `"hello"`, want: "hello"},
		{name: "single quotes removed", input: "'hello'", want: "hello"},
		{name: "leading single quote (Excel text prefix)", input: "'12345", want: "12345"},
		{name: "whitespace and quotes", input: `  "hello"  `, want: "hello"},
		{name: "excel formula with whitespace", input: `  ="test"  `, want: "test"},
		{name: "only quotes", input: `""`, want: ""},
		{name: "equals with quoted number", input: `="0"`, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanCell(tt.input)
			if got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// MakeHeaderIndex Tests
// ----------------------------------------------------------------------------

func TestMakeHeaderIndex(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		checks map[string]int // key -> expected index
	}{
		{
			name:   "case insensitive lookup",
			header: []string{"NAME", "Email", "pHoNe"},
			checks: map[string]int{"name": 0, "email": 1, "phone": 2},
		},
		{
			name:   "headers with quotes and whitespace cleaned",
			header: []string{`"Name"`, "  Email ", `="Phone"`},
			checks: map[string]int{"name": 0, "email": 1, "phone": 2},
		},
		{
			name:   "first duplicate wins",
			header: []string{"Name", "Email", "name"},
			checks: map[string]int{"name": 0, "email": 1},
		},
		{
			name:   "empty header",
			header: []string{},
			checks: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := MakeHeaderIndex(tt.header)

			for key, wantPos := range tt.checks {
				gotPos, ok := idx[key]
				if !ok {
					t.Errorf("MakeHeaderIndex(%v)[%q] not found, want index %d", tt.header, key, wantPos)
					continue
				}
				if gotPos != wantPos {
					t.Errorf("MakeHeaderIndex(%v)[%q] = %d, want %d", tt.header, key, gotPos, wantPos)
				}
			}
		})
	}
}
