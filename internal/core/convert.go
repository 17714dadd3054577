package core

// convert.go provides best-effort conversion of raw cell text to typed values.
//
// These functions handle the messy reality of spreadsheet exports:
//   - Multiple date formats (US, EU, ISO) and Excel serial dates
//   - Currency symbols and thousand separators in numbers
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value")
//
// Every Parse* function reports ok=false for empty or invalid input instead of
// returning an error; the caller substitutes the null marker.

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// maxExcelSerial is 9999-12-31 as an Excel serial date.
const maxExcelSerial = 2958465

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"01/02/2006 15:04:05",
	}
)

// cleanNumeric strips currency symbols, thousands separators and the accounting
// negative format "(123.45)". ok is false if the result is not a number.
func cleanNumeric(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, "¥", "") // Yen
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return "", false
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return "", false
	}
	return s, true
}

// ParseFloat converts a cell to float64.
// NaN and infinities are rejected.
func ParseFloat(s string) (float64, bool) {
	clean, ok := cleanNumeric(CleanCell(s))
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInteger converts a cell to an integer that fits in bits (8, 16, 32 or 64).
// Integral floats ("12.0", "1.2e3") are accepted; fractional values are not.
func ParseInteger(s string, bits int) (int64, bool) {
	clean, ok := cleanNumeric(CleanCell(s))
	if !ok {
		return 0, false
	}

	if bits <= 0 || bits > 64 {
		bits = 64
	}

	if i, err := strconv.ParseInt(clean, 10, bits); err == nil {
		return i, true
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}

	lo, hi := -math.Ldexp(1, bits-1), math.Ldexp(1, bits-1)
	if f < lo || f >= hi {
		return 0, false
	}
	return int64(f), true
}

// HUGEINT is a signed 128-bit integer.
var (
	hugeintMax = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	hugeintMin = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// ParseHugeint converts a cell to a 128-bit integer. Values that fit in
// int64 are returned as int64, larger ones as *big.Int.
func ParseHugeint(s string) (any, bool) {
	if i, ok := ParseInteger(s, 64); ok {
		return i, true
	}

	clean, ok := cleanNumeric(CleanCell(s))
	if !ok {
		return nil, false
	}

	n, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		f, _, err := big.ParseFloat(clean, 10, 256, big.ToNearestEven)
		if err != nil || !f.IsInt() {
			return nil, false
		}
		n, _ = f.Int(nil)
	}
	if n.Cmp(hugeintMin) < 0 || n.Cmp(hugeintMax) > 0 {
		return nil, false
	}
	return n, true
}

// FitsType reports whether a parsed float can be stored in t without overflow.
// DECIMAL(p,s) holds at most p-s integer digits after rounding to s places;
// FLOAT is single precision.
func FitsType(f float64, t ColumnType) bool {
	switch {
	case t.Kind == KindDecimal:
		unit := math.Pow10(t.Scale)
		rounded := math.Round(math.Abs(f)*unit) / unit
		return rounded < math.Pow10(t.Precision-t.Scale)
	case t.Name == "FLOAT":
		return math.Abs(f) <= math.MaxFloat32
	}
	return true
}

// ParseBool converts a cell to bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	s = strings.ToLower(CleanCell(s))
	switch s {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseDate converts a cell to a date.
// Supports multiple date formats, 2-digit years with pivot, and Excel serial dates.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	if t, ok := parseExcelSerial(s); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}

	return time.Time{}, false
}

// ParseTimestamp converts a cell to a timestamp.
// Falls back to date-only layouts (midnight) and Excel serial date-times.
func ParseTimestamp(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), true
		}
	}

	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	if t, ok := parseExcelSerial(s); ok {
		return t, true
	}

	return time.Time{}, false
}

// parseExcelSerial interprets a raw workbook value such as "45292.5" as a date.
func parseExcelSerial(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// NormalizeText cleans a text cell: CSV artifacts are removed and runs of
// whitespace collapse to a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(CleanCell(s)), " ")
}

// MakeHeaderIndex creates a HeaderIndex from a header row.
// Keys are lowercased for case-insensitive matching.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
