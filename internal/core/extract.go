package core

// extract.go reads Excel and CSV files into a raw Table.
//
// Both formats share the same post-processing: the header is the first
// non-empty row, header cells are cleaned, blank rows are dropped and short
// rows are padded so every row has one cell per column.

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// MaxFileSize is the maximum allowed source file size (100MB).
var MaxFileSize int64 = 100 * 1024 * 1024

// MaxHeaderSearchRows is the maximum number of rows to scan for the header.
var MaxHeaderSearchRows = 20

// utf8BOM is prepended by some Windows programs.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ResolveFormat returns the source's format, inferring it from the file
// extension when not set explicitly.
func ResolveFormat(src SourceFile) (Format, error) {
	switch Format(strings.ToLower(string(src.Format))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatExcel, "xlsx", "xlsm":
		return FormatExcel, nil
	case "":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, src.Format)
	}

	switch ext := strings.ToLower(filepath.Ext(src.Path)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatExcel, nil
	default:
		return "", fmt.Errorf("%w: %s (extension %q)", ErrUnsupportedFormat, src.Path, ext)
	}
}

// Extract reads the source file into a raw table.
// Returns ErrUnsupportedFormat for unknown formats and ErrFileRead when the
// file cannot be opened or parsed or holds no data rows.
func Extract(ctx context.Context, src SourceFile) (*Table, error) {
	format, err := ResolveFormat(src)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %w: %s exceeds %dMB limit", ErrFileRead, ErrFileTooLarge, src.Path, MaxFileSize/(1024*1024))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records [][]string
	switch format {
	case FormatCSV:
		records, err = readCSVFile(src)
	case FormatExcel:
		records, err = readExcelFile(src)
	}
	if err != nil {
		return nil, err
	}

	t, err := buildTable(records)
	if errors.Is(err, ErrSchemaMismatch) {
		return nil, fmt.Errorf("%s: %w", src.Path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileRead, src.Path, err)
	}
	return t, nil
}

// readCSVFile parses a CSV file after stripping the BOM and invalid UTF-8.
func readCSVFile(src SourceFile) ([][]string, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
	}

	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	records, err := parseCSV(data, src.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("%w: parse CSV %s: %w", ErrFileRead, src.Path, err)
	}
	return records, nil
}

// readExcelFile reads every row of the configured sheet (default: first sheet).
func readExcelFile(src SourceFile) ([][]string, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook %s: %w", ErrFileRead, src.Path, err)
	}
	defer f.Close()

	sheet := src.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook %s has no sheets", ErrFileRead, src.Path)
		}
		sheet = sheets[0]
	}

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: sheet %q not found in %s", ErrFileRead, sheet, src.Path)
	}

	// Raw values keep numbers and dates unformatted ("0.5" instead of "50%").
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrFileRead, sheet, err)
	}
	return rows, nil
}

// buildTable finds the header row and normalizes the data rows beneath it.
// A data row with a non-empty cell past the last header column is rejected.
func buildTable(records [][]string) (*Table, error) {
	headerIdx := findHeaderRow(records)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: no header row in the first %d rows", ErrEmptyFile, MaxHeaderSearchRows)
	}

	header := trimTrailingEmpty(records[headerIdx])
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := CleanCell(h)
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		key := strings.ToLower(name)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate column %q (positions %d and %d)", name, prev+1, i+1)
		}
		seen[key] = i
		columns[i] = name
	}

	t := &Table{Columns: columns}
	for i, row := range records[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		if extra := trimTrailingEmpty(row); len(extra) > len(columns) {
			return nil, fmt.Errorf("%w: row %d has a value in column %d beyond the %d header columns",
				ErrSchemaMismatch, headerIdx+i+2, len(extra), len(columns))
		}
		out := make([]string, len(columns))
		copy(out, row)
		t.Rows = append(t.Rows, out)
	}

	if len(t.Rows) == 0 {
		return nil, fmt.Errorf("%w: no data rows after header", ErrEmptyFile)
	}
	return t, nil
}

// findHeaderRow returns the index of the first non-empty row, or -1.
func findHeaderRow(records [][]string) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if !isEmptyRow(records[i]) {
			return i
		}
	}
	return -1
}

// trimTrailingEmpty drops blank cells at the end of a row.
func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func parseCSV(data []byte, delimiter rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	if delimiter != 0 {
		r.Comma = delimiter
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
