package core

// validation.go collects per-column coercion outcomes during transformation.
//
// The report is informational: it never blocks a load. Numeric columns also
// carry a small summary of the values that survived coercion so a run log shows
// at a glance whether the data looks sane.

import (
	"fmt"
	"strings"

	"github.com/montanaflynn/stats"
)

// ColumnReport holds coercion counts for a single declared column.
type ColumnReport struct {
	Column     string `json:"column"`
	Type       string `json:"type"`
	Total      int    `json:"total"`      // Rows seen
	Valid      int    `json:"valid"`      // Non-null after coercion
	Empty      int    `json:"empty"`      // Empty in the source
	Coerced    int    `json:"coerced"`    // Invalid in the source, replaced by null
	Normalized int    `json:"normalized"` // Text values changed by normalization

	// Numeric summary of valid values (nil for non-numeric columns or no values).
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`

	// Samples holds the first few raw values that were coerced to null.
	Samples []string `json:"samples,omitempty"`

	numbers stats.Float64Data
}

// ValidationReport summarizes coercion outcomes for a transformed table.
type ValidationReport struct {
	Rows    int             `json:"rows"`
	Columns []*ColumnReport `json:"columns"`
	Ignored []string        `json:"ignored,omitempty"` // Source columns dropped because they were not declared
}

// maxCoercionSamples caps the raw values kept per column for diagnostics.
const maxCoercionSamples = 5

// NewValidationReport creates an empty report for the given condition.
func NewValidationReport(cond ColumnCondition) *ValidationReport {
	r := &ValidationReport{Columns: make([]*ColumnReport, len(cond))}
	for i, col := range cond {
		r.Columns[i] = &ColumnReport{Column: col.Name, Type: col.Type.Name}
	}
	return r
}

// Column returns the report for a column, matched case-insensitively.
func (r *ValidationReport) Column(name string) *ColumnReport {
	for _, c := range r.Columns {
		if strings.EqualFold(c.Column, name) {
			return c
		}
	}
	return nil
}

// TotalCoerced returns the number of values replaced by null across all columns.
func (r *ValidationReport) TotalCoerced() int {
	n := 0
	for _, c := range r.Columns {
		n += c.Coerced
	}
	return n
}

// HasCoercions reports whether any value was replaced by null.
func (r *ValidationReport) HasCoercions() bool {
	return r.TotalCoerced() > 0
}

// Summary returns one line per column that had coercions or normalizations.
func (r *ValidationReport) Summary() []string {
	var lines []string
	for _, c := range r.Columns {
		if c.Coerced == 0 && c.Normalized == 0 {
			continue
		}
		line := fmt.Sprintf("%s (%s): %d coerced to null, %d normalized of %d", c.Column, c.Type, c.Coerced, c.Normalized, c.Total)
		if len(c.Samples) > 0 {
			line += fmt.Sprintf(" e.g. %q", c.Samples)
		}
		lines = append(lines, line)
	}
	return lines
}

// recordEmpty counts an empty source value.
func (c *ColumnReport) recordEmpty() {
	c.Total++
	c.Empty++
}

// recordCoerced counts an invalid source value that became null.
func (c *ColumnReport) recordCoerced(raw string) {
	c.Total++
	c.Coerced++
	if len(c.Samples) < maxCoercionSamples {
		c.Samples = append(c.Samples, raw)
	}
}

// recordValid counts a value that survived coercion.
func (c *ColumnReport) recordValid() {
	c.Total++
	c.Valid++
}

// recordNumber tracks a valid numeric value for the summary.
func (c *ColumnReport) recordNumber(f float64) {
	c.numbers = append(c.numbers, f)
}

// finalize computes the numeric summary from the collected values.
func (c *ColumnReport) finalize() {
	if len(c.numbers) == 0 {
		return
	}
	if v, err := stats.Min(c.numbers); err == nil {
		c.Min = &v
	}
	if v, err := stats.Max(c.numbers); err == nil {
		c.Max = &v
	}
	if v, err := stats.Mean(c.numbers); err == nil {
		c.Mean = &v
	}
	if v, err := stats.Median(c.numbers); err == nil {
		c.Median = &v
	}
	c.numbers = nil
}
