package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/planload/internal/core"
)

// SlogObserver forwards pipeline progress to a structured logger.
// Progress lines are logged at info level; table previews are logged one
// row per entry at debug level unless Verbose is set.
type SlogObserver struct {
	Logger  *slog.Logger
	Verbose bool
}

// NewObserver returns an observer writing to logger (slog.Default when nil).
func NewObserver(logger *slog.Logger, verbose bool) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{Logger: logger, Verbose: verbose}
}

// LogLine implements core.Observer.
func (o *SlogObserver) LogLine(msg string) {
	o.Logger.Info(msg)
}

// ShowPreview implements core.Observer.
func (o *SlogObserver) ShowPreview(t *core.CleanTable) {
	if t == nil {
		return
	}
	level := slog.LevelDebug
	if o.Verbose {
		level = slog.LevelInfo
	}

	header := strings.Join(t.ColumnNames(), " | ")
	o.Logger.Log(context.Background(), level, "preview", "columns", header, "rows", len(t.Rows))
	for i, row := range t.Rows {
		o.Logger.Log(context.Background(), level, "preview row", "n", i+1, "values", FormatRow(row))
	}
}

// FormatRow renders cell values for display: nil as NULL, dates without a time.
func FormatRow(row []any) string {
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = FormatValue(v)
	}
	return strings.Join(cells, " | ")
}

// FormatValue renders a single cell value.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

var _ core.Observer = (*SlogObserver)(nil)
