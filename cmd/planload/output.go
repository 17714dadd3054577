package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/logging"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTable writes a preview as aligned columns.
func printTable(w io.Writer, t *core.CleanTable) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, strings.Join(t.ColumnNames(), "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = logging.FormatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
}

// printBatch writes one line per job run and derived table.
func printBatch(w io.Writer, b *core.BatchResult) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "JOB\tTABLE\tPHASE\tROWS\tCOERCED\tDURATION")
	for _, r := range b.Runs {
		coerced := 0
		if r.Report != nil {
			coerced = r.Report.TotalCoerced()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.Job, r.Table, r.Phase, r.Rows, coerced, r.Duration.Round(time.Millisecond))
	}
	for _, d := range b.Derived {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t-\t%s\n",
			d.Name, d.Table, "derived", d.Rows, d.Duration.Round(time.Millisecond))
	}
	tw.Flush()

	for _, r := range b.Runs {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.Job, r.Error)
		}
	}
}

// printJobs lists jobs grouped as registered, then derived tables.
func printJobs(w io.Writer, reg *core.Registry) {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "JOB\tGROUP\tTABLE\tMODE\tCOLUMNS\tSOURCE")
	for _, j := range reg.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			j.Name, dash(j.Group), j.Table, j.Mode, len(j.Condition), j.Source.Path)
	}
	tw.Flush()

	derived := reg.Derived()
	if len(derived) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = newTabWriter(w)
	fmt.Fprintln(tw, "DERIVED\tTABLE\tDEPENDS ON")
	for _, d := range derived {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Table, dash(strings.Join(d.DependsOn, ", ")))
	}
	tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
