package core

// pipeline.go runs one job through extract, reshape, transform and load.
//
// Stages run strictly in sequence and the first failure ends the run; nothing
// is retried. Progress goes to the injected Observer as log lines plus a
// snapshot of the clean table, and measurements go to the Recorder.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultPreviewRows is how many clean rows a run hands to the Observer.
const DefaultPreviewRows = 5

// Pipeline executes jobs against one destination.
type Pipeline struct {
	Open        Opener
	Observer    Observer
	Recorder    Recorder
	PreviewRows int
}

// Run executes job and returns its result. The result is non-nil even on
// failure; its Phase and Error describe where the run stopped.
func (p *Pipeline) Run(ctx context.Context, job Job) (*RunResult, error) {
	obs := p.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	rec := p.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	previewRows := p.PreviewRows
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}

	start := time.Now()
	res := &RunResult{
		RunID: uuid.New().String(),
		Job:   job.Name,
		Table: job.Table.String(),
		Phase: PhaseStarting,
	}

	fail := func(err error) (*RunResult, error) {
		failedIn := res.Phase
		res.Phase = PhaseFailed
		res.Error = err.Error()
		res.Duration = time.Since(start)
		rec.RunFinished(job.Name, PhaseFailed, res.Duration)
		logf(obs, "Run %s of %s failed while %s: %v", res.RunID, job.Name, failedIn, err)
		return res, fmt.Errorf("job %s: %w", job.Name, err)
	}

	logf(obs, "Run %s of %s started", res.RunID, job.Name)

	res.Phase = PhaseReading
	raw, err := Extract(ctx, job.Source)
	if err != nil {
		return fail(err)
	}
	logf(obs, "Read %d rows and %d columns from %s", len(raw.Rows), len(raw.Columns), job.Source.Path)

	res.Phase = PhaseTransforming
	if job.Unpivot != nil {
		raw, err = job.Unpivot.Apply(raw)
		if err != nil {
			return fail(err)
		}
		logf(obs, "Unpivoted %d value columns into %d rows", len(job.Unpivot.ValueColumns), len(raw.Rows))
	}

	clean, report, err := Transform(raw, job.Condition, TransformOptions{AllowExtraColumns: job.AllowExtraColumns})
	if err != nil {
		return fail(err)
	}
	res.Report = report
	if len(report.Ignored) > 0 {
		logf(obs, "Ignored undeclared columns: %v", report.Ignored)
	}
	for _, line := range report.Summary() {
		obs.LogLine(line)
	}
	for _, c := range report.Columns {
		if c.Coerced > 0 {
			rec.ValuesCoerced(res.Table, c.Column, c.Coerced)
		}
	}
	obs.ShowPreview(clean.Head(previewRows))

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.Phase = PhaseLoading
	loader := &Loader{Mode: job.Mode, Observer: obs}
	loaded, err := loader.Load(ctx, p.Open, job.Table, clean, job.Condition)
	if err != nil {
		return fail(err)
	}

	res.Phase = PhaseComplete
	res.Rows = loaded.Rows
	res.Created = loaded.Created
	res.Duration = time.Since(start)
	rec.RowsLoaded(res.Table, loaded.Rows)
	rec.RunFinished(job.Name, PhaseComplete, res.Duration)
	logf(obs, "Run %s of %s complete: %d rows in %s", res.RunID, job.Name, res.Rows, res.Duration.Round(time.Millisecond))

	return res, nil
}
