package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	finished map[RunPhase]int
	rows     map[string]int64
	coerced  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		finished: make(map[RunPhase]int),
		rows:     make(map[string]int64),
		coerced:  make(map[string]int),
	}
}

func (r *countingRecorder) RunFinished(job string, phase RunPhase, d time.Duration) {
	r.finished[phase]++
}

func (r *countingRecorder) RowsLoaded(table string, n int64) {
	r.rows[table] += n
}

func (r *countingRecorder) ValuesCoerced(table, column string, n int) {
	r.coerced[table+"."+column] += n
}

func ordersJob(t *testing.T, path string) Job {
	return Job{
		Name:      "orders",
		Source:    SourceFile{Path: path},
		Table:     planOrders,
		Mode:      ModeReplace,
		Condition: mustCondition(t, "item", "VARCHAR", "quantity", "DOUBLE"),
	}
}

func TestPipeline_Run(t *testing.T) {
	path := writeFile(t, "orders.csv", "item,quantity\nwidget,3\ngadget,No\n")
	store := newFakeStore()
	obs := &recordingObserver{}
	rec := newCountingRecorder()

	p := &Pipeline{Open: store.Open, Observer: obs, Recorder: rec}
	res, err := p.Run(context.Background(), ordersJob(t, path))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, PhaseComplete, res.Phase)
	assert.Equal(t, int64(2), res.Rows)
	assert.True(t, res.Created)
	assert.Equal(t, 1, res.Report.Column("quantity").Coerced)

	assert.Equal(t, [][]any{{"widget", 3.0}, {"gadget", nil}}, store.table(planOrders).rows)
	assert.True(t, store.allClosed())

	require.Len(t, obs.previews, 1)
	assert.Len(t, obs.previews[0].Rows, 2)
	assert.True(t, obs.contains("Read 2 rows"))

	assert.Equal(t, 1, rec.finished[PhaseComplete])
	assert.Equal(t, int64(2), rec.rows["plan.orders"])
	assert.Equal(t, 1, rec.coerced["plan.orders.quantity"])
}

func TestPipeline_RunWithUnpivot(t *testing.T) {
	path := writeFile(t, "kpi.csv", "Center_ID,Budget - Q1,Actual - Q1\nC1,100,90\n")
	store := newFakeStore()

	job := Job{
		Name:   "kpi",
		Source: SourceFile{Path: path},
		Table:  TableRef{Schema: "plan", Name: "kpi"},
		Unpivot: &Unpivot{
			IDColumns:       []string{"Center_ID"},
			ValueColumns:    []string{"Budget - Q1", "Actual - Q1"},
			NameColumn:      "KPI",
			ValueColumn:     "Amount",
			PrefixColumn:    "Amount Type",
			PrefixSeparator: " - ",
		},
		Condition: mustCondition(t, "Center_ID", "VARCHAR", "KPI", "VARCHAR", "Amount", "DECIMAL(18,2)", "Amount Type", "VARCHAR"),
	}

	res, err := (&Pipeline{Open: store.Open}).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, []any{"C1", "Actual - Q1", 90.0, "Actual"}, store.table(job.Table).rows[1])
}

func TestPipeline_FailuresStopTheRun(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		file      string
		wantErr   error
		wantPhase string
	}{
		{name: "unsupported format", file: "orders.json", content: "{}", wantErr: ErrUnsupportedFormat, wantPhase: "reading"},
		{name: "empty file", file: "orders.csv", content: "", wantErr: ErrFileRead, wantPhase: "reading"},
		{name: "undeclared column", file: "orders.csv", content: "item,quantity,price\na,1,2\n", wantErr: ErrSchemaMismatch, wantPhase: "transforming"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			store := newFakeStore()
			rec := newCountingRecorder()
			obs := &recordingObserver{}

			res, err := (&Pipeline{Open: store.Open, Recorder: rec, Observer: obs}).Run(context.Background(), ordersJob(t, path))
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, res)
			assert.Equal(t, PhaseFailed, res.Phase)
			assert.NotEmpty(t, res.Error)
			assert.True(t, obs.contains("failed while "+tt.wantPhase))
			assert.Empty(t, store.handles, "nothing is loaded after a failure")
			assert.Equal(t, 1, rec.finished[PhaseFailed])
		})
	}
}

func TestPipeline_LoadFailure(t *testing.T) {
	path := writeFile(t, "orders.csv", "item,quantity\nwidget,3\n")
	store := newFakeStore()
	store.openErr = assert.AnError

	res, err := (&Pipeline{Open: store.Open}).Run(context.Background(), ordersJob(t, path))
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, PhaseFailed, res.Phase)
}
