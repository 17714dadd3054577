package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/planload/internal/core"
)

const cliJobs = `
jobs:
  - name: centers
    group: ref
    source: {path: centers.csv}
    table: centers
    columns:
      center_id: VARCHAR
      budget: DOUBLE
derived:
  - name: big_centers
    table: big_centers
    sql: SELECT center_id FROM plan.centers WHERE budget > 100
    depends_on: [centers]
`

// setupCLI writes a job file and points the environment at a temp database.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "centers.csv"),
		[]byte("center_id,budget\nC1,50\nC2,\"$1,200\"\nC3,n/a\n"), 0o644))
	jobFile := filepath.Join(dir, "jobs.yaml")
	require.NoError(t, os.WriteFile(jobFile, []byte(cliJobs), 0o644))

	t.Setenv("STORE_DRIVER", "duckdb")
	t.Setenv("STORE_SCHEMA", "plan")
	t.Setenv("DUCKDB_PATH", filepath.Join(dir, "db", "plan.duckdb"))
	t.Setenv("JOBS_FILE", jobFile)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_RunThenPreview(t *testing.T) {
	dir := setupCLI(t)

	out, err := execute(t, dir, "run")
	require.NoError(t, err, out)
	assert.Contains(t, out, "centers")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "big_centers")

	out, err = execute(t, dir, "preview", "centers", "--limit", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "center_id")
	assert.Contains(t, out, "C1")
	assert.Contains(t, out, "(2 rows)")

	out, err = execute(t, dir, "preview", "plan.big_centers")
	require.NoError(t, err, out)
	assert.Contains(t, out, "C2")
	assert.Contains(t, out, "(1 rows)")
}

func TestCLI_RunGroup(t *testing.T) {
	dir := setupCLI(t)

	out, err := execute(t, dir, "run", "--group", "ref")
	require.NoError(t, err, out)
	assert.Contains(t, out, "big_centers")

	_, err = execute(t, dir, "run", "--group", "nope")
	assert.ErrorIs(t, err, core.ErrUnknownJob)
}

func TestCLI_Errors(t *testing.T) {
	dir := setupCLI(t)

	_, err := execute(t, dir, "run", "nope")
	assert.ErrorIs(t, err, core.ErrUnknownJob)

	_, err = execute(t, dir, "preview", "centers")
	assert.ErrorIs(t, err, core.ErrUnknownTable, "table was never loaded")

	_, err = execute(t, dir, "preview")
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "sqlite")
	_, err = execute(t, dir, "jobs")
	assert.Error(t, err)
}

func TestCLI_InvalidJobFileShowsCause(t *testing.T) {
	dir := setupCLI(t)
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
jobs:
  - name: centers
    source: {path: centers.csv}
    table: centers
    columns:
      center_id: VARCHR
`), 0o644))

	_, err := execute(t, dir, "--jobs", bad, "jobs")
	require.Error(t, err)

	var buf bytes.Buffer
	reportError(&buf, err)
	assert.Contains(t, buf.String(), `column "center_id"`)
	assert.Contains(t, buf.String(), `unsupported column type "VARCHR"`)
	assert.NotContains(t, buf.String(), "ERR000")
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("job centers: %w: missing declared columns budget", core.ErrSchemaMismatch))

	out := buf.String()
	assert.Contains(t, out, "Error: The file's columns do not match the job's columns (Code: VAL001)")
	assert.Contains(t, out, "Detail: job centers: schema mismatch: missing declared columns budget")
}

func TestCLI_Jobs(t *testing.T) {
	dir := setupCLI(t)

	out, err := execute(t, dir, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "centers")
	assert.Contains(t, out, "plan.centers")
	assert.Contains(t, out, "DERIVED")
	assert.Contains(t, out, "big_centers")
}

func TestCLI_JobFileFlag(t *testing.T) {
	dir := setupCLI(t)
	t.Setenv("JOBS_FILE", filepath.Join(dir, "elsewhere.yaml"))

	_, err := execute(t, dir, "jobs")
	require.Error(t, err)

	out, err := execute(t, dir, "--jobs", filepath.Join(dir, "jobs.yaml"), "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "plan.centers")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, &core.CleanTable{
		Columns: []core.ColumnDef{{Name: "id"}, {Name: "name"}},
		Rows:    [][]any{{int64(1), "a"}, {int64(22), nil}},
	})

	assert.Equal(t, "id  name\n1   a\n22  NULL\n(2 rows)\n", buf.String())
}
