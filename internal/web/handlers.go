package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/logging"
)

// MaxPreviewRows caps the limit query parameter of table previews.
const MaxPreviewRows = 1000

// columnView is the JSON form of a declared column.
type columnView struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// jobView is the JSON form of a configured job.
type jobView struct {
	Name              string       `json:"name"`
	Group             string       `json:"group,omitempty"`
	Source            string       `json:"source"`
	Sheet             string       `json:"sheet,omitempty"`
	Table             string       `json:"table"`
	Mode              string       `json:"mode"`
	AllowExtraColumns bool         `json:"allow_extra_columns"`
	Unpivot           bool         `json:"unpivot"`
	Columns           []columnView `json:"columns"`
}

// derivedView is the JSON form of a derived table.
type derivedView struct {
	Name        string   `json:"name"`
	Table       string   `json:"table"`
	StampColumn string   `json:"stamp_column,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

type jobsResponse struct {
	Jobs    []jobView     `json:"jobs"`
	Derived []derivedView `json:"derived"`
}

type previewResponse struct {
	Table   string       `json:"table"`
	Columns []columnView `json:"columns"`
	Rows    [][]any      `json:"rows"`
}

// runRequest is the optional body of POST /api/run.
type runRequest struct {
	Jobs []string `json:"jobs"`
}

func columnViews(cols []core.ColumnDef) []columnView {
	views := make([]columnView, len(cols))
	for i, c := range cols {
		views[i] = columnView{Name: c.Name, Type: c.Type.Name}
	}
	return views
}

// handleHealth reports liveness and run slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status": "ok",
		"jobs":   s.service.Registry().Count(),
		"runs":   s.service.Limiter().Status(),
	})
}

// handleListJobs returns every configured job and derived table.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	resp := jobsResponse{Jobs: []jobView{}, Derived: []derivedView{}}

	group := r.URL.Query().Get("group")
	jobs := s.service.Jobs()
	if group != "" {
		jobs = s.service.Registry().ByGroup(group)
	}

	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobView{
			Name:              j.Name,
			Group:             j.Group,
			Source:            j.Source.Path,
			Sheet:             j.Source.Sheet,
			Table:             j.Table.String(),
			Mode:              string(j.Mode),
			AllowExtraColumns: j.AllowExtraColumns,
			Unpivot:           j.Unpivot != nil,
			Columns:           columnViews(j.Condition),
		})
	}
	for _, d := range s.service.Registry().Derived() {
		resp.Derived = append(resp.Derived, derivedView{
			Name:        d.Name,
			Table:       d.Table.String(),
			StampColumn: d.StampColumn,
			DependsOn:   d.DependsOn,
		})
	}

	render.JSON(w, r, resp)
}

// handleRunJob runs a single job synchronously and returns its result.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logger := logging.WithFields(r.Context(), "job", name)
	logger.Info("run requested")

	res, err := s.service.RunJob(r.Context(), name)
	if err != nil {
		var result any
		if res != nil {
			result = res
		}
		respondError(w, r, err, result)
		return
	}

	logger.Info("run finished", "run_id", res.RunID, "rows", res.Rows)
	render.JSON(w, r, res)
}

// handleRunAll runs the named jobs (all jobs when the body is empty) and
// rebuilds the derived tables that depend on them.
func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			respondBadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}
	}

	logging.WithFields(r.Context(), "jobs", req.Jobs).Info("batch requested")

	batch, err := s.service.RunJobs(r.Context(), req.Jobs)
	if err != nil {
		var result any
		if batch != nil {
			result = batch
		}
		respondError(w, r, err, result)
		return
	}

	render.JSON(w, r, batch)
}

// handlePreview returns the first rows of a loaded table.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPreviewRows {
			respondBadRequest(w, r, "limit must be between 1 and "+strconv.Itoa(MaxPreviewRows))
			return
		}
		limit = n
	}

	t, err := s.service.Preview(r.Context(), table, limit)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}

	rows := t.Rows
	if rows == nil {
		rows = [][]any{}
	}
	render.JSON(w, r, previewResponse{
		Table:   table,
		Columns: columnViews(t.Columns),
		Rows:    rows,
	})
}
