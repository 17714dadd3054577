// Package jobs loads the job file that configures the pipeline.
//
// The file is YAML. Column declarations are a mapping whose order is the
// destination column order:
//
//	schema: plan
//	jobs:
//	  - name: kpi_fy
//	    source: {path: data/KPI_FY.xlsm, sheet: Data to DB}
//	    table: KPI_FY
//	    columns:
//	      Fiscal_Year: INTEGER
//	      Center_ID: VARCHAR
//	derived:
//	  - name: kpi_fy_final
//	    table: KPI_FY_Final
//	    sql: SELECT * FROM plan.KPI_FY
//	    stamp_column: updated_at
//	    depends_on: [kpi_fy]
package jobs

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is the decoded job file.
type File struct {
	Schema  string        `yaml:"schema"`
	Jobs    []JobSpec     `yaml:"jobs" validate:"required,min=1,dive"`
	Derived []DerivedSpec `yaml:"derived" validate:"dive"`
}

// JobSpec declares one extract-transform-load job.
type JobSpec struct {
	Name              string       `yaml:"name" validate:"required,identifier"`
	Group             string       `yaml:"group"`
	Source            SourceSpec   `yaml:"source"`
	Schema            string       `yaml:"schema"`
	Table             string       `yaml:"table" validate:"required"`
	Mode              string       `yaml:"mode" validate:"omitempty,oneof=replace append"`
	AllowExtraColumns bool         `yaml:"allow_extra_columns"`
	Unpivot           *UnpivotSpec `yaml:"unpivot" validate:"omitempty"`
	Columns           Columns      `yaml:"columns" validate:"required,min=1,dive"`
}

// SourceSpec locates the input file.
type SourceSpec struct {
	Path      string `yaml:"path" validate:"required"`
	Format    string `yaml:"format" validate:"omitempty,oneof=csv excel xlsx xlsm"`
	Sheet     string `yaml:"sheet"`
	Delimiter string `yaml:"delimiter" validate:"omitempty,len=1"`
}

// UnpivotSpec melts wide value columns into name/value rows.
type UnpivotSpec struct {
	IDColumns       []string `yaml:"id_columns"`
	ValueColumns    []string `yaml:"value_columns" validate:"required,min=1"`
	NameColumn      string   `yaml:"name_column" validate:"required"`
	ValueColumn     string   `yaml:"value_column" validate:"required"`
	PrefixColumn    string   `yaml:"prefix_column"`
	PrefixSeparator string   `yaml:"prefix_separator" validate:"required_with=PrefixColumn"`
}

// DerivedSpec declares a table rebuilt from a query after the loads.
type DerivedSpec struct {
	Name        string   `yaml:"name" validate:"required,identifier"`
	Schema      string   `yaml:"schema"`
	Table       string   `yaml:"table" validate:"required"`
	SQL         string   `yaml:"sql" validate:"required"`
	StampColumn string   `yaml:"stamp_column"`
	DependsOn   []string `yaml:"depends_on"`
}

// ColumnSpec is one declared column.
type ColumnSpec struct {
	Name string `validate:"required"`
	Type string `validate:"required"`
}

// Columns is an ordered column declaration, written as a YAML mapping.
type Columns []ColumnSpec

// UnmarshalYAML decodes a mapping node while keeping key order.
func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: columns must be a mapping of name to type", node.Line)
	}

	cols := make(Columns, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: column entries must be name: TYPE", key.Line)
		}
		cols = append(cols, ColumnSpec{Name: key.Value, Type: val.Value})
	}
	*c = cols
	return nil
}
