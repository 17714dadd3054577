package jobs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/planload/internal/core"
)

// DefaultSchema is used when neither the job nor the file names a schema.
const DefaultSchema = "main"

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierRegex.MatchString(fl.Field().String())
	})
	// Report YAML key names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// LoadFile reads and validates a job file and builds its registry.
// Relative source paths resolve against the file's directory. defaultSchema
// applies to jobs and derived tables when the file sets none.
func LoadFile(path, defaultSchema string) (*core.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}

	reg, err := f.Registry(filepath.Dir(path), defaultSchema)
	if err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes and validates job file content. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, formatValidation(err)
	}
	return &f, nil
}

// Registry converts the file into core jobs and derived tables.
func (f *File) Registry(baseDir, defaultSchema string) (*core.Registry, error) {
	schema := firstNonEmpty(f.Schema, defaultSchema, DefaultSchema)
	reg := core.NewRegistry()

	for _, spec := range f.Jobs {
		job, err := spec.job(baseDir, schema)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", spec.Name, err)
		}
		if err := reg.Register(job); err != nil {
			return nil, err
		}
	}

	for _, spec := range f.Derived {
		d := core.DerivedTable{
			Name:        spec.Name,
			Table:       core.TableRef{Schema: firstNonEmpty(spec.Schema, schema), Name: spec.Table},
			SQL:         spec.SQL,
			StampColumn: spec.StampColumn,
			DependsOn:   spec.DependsOn,
		}
		if err := reg.RegisterDerived(d); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func (s JobSpec) job(baseDir, schema string) (core.Job, error) {
	pairs := make([]string, 0, len(s.Columns)*2)
	for _, c := range s.Columns {
		pairs = append(pairs, c.Name, c.Type)
	}
	cond, err := core.NewColumnCondition(pairs...)
	if err != nil {
		return core.Job{}, err
	}

	path := s.Source.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	src := core.SourceFile{
		Path:   path,
		Format: core.Format(s.Source.Format),
		Sheet:  s.Source.Sheet,
	}
	if s.Source.Delimiter != "" {
		src.Delimiter, _ = utf8.DecodeRuneInString(s.Source.Delimiter)
	}
	if _, err := core.ResolveFormat(src); err != nil {
		return core.Job{}, err
	}

	job := core.Job{
		Name:              s.Name,
		Group:             s.Group,
		Source:            src,
		Table:             core.TableRef{Schema: firstNonEmpty(s.Schema, schema), Name: s.Table},
		Mode:              core.WriteMode(s.Mode),
		AllowExtraColumns: s.AllowExtraColumns,
		Condition:         cond,
	}

	if u := s.Unpivot; u != nil {
		job.Unpivot = &core.Unpivot{
			IDColumns:       u.IDColumns,
			ValueColumns:    u.ValueColumns,
			NameColumn:      u.NameColumn,
			ValueColumn:     u.ValueColumn,
			PrefixColumn:    u.PrefixColumn,
			PrefixSeparator: u.PrefixSeparator,
		}
		if err := job.Unpivot.Validate(); err != nil {
			return core.Job{}, err
		}
	}

	return job, nil
}

// formatValidation flattens validator errors into one readable error.
func formatValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "File.")
		switch fe.Tag() {
		case "required":
			msgs[i] = field + " is required"
		case "required_with":
			msgs[i] = fmt.Sprintf("%s is required when %s is set", field, fe.Param())
		case "oneof":
			msgs[i] = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		case "min":
			msgs[i] = fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
		case "len":
			msgs[i] = fmt.Sprintf("%s must be exactly %s character", field, fe.Param())
		case "identifier":
			msgs[i] = fmt.Sprintf("%s %q may only contain letters, digits, '_', '.' and '-'", field, fe.Value())
		default:
			msgs[i] = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
		}
	}
	return fmt.Errorf("invalid job file:\n  - %s", strings.Join(msgs, "\n  - "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
