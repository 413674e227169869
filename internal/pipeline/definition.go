package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// Definition describes a pipeline declaratively
type Definition struct {
	Name       string      `json:"name" yaml:"name" validate:"required"`
	Source     StageSpec   `json:"source" yaml:"source"`
	Transforms []StageSpec `json:"transforms,omitempty" yaml:"transforms" validate:"dive"`
	Sink       StageSpec   `json:"sink" yaml:"sink"`
}

// StageSpec is one stage of a definition: a registered type and the
// parameters that type reads. Unused parameters are ignored.
type StageSpec struct {
	Type string `json:"type" yaml:"type" validate:"required"`

	// sources and sinks
	Path      string `json:"path,omitempty" yaml:"path"`
	Separator string `json:"separator,omitempty" yaml:"separator" validate:"omitempty,len=1"`
	BOM       bool   `json:"bom,omitempty" yaml:"bom"`
	Sheet     string `json:"sheet,omitempty" yaml:"sheet"`

	// sheets source
	SpreadsheetID   string `json:"spreadsheet_id,omitempty" yaml:"spreadsheet_id"`
	Range           string `json:"range,omitempty" yaml:"range"`
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file"`
	APIKey          string `json:"api_key,omitempty" yaml:"api_key"`

	// project, center, normalize
	Columns []string `json:"columns,omitempty" yaml:"columns"`

	// filter
	Predicates []PredicateSpec `json:"predicates,omitempty" yaml:"predicates" validate:"dive"`

	// drop_missing; null, strings and numbers
	Sentinels []interface{} `json:"sentinels,omitempty" yaml:"sentinels"`

	// join
	Right       *StageSpec `json:"right,omitempty" yaml:"right"`
	LeftPivots  []string   `json:"left_pivots,omitempty" yaml:"left_pivots"`
	RightPivots []string   `json:"right_pivots,omitempty" yaml:"right_pivots"`
	Mode        string     `json:"mode,omitempty" yaml:"mode"`

	// spatial_aggregate
	Reference      string   `json:"reference,omitempty" yaml:"reference"`
	ReferencePivot string   `json:"reference_pivot,omitempty" yaml:"reference_pivot"`
	Pivot          string   `json:"pivot,omitempty" yaml:"pivot"`
	Scale          string   `json:"scale,omitempty" yaml:"scale"`
	GroupBy        []string `json:"group_by,omitempty" yaml:"group_by"`
	Reducer        string   `json:"reducer,omitempty" yaml:"reducer"`
	Script         string   `json:"script,omitempty" yaml:"script"`

	// rolling_mean, date_window
	Column  string `json:"column,omitempty" yaml:"column"`
	Window  int    `json:"window,omitempty" yaml:"window" validate:"gte=0"`
	OrderBy string `json:"order_by,omitempty" yaml:"order_by"`
	Start   string `json:"start,omitempty" yaml:"start"`
	End     string `json:"end,omitempty" yaml:"end"`

	// format_date
	Formats []DateFormatSpec `json:"formats,omitempty" yaml:"formats" validate:"dive"`
}

// PredicateSpec is one filter predicate
type PredicateSpec struct {
	Column   string `json:"column" yaml:"column" validate:"required"`
	Operator string `json:"operator" yaml:"operator" validate:"required"`
	Value    string `json:"value" yaml:"value"`
	Type     string `json:"type,omitempty" yaml:"type"`
}

// DateFormatSpec rewrites one column from a strftime layout
type DateFormatSpec struct {
	Column string `json:"column" yaml:"column" validate:"required"`
	Format string `json:"format" yaml:"format" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the structure of the definition. Stage types and their
// parameters are checked when the definition is built.
func (d *Definition) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError("", err.Error())
	}

	first := verrs[0]
	field := strings.TrimPrefix(first.Namespace(), "Definition.")
	msg := fmt.Sprintf("%s failed on the %q rule", field, first.Tag())
	if first.Param() != "" {
		msg = fmt.Sprintf("%s failed on the %q rule (%s)", field, first.Tag(), first.Param())
	}
	verr := NewValidationError(field, msg)
	if len(verrs) > 1 {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = strings.TrimPrefix(fe.Namespace(), "Definition.")
		}
		verr.Context["fields"] = fields
	}
	return verr
}

// CheckPaths rejects definitions reading or writing outside the data and
// output directories. Definitions received over the network are checked
// before they are built; local files may use any path.
func (d *Definition) CheckPaths() error {
	if err := d.Source.checkPaths("source"); err != nil {
		return err
	}
	for i := range d.Transforms {
		if err := d.Transforms[i].checkPaths(fmt.Sprintf("transforms[%d]", i)); err != nil {
			return err
		}
	}
	return d.Sink.checkPaths("sink")
}

func (s *StageSpec) checkPaths(field string) error {
	for _, p := range []struct{ name, path string }{
		{"path", s.Path},
		{"reference", s.Reference},
		{"credentials_file", s.CredentialsFile},
	} {
		if err := config.CheckLocal(p.path); err != nil {
			return NewValidationError(field+"."+p.name, err.Error())
		}
	}
	if s.Right != nil {
		return s.Right.checkPaths(field + ".right")
	}
	return nil
}

// ParseDefinition decodes a YAML or JSON definition and validates it
func ParseDefinition(data []byte, format string) (*Definition, error) {
	var def Definition
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, NewValidationError("", fmt.Sprintf("invalid JSON definition: %v", err))
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, NewValidationError("", fmt.Sprintf("invalid YAML definition: %v", err))
		}
	default:
		return nil, NewValidationError("", fmt.Sprintf("unsupported definition format %q", format))
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition reads a definition file; .json files are decoded as JSON,
// anything else as YAML
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return ParseDefinition(data, format)
}

// sentinelValues converts decoded sentinels into table values
func sentinelValues(raw []interface{}) ([]table.Value, error) {
	values := make([]table.Value, 0, len(raw))
	for i, r := range raw {
		switch v := r.(type) {
		case nil:
			values = append(values, table.Null())
		case string:
			values = append(values, table.Text(v))
		case float64:
			values = append(values, table.Number(v))
		case int:
			values = append(values, table.Number(float64(v)))
		case int64:
			values = append(values, table.Number(float64(v)))
		default:
			return nil, fmt.Errorf("sentinel %d: unsupported value %v", i, v)
		}
	}
	return values, nil
}
