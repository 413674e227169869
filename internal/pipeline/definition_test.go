package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/internal/table"
)

const synopYAML = `
name: synop-regions
source:
  type: csv.gz
  path: synop
transforms:
  - type: project
    columns: [numer_sta, date, t]
  - type: drop_missing
    sentinels: [mq, null]
  - type: filter
    predicates:
      - column: t
        operator: ">"
        value: "270"
        type: float
  - type: rolling_mean
    column: t
    window: 3
    order_by: date
sink:
  type: csv
  path: out/synop.csv
  separator: ","
  bom: true
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinition([]byte(synopYAML), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "synop-regions", def.Name)
	assert.Equal(t, "csv.gz", def.Source.Type)
	require.Len(t, def.Transforms, 4)
	assert.Equal(t, []string{"numer_sta", "date", "t"}, def.Transforms[0].Columns)
	assert.Equal(t, []interface{}{"mq", nil}, def.Transforms[1].Sentinels)
	assert.Equal(t, PredicateSpec{Column: "t", Operator: ">", Value: "270", Type: "float"}, def.Transforms[2].Predicates[0])
	assert.Equal(t, 3, def.Transforms[3].Window)
	assert.Equal(t, ",", def.Sink.Separator)
	assert.True(t, def.Sink.BOM)
}

func TestParseDefinitionJSON(t *testing.T) {
	data := `{
		"name": "join",
		"source": {"type": "csv", "path": "left.csv"},
		"transforms": [{
			"type": "join",
			"right": {"type": "csv", "path": "right.csv"},
			"left_pivots": ["A", "B"],
			"right_pivots": ["A", "B"],
			"mode": "left"
		}],
		"sink": {"type": "parquet", "path": "out.parquet"}
	}`
	def, err := ParseDefinition([]byte(data), "json")
	require.NoError(t, err)
	require.NotNil(t, def.Transforms[0].Right)
	assert.Equal(t, "right.csv", def.Transforms[0].Right.Path)
	assert.Equal(t, "left", def.Transforms[0].Mode)
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name  string
		def   Definition
		field string
	}{
		{
			name:  "missing name",
			def:   Definition{Source: StageSpec{Type: "csv"}, Sink: StageSpec{Type: "csv"}},
			field: "name",
		},
		{
			name:  "missing source type",
			def:   Definition{Name: "x", Sink: StageSpec{Type: "csv"}},
			field: "source.type",
		},
		{
			name: "long separator",
			def: Definition{Name: "x", Source: StageSpec{Type: "csv"},
				Sink: StageSpec{Type: "csv", Separator: ";;"}},
			field: "sink.separator",
		},
		{
			name: "negative window",
			def: Definition{Name: "x", Source: StageSpec{Type: "csv"}, Sink: StageSpec{Type: "csv"},
				Transforms: []StageSpec{{Type: "rolling_mean", Window: -1}}},
			field: "transforms[0].window",
		},
		{
			name: "predicate without column",
			def: Definition{Name: "x", Source: StageSpec{Type: "csv"}, Sink: StageSpec{Type: "csv"},
				Transforms: []StageSpec{{Type: "filter", Predicates: []PredicateSpec{{Operator: "="}}}}},
			field: "transforms[0].predicates[0].column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			require.Error(t, err)

			var pErr *Error
			require.True(t, errors.As(err, &pErr))
			assert.Equal(t, ErrorTypeValidation, pErr.Type)
			assert.Equal(t, tt.field, pErr.Context["field"])
		})
	}
}

func TestDefinitionCheckPaths(t *testing.T) {
	local := Definition{
		Name:   "local",
		Source: StageSpec{Type: "csv", Path: "synop/2020"},
		Transforms: []StageSpec{
			{Type: "join", Right: &StageSpec{Type: "csv", Path: "stations.csv"}},
			{Type: "spatial_aggregate", Reference: "ref/stations.csv"},
		},
		Sink: StageSpec{Type: "csv", Path: "out/regions.csv"},
	}
	require.NoError(t, local.CheckPaths())

	tests := []struct {
		name  string
		edit  func(d *Definition)
		field string
	}{
		{"absolute source", func(d *Definition) { d.Source.Path = "/etc/passwd" }, "source.path"},
		{"parent sink", func(d *Definition) { d.Sink.Path = "../outside.csv" }, "sink.path"},
		{"climbing sink", func(d *Definition) { d.Sink.Path = "out/../../x.csv" }, "sink.path"},
		{"join right", func(d *Definition) { d.Transforms[0].Right.Path = "/data/x.csv" }, "transforms[0].right.path"},
		{"reference", func(d *Definition) { d.Transforms[1].Reference = "../../ref.csv" }, "transforms[1].reference"},
		{"credentials", func(d *Definition) { d.Source.CredentialsFile = "/root/creds.json" }, "source.credentials_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			right := *local.Transforms[0].Right
			d := local
			d.Transforms = []StageSpec{local.Transforms[0], local.Transforms[1]}
			d.Transforms[0].Right = &right
			tt.edit(&d)

			err := d.CheckPaths()
			require.Error(t, err)
			var pErr *Error
			require.True(t, errors.As(err, &pErr))
			assert.Equal(t, ErrorTypeValidation, pErr.Type)
			assert.Equal(t, tt.field, pErr.Context["field"])
		})
	}
}

func TestParseDefinitionErrors(t *testing.T) {
	_, err := ParseDefinition([]byte("name: [unterminated"), "yaml")
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))

	_, err = ParseDefinition([]byte("{"), "json")
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))

	_, err = ParseDefinition([]byte("{}"), "toml")
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(synopYAML), 0644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "synop-regions", def.Name)

	jsonPath := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"j","source":{"type":"csv"},"sink":{"type":"csv"}}`), 0644))
	def, err = LoadDefinition(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", def.Name)

	_, err = LoadDefinition(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSentinelValues(t *testing.T) {
	values, err := sentinelValues([]interface{}{nil, "NA", 9999, float64(-1.5)})
	require.NoError(t, err)
	assert.Equal(t, []table.Value{table.Null(), table.Text("NA"), table.Number(9999), table.Number(-1.5)}, values)

	_, err = sentinelValues([]interface{}{true})
	assert.Error(t, err)
}
