package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// JSONGzip reads gzip-compressed JSON arrays of records shaped like
// {"fields": {...}}, the export format of the open data portal.
//
// Numbers become numbers, strings text and null an explicit null; any other
// JSON value is kept as its compact text. The header is the union of the
// record keys in first-seen order.
type JSONGzip struct {
	Path string

	discovery *Discovery
}

// NewJSONGzip creates a gzip JSON records source
func NewJSONGzip(paths *config.Paths, path string) *JSONGzip {
	return &JSONGzip{Path: path, discovery: newDiscovery(paths)}
}

// Name returns the source type
func (j *JSONGzip) Name() string { return "json.gz" }

// Load implements Source
func (j *JSONGzip) Load(ctx context.Context) (*table.Table, error) {
	return loadFiles(ctx, j.Name(), j.discovery, j.Path, ".json.gz", headerUnion, j.readFile)
}

type jsonRecord struct {
	Fields orderedFields `json:"fields"`
}

// orderedFields is a JSON object decoded with its keys in document order.
// A repeated key keeps its first position and its last value.
type orderedFields struct {
	keys   []string
	values map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler
func (o *orderedFields) UnmarshalJSON(data []byte) error {
	o.keys, o.values = nil, make(map[string]json.RawMessage)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields must be an object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if _, seen := o.values[key]; !seen {
			o.keys = append(o.keys, key)
		}
		o.values[key] = raw
	}
	_, err = dec.Token()
	return err
}

func (j *JSONGzip) readFile(_ context.Context, path string) (fileContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	var records []jsonRecord
	if err := json.NewDecoder(gz).Decode(&records); err != nil {
		return fileContent{}, fmt.Errorf("failed to decode records: %w", err)
	}

	var content fileContent
	for i, rec := range records {
		keys := rec.Fields.keys
		content.header = table.UnionColumns(content.header, keys...)

		row := make(table.Row, len(keys))
		for _, k := range keys {
			v, err := decodeJSONValue(rec.Fields.values[k])
			if err != nil {
				return fileContent{}, fmt.Errorf("record %d field %q: %w", i, k, err)
			}
			row[k] = v
		}
		content.rows = append(content.rows, row)
	}
	return content, nil
}

// decodeJSONValue converts one raw JSON value into a table value
func decodeJSONValue(raw json.RawMessage) (table.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return table.Null(), nil
	}
	switch c := raw[0]; {
	case c == 'n':
		return table.Null(), nil
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return table.Value{}, err
		}
		return table.Text(s), nil
	case c == '-' || (c >= '0' && c <= '9'):
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return table.Value{}, err
		}
		return table.Number(f), nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return table.Value{}, err
		}
		return table.Text(buf.String()), nil
	}
}
