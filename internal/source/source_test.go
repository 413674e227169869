package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	writeFile(t, path, buf.String())
}

func TestCSVLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stations.csv"), "\xef\xbb\xbfID;Nom;Altitude\n07005;ABBEVILLE;69\n07015;LILLE-LESQUIN\n07020;LA HAGUE;6;extra\n")

	src := NewCSV(&config.Paths{DataDir: dir}, "stations.csv", 0)
	assert.Equal(t, "csv", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Nom", "Altitude"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())

	assert.Equal(t, table.Row{"ID": table.Text("07005"), "Nom": table.Text("ABBEVILLE"), "Altitude": table.Text("69")}, tbl.Row(0))
	assert.True(t, tbl.Row(1).Get("Altitude").IsNull())
	assert.Len(t, tbl.Row(2), 3)
}

func TestCSVLoadSeparator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.csv")
	writeFile(t, path, "ID,Region\n07005,Hauts-de-France\n")

	tbl, err := NewCSV(nil, path, ',').Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Region"}, tbl.Columns())
	assert.Equal(t, "Hauts-de-France", tbl.Row(0).Get("Region").String())
}

func TestCSVGzipDirectory(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "synop.202002.csv.gz"), "numer_sta;t\n07005;281.5\n")
	writeGzip(t, filepath.Join(dir, "synop.202001.csv.gz"), "numer_sta;t\n07005;280.1\n07015;279.9\n")
	writeFile(t, filepath.Join(dir, "README.txt"), "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.csv.gz"), 0755))

	src := NewCSVGzip(&config.Paths{DataDir: dir}, ".", 0)
	assert.Equal(t, "csv.gz", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())
	// files are read in lexical order
	assert.Equal(t, "280.1", tbl.Row(0).Get("t").String())
	assert.Equal(t, "279.9", tbl.Row(1).Get("t").String())
	assert.Equal(t, "281.5", tbl.Row(2).Get("t").String())
}

func TestCSVLoadErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := NewCSV(nil, filepath.Join(dir, "missing.csv"), 0).Load(ctx)
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "data.txt"), "a;b\n")
	_, err = NewCSV(nil, dir, 0).Load(ctx)
	assert.ErrorIs(t, err, ErrNoFiles)

	writeFile(t, filepath.Join(dir, "plain.csv.gz"), "not gzip")
	_, err = NewCSVGzip(nil, filepath.Join(dir, "plain.csv.gz"), 0).Load(ctx)
	assert.Error(t, err)

	writeFile(t, filepath.Join(dir, "dup.csv"), "a;a\n1;2\n")
	_, err = NewCSV(nil, filepath.Join(dir, "dup.csv"), 0).Load(ctx)
	assert.ErrorIs(t, err, table.ErrSchema)
}

func TestCSVLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.csv"), "x\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSV(nil, dir, 0).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJSONGzipLoad(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "a.json.gz"), `[
		{"fields": {"tc": 12.5, "date": "2020-01-01T00:00:00+00:00", "numer_sta": "07005"}},
		{"fields": {"numer_sta": "07015", "pres": null, "tags": ["a", "b"], "ok": true}}
	]`)
	writeGzip(t, filepath.Join(dir, "b.json.gz"), `[{"fields": {"numer_sta": "07020", "u": 80}}]`)

	src := NewJSONGzip(&config.Paths{DataDir: dir}, ".")
	assert.Equal(t, "json.gz", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tc", "date", "numer_sta", "pres", "tags", "ok", "u"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())

	assert.Equal(t, table.Number(12.5), tbl.Row(0).Get("tc"))
	assert.Equal(t, table.Text("07005"), tbl.Row(0).Get("numer_sta"))
	assert.True(t, tbl.Row(1).Get("pres").IsNull())
	assert.Equal(t, table.Text(`["a","b"]`), tbl.Row(1).Get("tags"))
	assert.Equal(t, table.Text("true"), tbl.Row(1).Get("ok"))
	assert.False(t, tbl.Row(1).Has("tc"))
	assert.Equal(t, table.Number(80), tbl.Row(2).Get("u"))
}

func TestJSONGzipKeyOrder(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "a.json.gz"), `[
		{"fields": {"z": 1, "a": 2, "m": {"y": 1, "b": 2}, "z": 3}},
		{"fields": {"b": "x", "a": 4}},
		{"fields": null}
	]`)

	tbl, err := NewJSONGzip(nil, filepath.Join(dir, "a.json.gz")).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m", "b"}, tbl.Columns())
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, table.Number(3), tbl.Row(0).Get("z"))
	assert.Equal(t, table.Text(`{"y":1,"b":2}`), tbl.Row(0).Get("m"))
	assert.Equal(t, 0, len(tbl.Row(2)))
}

func TestJSONGzipInvalid(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "bad.json.gz"), `{"fields": {}}`)

	_, err := NewJSONGzip(nil, filepath.Join(dir, "bad.json.gz")).Load(context.Background())
	assert.Error(t, err)
}

func TestDiscoveryFindFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.CSV"), "x")
	writeFile(t, filepath.Join(dir, "a.csv"), "x")
	writeFile(t, filepath.Join(dir, "c.csv.gz"), "x")
	writeFile(t, filepath.Join(dir, "sub", "d.csv"), "x")

	d := NewDiscovery(dir)

	files, err := d.FindFiles(".", ".csv")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.csv", files[0].Name)
	assert.Equal(t, "b.CSV", files[1].Name)
	assert.Equal(t, filepath.Join(dir, "a.csv"), files[0].Path)

	single, err := d.FindFiles("c.csv.gz", ".csv")
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, int64(1), single[0].Size)

	_, err = d.FindFiles("sub", ".json.gz")
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = d.FindFiles("nope", ".csv")
	assert.Error(t, err)
}
