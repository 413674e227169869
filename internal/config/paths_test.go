package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name       string
		cfg        PathsConfig
		wantData   string
		wantOutput string
	}{
		{
			name:       "empty means working directory",
			cfg:        PathsConfig{},
			wantData:   wd,
			wantOutput: wd,
		},
		{
			name:       "relative directories",
			cfg:        PathsConfig{DataDir: "data", OutputDir: "out"},
			wantData:   filepath.Join(wd, "data"),
			wantOutput: filepath.Join(wd, "out"),
		},
		{
			name:       "absolute directories",
			cfg:        PathsConfig{DataDir: filepath.Join(wd, "a"), OutputDir: filepath.Join(wd, "b")},
			wantData:   filepath.Join(wd, "a"),
			wantOutput: filepath.Join(wd, "b"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPaths(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, p.DataDir)
			assert.Equal(t, tt.wantOutput, p.OutputDir)
		})
	}
}

func TestPathsResolve(t *testing.T) {
	base := t.TempDir()
	p := &Paths{DataDir: filepath.Join(base, "in"), OutputDir: filepath.Join(base, "out")}

	assert.Equal(t, filepath.Join(base, "in", "synop.csv"), p.Input("synop.csv"))
	assert.Equal(t, filepath.Join(base, "out", "regions.csv"), p.Output("regions.csv"))

	abs := filepath.Join(base, "elsewhere.csv")
	assert.Equal(t, abs, p.Input(abs))
	assert.Equal(t, abs, p.Output(abs))
	assert.Equal(t, "", p.Input(""))

	bare := &Paths{}
	assert.Equal(t, "x.csv", bare.Input("x.csv"))
}

func TestPathsEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	p := &Paths{DataDir: filepath.Join(base, "in"), OutputDir: filepath.Join(base, "nested", "out")}

	require.NoError(t, p.EnsureDirectories())
	assert.DirExists(t, p.DataDir)
	assert.DirExists(t, p.OutputDir)
	assert.True(t, FileExists(p.OutputDir))
	assert.False(t, FileExists(filepath.Join(base, "missing")))
}

func TestConfigGetPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = t.TempDir()

	p, err := cfg.GetPaths()
	require.NoError(t, err)
	assert.Equal(t, cfg.Paths.DataDir, p.DataDir)
}

func TestCheckLocal(t *testing.T) {
	for _, p := range []string{"", "obs.csv", "synop/2020", "out/./a.csv", "a/../b.csv"} {
		assert.NoError(t, CheckLocal(p), p)
	}
	for _, p := range []string{"/etc/passwd", "..", "../x.csv", "a/../../x.csv"} {
		assert.Error(t, CheckLocal(p), p)
	}
}
