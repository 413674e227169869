package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths resolves the file paths used by pipeline sources and sinks.
// Absolute paths are used as-is; relative ones are joined to the data
// directory (inputs) or the output directory (outputs).
type Paths struct {
	DataDir   string
	OutputDir string
}

// NewPaths builds Paths from configuration. Directories are made absolute
// against the working directory.
func NewPaths(cfg PathsConfig) (*Paths, error) {
	data, err := absDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	out, err := absDir(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	return &Paths{DataDir: data, OutputDir: out}, nil
}

// GetPaths returns the resolved paths of the configuration
func (c *Config) GetPaths() (*Paths, error) {
	return NewPaths(c.Paths)
}

// Input resolves the path of a file or directory to read. A nil Paths
// leaves paths unchanged.
func (p *Paths) Input(path string) string {
	if p == nil {
		return path
	}
	return resolve(p.DataDir, path)
}

// Output resolves the path of a file to write
func (p *Paths) Output(path string) string {
	if p == nil {
		return path
	}
	return resolve(p.OutputDir, path)
}

// CheckLocal rejects paths that would escape the data or output directory:
// absolute paths and paths climbing out with "..". An empty path is local.
func CheckLocal(path string) error {
	if path == "" || filepath.IsLocal(path) {
		return nil
	}
	return fmt.Errorf("path %q must be relative and stay inside its base directory", path)
}

// EnsureDirectories creates the data and output directories if needed
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

func absDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}
