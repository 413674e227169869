// Package config provides configuration management for tabflow.
//
// # Configuration Sources
//
// Configuration is layered, later sources winning:
//
//	1. Default values (Default)
//	2. A YAML file: tabflow.yaml or configs/tabflow.yaml
//	3. Environment variables
//
// # Environment Variables
//
// Variables follow the pattern TABFLOW_<SECTION>_<FIELD>:
//
//	TABFLOW_SERVER_PORT=8080
//	TABFLOW_LOGGING_LEVEL=debug
//	TABFLOW_PATHS_DATA_DIR=/srv/data
//	TABFLOW_GEOCODER_INTERVAL=2s
//	TABFLOW_TELEMETRY_TRACE_EXPORTER=stdout
//
// # Path Management
//
// Pipeline definitions may use relative paths. Paths resolves them against
// the configured data directory (sources) and output directory (sinks):
//
//	paths, _ := cfg.GetPaths()
//	in := paths.Input("synop/2020.csv.gz")
//	out := paths.Output("regions.csv")
package config
