package api

import "time"

// ListRunsResponse lists stored runs, oldest first
type ListRunsResponse struct {
	Runs  interface{} `json:"runs"`
	Count int         `json:"count"`
}

// StageTypesResponse lists the registered stage types
type StageTypesResponse struct {
	Sources    []string `json:"sources"`
	Transforms []string `json:"transforms"`
	Sinks      []string `json:"sinks"`
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	Status    string      `json:"status"`
	Version   string      `json:"version"`
	Uptime    string      `json:"uptime"`
	Clients   int         `json:"websocket_clients"`
	Runtime   interface{} `json:"runtime,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
