// Package api contains the HTTP API contract of tabflow.
// Version v1 represents the current stable API version.
package api

// ListRunsRequest filters the stored runs
type ListRunsRequest struct {
	Status string `json:"status" query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
	Limit  int    `json:"limit" query:"limit" validate:"omitempty,min=1,max=1000"`
}
