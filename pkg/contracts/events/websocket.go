// Package events contains the WebSocket message contract of tabflow.
package events

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Run lifecycle, mirroring the pipeline event types
	MessageTypeRunStarted     MessageType = "run:started"
	MessageTypeRunCompleted   MessageType = "run:completed"
	MessageTypeRunFailed      MessageType = "run:failed"
	MessageTypeStageStarted   MessageType = "stage:started"
	MessageTypeStageCompleted MessageType = "stage:completed"
	MessageTypeStageFailed    MessageType = "stage:failed"
	MessageTypeStageSkipped   MessageType = "stage:skipped"

	// Connection messages
	MessageTypeConnection MessageType = "connection"
)

// Message is the envelope of every message sent to WebSocket clients
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ConnectionData is the payload of the connection message
type ConnectionData struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}
