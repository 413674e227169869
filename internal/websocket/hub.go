// Package websocket streams pipeline run events to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tabflow/internal/infrastructure"
	"tabflow/internal/pipeline"
	"tabflow/pkg/contracts/events"
)

// broadcastBuffer is the number of messages queued before events are dropped
const broadcastBuffer = 256

// Hub maintains the set of active clients and broadcasts run events to them.
// It implements pipeline.Observer.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client. Run must be called at most once.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("hub_stopped")
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(client.context(), "client_registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			h.sendTo(client, events.Message{
				Type: events.MessageTypeConnection,
				Data: events.ConnectionData{
					Status:   "connected",
					ClientID: client.id,
				},
				Timestamp: time.Now(),
				TraceID:   client.traceID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(client.context(), "client_unregistered",
				slog.String("client_id", client.id),
				slog.Int("total_clients", count),
				slog.Duration("connection_duration", time.Since(client.connectedAt)))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// fanOut sends a message to every client; clients whose buffer is full are
// disconnected
func (h *Hub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
			h.messagesSent++
		default:
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("client_buffer_full",
				slog.String("client_id", client.id))
		}
	}
}

func (h *Hub) sendTo(client *Client, msg events.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("message_marshal_failed", slog.String("error", err.Error()))
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("client_buffer_full", slog.String("client_id", client.id))
	}
}

// OnEvent broadcasts a run event. It never blocks: when the broadcast queue
// is full the event is dropped.
func (h *Hub) OnEvent(ctx context.Context, event pipeline.Event) {
	h.Broadcast(ctx, events.MessageType(event.Type), event)
}

// Broadcast queues a message for every connected client
func (h *Hub) Broadcast(ctx context.Context, messageType events.MessageType, data interface{}) {
	msg := events.Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now(),
		TraceID:   infrastructure.GetTraceID(ctx),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "message_marshal_failed",
			slog.String("message_type", string(messageType)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "broadcast_queue_full",
			slog.String("message_type", string(messageType)))
	}
}

// join registers a client unless the hub has stopped
func (h *Hub) join(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// leave unregisters a client; it is a no-op once the hub has stopped
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubStats is a snapshot of hub counters
type HubStats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// Stats returns current hub counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		ActiveClients:    len(h.clients),
		TotalConnections: h.totalConnections,
		MessagesSent:     h.messagesSent,
		MessagesDropped:  h.messagesDropped,
	}
}
