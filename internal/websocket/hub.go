// Package websocket pushes shock alerts and pipeline updates to browser
// clients. One hub fans broadcast frames out to every registered client;
// slow clients are dropped rather than allowed to stall the loop.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"tremor/internal/infrastructure"
	"tremor/pkg/contracts/events"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
	}
}

// Start starts the hub's main loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.quit)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			ctx := context.Background()
			if client.traceID != "" {
				ctx = infrastructure.WithTraceID(ctx, client.traceID)
			}
			h.logger.InfoContext(ctx, "client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			msg, err := events.NewMessage(events.TypeConnection, events.ConnectionPayload{
				Status:   "connected",
				ClientID: client.id,
			}, client.traceID)
			if err == nil {
				if data, err := json.Marshal(msg); err == nil {
					select {
					case client.send <- data:
					default:
					}
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()
				h.logger.Info("client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
					h.mu.Lock()
					h.messagesSent++
					h.mu.Unlock()
				default:
					// Buffer full: the client is too slow, drop it.
					h.mu.Lock()
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
					h.mu.Unlock()
					h.logger.Warn("client send buffer full, disconnecting",
						slog.String("client_id", client.id))
				}
			}
		}
	}
}

// Register queues a client for registration.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastMessage pushes one frame to every connected client.
func (h *Hub) BroadcastMessage(msg events.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshaling broadcast frame",
			slog.String("error", err.Error()),
			slog.String("type", msg.Type))
		return
	}
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast queue full, dropping frame",
			slog.String("type", msg.Type))
	}
}

// BroadcastSignalComputed announces a computed signal.
func (h *Hub) BroadcastSignalComputed(payload events.SignalComputedPayload, traceID string) {
	msg, err := events.NewMessage(events.TypeSignalComputed, payload, traceID)
	if err != nil {
		h.logger.Error("building signal frame", slog.String("error", err.Error()))
		return
	}
	h.BroadcastMessage(msg)
}

// BroadcastShock announces a detected shock.
func (h *Hub) BroadcastShock(payload events.ShockAlertPayload, traceID string) {
	msg, err := events.NewMessage(events.TypeShockAlert, payload, traceID)
	if err != nil {
		h.logger.Error("building shock alert", slog.String("error", err.Error()))
		return
	}
	h.BroadcastMessage(msg)
}

// BroadcastStudyCompleted announces a finished causal test run.
func (h *Hub) BroadcastStudyCompleted(payload events.StudyCompletedPayload, traceID string) {
	msg, err := events.NewMessage(events.TypeStudyCompleted, payload, traceID)
	if err != nil {
		h.logger.Error("building study frame", slog.String("error", err.Error()))
		return
	}
	h.BroadcastMessage(msg)
}

// BroadcastPropagationUpdate announces a monitor state change.
func (h *Hub) BroadcastPropagationUpdate(payload events.PropagationUpdatePayload, traceID string) {
	msg, err := events.NewMessage(events.TypePropagationUpdate, payload, traceID)
	if err != nil {
		h.logger.Error("building propagation frame", slog.String("error", err.Error()))
		return
	}
	h.BroadcastMessage(msg)
}

// Stats reports hub counters for the health surface.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
	}
}
