package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"chanalysis/internal/infrastructure"
)

// Message types sent to clients
const (
	TypeConnection = "connection"
	TypeReport     = "report"
	TypeStatus     = "status"
	TypeError      = "error"
)

const broadcastBuffer = 64

type envelope struct {
	msgType string
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to them.
// Only the Run goroutine mutates the client set or closes a client's send channel.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}

	mu       sync.RWMutex
	running  bool
	stopped  bool
	snapshot func() (interface{}, bool)

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	metrics *hubMetrics
	logger  *slog.Logger
}

// NewHub creates a new Hub. A nil meter disables hub metrics.
func NewHub(logger *slog.Logger, meter metric.Meter) (*Hub, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	metrics, err := newHubMetrics(meter)
	if err != nil {
		return nil, err
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan envelope, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "websocket.hub")),
	}, nil
}

// SetSnapshot installs a function whose value is sent to every newly
// connected client, typically the latest report summary.
func (h *Hub) SetSnapshot(fn func() (interface{}, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Start starts the hub loop. It is a no-op on a running or stopped hub.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return
	}
	h.running = true
	go h.Run()
}

// Run is the hub's main loop; it returns when Stop is called
func (h *Hub) Run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				h.metrics.clientLeft(ctx)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.totalConnections++
			count := len(h.clients)
			snapshot := h.snapshot
			h.mu.Unlock()

			h.metrics.clientJoined(ctx)
			h.logger.InfoContext(client.context(), "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			h.greet(client, snapshot)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				h.metrics.clientLeft(ctx)
				h.logger.InfoContext(client.context(), "client unregistered",
					slog.String("client_id", client.id),
					slog.Int("total_clients", count),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.fanOut(ctx, msg)
		}
	}
}

func (h *Hub) fanOut(ctx context.Context, msg envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for client := range h.clients {
		select {
		case client.send <- msg.payload:
			delivered++
		default:
			close(client.send)
			delete(h.clients, client)
			h.messagesDropped++
			h.metrics.clientLeft(ctx)
			h.metrics.drop(ctx, "client_slow")
			h.logger.WarnContext(client.context(), "client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
	h.messagesSent += int64(delivered)
	h.metrics.sent(ctx, msg.msgType, delivered)

	h.logger.Debug("broadcast delivered",
		slog.String("type", msg.msgType),
		slog.Int("clients", delivered),
		slog.Int("payload_size", len(msg.payload)))
}

func (h *Hub) greet(client *Client, snapshot func() (interface{}, bool)) {
	messages := []map[string]interface{}{{
		"type": TypeConnection,
		"data": map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to chanalysis report stream",
			"client_id": client.id,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"trace_id":  client.traceID,
	}}

	if snapshot != nil {
		if data, ok := snapshot(); ok {
			messages = append(messages, map[string]interface{}{
				"type":      TypeReport,
				"subtype":   "latest",
				"action":    "snapshot",
				"data":      data,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}

	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("failed to marshal greeting", slog.String("error", err.Error()))
			return
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("client buffer full on connect", slog.String("client_id", client.id))
			return
		}
	}
}

// BroadcastUpdate sends a typed update to all connected clients
func (h *Hub) BroadcastUpdate(updateType, subtype, action string, data interface{}) {
	msg := map[string]interface{}{
		"type":      updateType,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if subtype != "" {
		msg["subtype"] = subtype
	}
	if action != "" {
		msg["action"] = action
	}
	h.BroadcastJSON(msg)
}

// BroadcastStatus sends a status line, e.g. a run failure
func (h *Hub) BroadcastStatus(status, message string) {
	h.BroadcastUpdate(TypeStatus, "", "", map[string]interface{}{
		"status":  status,
		"message": message,
	})
}

// BroadcastJSON marshals and queues message. It never blocks: when the
// queue is full or the hub is stopped the message is dropped.
func (h *Hub) BroadcastJSON(message map[string]interface{}) {
	msgType, _ := message["type"].(string)
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast",
			slog.String("type", msgType),
			slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case h.broadcast <- envelope{msgType: msgType, payload: payload}:
	default:
		h.mu.Lock()
		h.messagesDropped++
		h.mu.Unlock()
		h.metrics.drop(context.Background(), "hub_busy")
		h.logger.Warn("broadcast queue full, dropping message", slog.String("type", msgType))
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client and waits for the hub loop to exit
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	running := h.running
	h.running = false
	close(h.quit)
	h.mu.Unlock()

	if running {
		<-h.done
	}
}

// GetHubMetrics returns current hub counters
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}
