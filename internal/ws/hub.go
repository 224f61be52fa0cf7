package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"collab-service/internal/observability"
)

const (
	wsKind       = "group"
	wsRoutingKey = "ws_events.groups"
)

// Hub maintains the room registry: the set of connections currently joined
// to each group. State is process-local; cross-process deployments bridge
// fan-out through the AMQP exchange the observability events already use.
type Hub struct {
	rooms  map[int]map[*Client]bool
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{rooms: make(map[int]map[*Client]bool), logger: logger}
}

// AddClient registers a connection in a group's room.
func (h *Hub) AddClient(groupID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[groupID]; !ok {
		h.rooms[groupID] = make(map[*Client]bool)
	}
	h.rooms[groupID][client] = true
}

// RemoveClient removes a connection from a group's room. Idempotent.
func (h *Hub) RemoveClient(groupID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(groupID, client)
}

// RemoveFromAll removes a connection from every room it joined.
func (h *Hub) RemoveFromAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for groupID := range h.rooms {
		h.removeLocked(groupID, client)
	}
}

func (h *Hub) removeLocked(groupID int, client *Client) {
	if conns, ok := h.rooms[groupID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.rooms, groupID)
		}
	}
}

// InRoom reports whether the connection is currently joined to the group.
func (h *Hub) InRoom(groupID int, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[groupID][client]
}

// Broadcast fans one event out to every connection in the group's room,
// optionally excluding one. Connections that fail to take the write are
// evicted from all rooms.
func (h *Hub) Broadcast(groupID int, event string, data any, exclude *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[groupID]))
	for client := range h.rooms[groupID] {
		if client != exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if err := client.Send(event, data); err != nil {
			h.logger.Warn("websocket write failed",
				zap.Int("group_id", groupID),
				zap.String("conn_id", client.info.ConnID),
				zap.Error(err))
			client.conn.Close()
			h.RemoveFromAll(client)
			h.publishWSError(groupID, client, err)
		}
	}
}

func (h *Hub) publishWSError(groupID int, client *Client, err error) {
	info := client.info
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        wsKind,
			"resource_id": groupID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   client.user.ID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(wsKind, "ws_error")
}
