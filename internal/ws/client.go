package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collab-service/internal/models"
)

// ConnInfo carries per-connection metadata for observability events.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Conn is the subset of *websocket.Conn the hub needs; a seam for tests.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Client is one authenticated websocket connection. Acks and broadcasts come
// from different goroutines, so writes serialize on the mutex.
type Client struct {
	conn Conn
	user models.User
	info ConnInfo
	mu   sync.Mutex
}

// NewClient wraps an admitted connection with its resolved identity.
func NewClient(conn Conn, user models.User, info ConnInfo) *Client {
	return &Client{conn: conn, user: user, info: info}
}

// Send writes one enveloped event to the connection.
func (c *Client) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, body)
}
