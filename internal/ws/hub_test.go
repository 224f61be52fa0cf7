package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"collab-service/internal/models"
)

// fakeConn records written envelopes for assertions.
type fakeConn struct {
	mu       sync.Mutex
	written  []Envelope
	failNext bool
	closed   bool
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("write failed")
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.written = append(f.written, env)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	return 0, nil, errors.New("not implemented")
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.written))
	for _, env := range f.written {
		names = append(names, env.Event)
	}
	return names
}

func newTestClient(user models.User) (*Client, *fakeConn) {
	conn := &fakeConn{}
	return NewClient(conn, user, ConnInfo{ConnID: "test"}), conn
}

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client, _ := newTestClient(models.User{ID: 1})

	hub.AddClient(7, client)
	if !hub.InRoom(7, client) {
		t.Fatalf("expected client to be in room")
	}
	if len(hub.rooms) != 1 {
		t.Fatalf("expected room to be created")
	}

	hub.RemoveClient(7, client)
	if hub.InRoom(7, client) {
		t.Fatalf("expected client to be removed")
	}
	if len(hub.rooms) != 0 {
		t.Fatalf("expected empty room to be dropped")
	}
}

func TestHubRemoveClientIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client, _ := newTestClient(models.User{ID: 1})

	hub.RemoveClient(7, client)
	hub.AddClient(7, client)
	hub.RemoveClient(7, client)
	hub.RemoveClient(7, client)

	if len(hub.rooms) != 0 {
		t.Fatalf("expected no rooms after removals")
	}
}

func TestHubRemoveFromAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	client, _ := newTestClient(models.User{ID: 1})
	other, _ := newTestClient(models.User{ID: 2})

	hub.AddClient(1, client)
	hub.AddClient(2, client)
	hub.AddClient(2, other)

	hub.RemoveFromAll(client)

	if hub.InRoom(1, client) || hub.InRoom(2, client) {
		t.Fatalf("expected client removed from every room")
	}
	if !hub.InRoom(2, other) {
		t.Fatalf("expected other client to stay joined")
	}
}

func TestHubBroadcastReachesRoomOnly(t *testing.T) {
	hub := NewHub(zap.NewNop())
	inRoom, inConn := newTestClient(models.User{ID: 1})
	alsoIn, alsoConn := newTestClient(models.User{ID: 2})
	elsewhere, elseConn := newTestClient(models.User{ID: 3})

	hub.AddClient(5, inRoom)
	hub.AddClient(5, alsoIn)
	hub.AddClient(6, elsewhere)

	hub.Broadcast(5, EventNewMessage, map[string]int{"id": 1}, nil)

	if len(inConn.events()) != 1 || len(alsoConn.events()) != 1 {
		t.Fatalf("expected both room members to receive the event")
	}
	if len(elseConn.events()) != 0 {
		t.Fatalf("expected no delivery outside the room")
	}
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sender, senderConn := newTestClient(models.User{ID: 1})
	peer, peerConn := newTestClient(models.User{ID: 2})

	hub.AddClient(5, sender)
	hub.AddClient(5, peer)

	hub.Broadcast(5, EventUserTyping, typingNotice{UserID: 1, GroupID: 5}, sender)

	if len(senderConn.events()) != 0 {
		t.Fatalf("expected sender to be excluded")
	}
	if len(peerConn.events()) != 1 {
		t.Fatalf("expected peer to receive the event")
	}
}

func TestHubBroadcastEvictsFailedConn(t *testing.T) {
	hub := NewHub(zap.NewNop())
	broken, brokenConn := newTestClient(models.User{ID: 1})
	brokenConn.failNext = true
	healthy, healthyConn := newTestClient(models.User{ID: 2})

	hub.AddClient(5, broken)
	hub.AddClient(5, healthy)

	hub.Broadcast(5, EventNewMessage, map[string]int{"id": 1}, nil)

	if hub.InRoom(5, broken) {
		t.Fatalf("expected failed connection to be evicted")
	}
	if !brokenConn.closed {
		t.Fatalf("expected failed connection to be closed")
	}
	if !hub.InRoom(5, healthy) || len(healthyConn.events()) != 1 {
		t.Fatalf("expected healthy connection to be unaffected")
	}
}
