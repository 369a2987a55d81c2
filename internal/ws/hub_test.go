package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"devcollab/internal/models"
	"devcollab/internal/rooms"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()
	t.Cleanup(cancel)
	return h
}

func expectEvent(t *testing.T, ch <-chan models.ServerEvent, event string) models.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", event)
		}
		if ev.Event != event {
			t.Fatalf("expected %s, got %s", event, ev.Event)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", event)
	}
	return models.ServerEvent{}
}

// expectQuiet flushes the hub queue and checks nothing was delivered.
func expectQuiet(t *testing.T, h *Hub, ch <-chan models.ServerEvent) {
	t.Helper()
	h.ConnectionCount()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Event)
	default:
	}
}

var (
	alice = models.User{ID: "alice", Name: "Alice", Active: true}
	bob   = models.User{ID: "bob", Name: "Bob", Active: true}
)

func TestHub_Presence(t *testing.T) {
	h := startHub(t)

	observer, ok := h.Register("b1", bob)
	if !ok {
		t.Fatal("Register failed")
	}

	a1, _ := h.Register("a1", alice)
	ev := expectEvent(t, observer, models.EventUserOnline)
	payload := ev.Data.(models.PresencePayload)
	if payload.UserID != "alice" || payload.User == nil || payload.User.Name != "Alice" {
		t.Errorf("unexpected payload %+v", payload)
	}
	// The connection that came online is not told about itself.
	expectQuiet(t, h, a1)

	// A second device is not a presence change.
	a2, _ := h.Register("a2", alice)
	expectQuiet(t, h, observer)

	h.Unregister("a1")
	expectQuiet(t, h, observer)
	if !h.IsOnline("alice") {
		t.Error("alice still has a connection")
	}
	if _, ok := <-a1; ok {
		t.Error("outbound channel must be closed after unregister")
	}

	h.Unregister("a2")
	ev = expectEvent(t, observer, models.EventUserOffline)
	payload = ev.Data.(models.PresencePayload)
	if payload.UserID != "alice" || payload.User == nil || payload.User.Name != "Alice" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if h.IsOnline("alice") {
		t.Error("alice should be offline")
	}
	if _, ok := <-a2; ok {
		t.Error("outbound channel must be closed after unregister")
	}

	// Unknown and repeated unregisters are no-ops.
	h.Unregister("a2")
	h.Unregister("nope")
	expectQuiet(t, h, observer)
}

func TestHub_ManyConnectionsOneTransitionEach(t *testing.T) {
	h := startHub(t)
	observer, _ := h.Register("obs", bob)

	const n = 20
	done := make(chan struct{})
	for i := range n {
		go func() {
			id := fmt.Sprintf("a%d", i)
			h.Register(id, alice)
			h.Unregister(id)
			done <- struct{}{}
		}()
	}
	for range n {
		<-done
	}
	h.ConnectionCount()

	online, offline := 0, 0
	for {
		select {
		case ev := <-observer:
			switch ev.Event {
			case models.EventUserOnline:
				online++
			case models.EventUserOffline:
				offline++
			}
			continue
		default:
		}
		break
	}
	if online == 0 || online != offline {
		t.Errorf("online=%d offline=%d, want equal and non-zero", online, offline)
	}
	if h.IsOnline("alice") {
		t.Error("alice must end offline")
	}
}

func TestHub_Rooms(t *testing.T) {
	h := startHub(t)
	a1, _ := h.Register("a1", alice)
	a2, _ := h.Register("a2", alice)
	b1, _ := h.Register("b1", bob)
	// drain presence
	h.ConnectionCount()
	for _, ch := range []<-chan models.ServerEvent{a1, a2, b1} {
		for len(ch) > 0 {
			<-ch
		}
	}

	room := rooms.Chat("p1")
	if !h.Join("a1", room) || h.Join("a1", room) {
		t.Error("join must report the first change only")
	}
	h.Join("a2", room)
	h.Join("b1", room)
	if h.Join("ghost", room) {
		t.Error("unknown connections cannot join")
	}

	members := h.MembersOf(room)
	if len(members) != 2 || members[0].Name != "Alice" || members[1].Name != "Bob" {
		t.Errorf("unexpected members %+v", members)
	}

	h.Broadcast(room, models.EventUserTyping, "x", "a1")
	expectEvent(t, a2, models.EventUserTyping)
	expectEvent(t, b1, models.EventUserTyping)
	expectQuiet(t, h, a1)

	// Users always sit in their own room.
	h.Broadcast(rooms.User("alice"), models.EventNotification, "n", "")
	expectEvent(t, a1, models.EventNotification)
	expectEvent(t, a2, models.EventNotification)
	expectQuiet(t, h, b1)

	if !h.Leave("b1", room) || h.Leave("b1", room) {
		t.Error("leave must report the first change only")
	}
	h.Unregister("a1")
	h.Unregister("a2")
	if members := h.MembersOf(room); len(members) != 0 {
		t.Errorf("room should be empty, got %+v", members)
	}
	if h.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", h.ConnectionCount())
	}
}

func TestHub_Counts(t *testing.T) {
	h := startHub(t)
	h.Register("a1", alice)
	h.Register("a2", alice)
	h.Register("b1", bob)

	if got := h.ConnectionCount(); got != 3 {
		t.Errorf("ConnectionCount = %d, want 3", got)
	}
	if got := h.OnlineCount(); got != 2 {
		t.Errorf("OnlineCount = %d, want 2", got)
	}
	if got := h.UserConnections("alice"); got != 2 {
		t.Errorf("UserConnections(alice) = %d, want 2", got)
	}

	room := rooms.Chat("p1")
	h.Join("a1", room)
	h.Join("b1", room)
	if got := h.RoomSize(room); got != 2 {
		t.Errorf("RoomSize = %d, want 2", got)
	}
	// two user rooms and the chat
	if got := h.RoomCount(); got != 3 {
		t.Errorf("RoomCount = %d, want 3", got)
	}

	h.Unregister("a1")
	if got := h.OnlineCount(); got != 2 {
		t.Errorf("OnlineCount after closing one tab = %d, want 2", got)
	}
	if got := h.UserConnections("alice"); got != 1 {
		t.Errorf("UserConnections(alice) = %d, want 1", got)
	}
	if got := h.RoomSize(room); got != 1 {
		t.Errorf("RoomSize = %d, want 1", got)
	}

	h.Unregister("a2")
	if got := h.OnlineCount(); got != 1 {
		t.Errorf("OnlineCount = %d, want 1", got)
	}
	if got := h.RoomCount(); got != 2 {
		t.Errorf("RoomCount = %d, want 2", got)
	}
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub()
	h.bufferSize = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	a1, _ := h.Register("a1", alice)
	for range 5 {
		h.Broadcast(rooms.User("alice"), models.EventNotification, "n", "")
	}
	h.ConnectionCount()
	if len(a1) != 2 {
		t.Errorf("expected buffer to hold 2 events, got %d", len(a1))
	}
}

func TestHub_StopClosesConnections(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(stopped)
	}()

	a1, _ := h.Register("a1", alice)
	cancel()
	<-stopped

	for range a1 {
	}
	if _, ok := h.Register("a2", alice); ok {
		t.Error("register must fail once the hub stopped")
	}
	if h.IsOnline("alice") {
		t.Error("queries return zero values once the hub stopped")
	}
	h.Unregister("a1")
}
