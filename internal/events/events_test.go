package events

import (
	"errors"
	"testing"

	"devcollab/internal/models"
	"devcollab/internal/rooms"
)

type sent struct {
	key     rooms.Key
	event   string
	payload any
}

type mockHub struct {
	sent   []sent
	online map[string]bool
	// user id -> open sockets
	conns map[string]int
	rooms map[rooms.Key]int
}

func (h *mockHub) Broadcast(key rooms.Key, event string, payload any, exclude string) {
	h.sent = append(h.sent, sent{key, event, payload})
}

func (h *mockHub) IsOnline(userID string) bool { return h.online[userID] }

func (h *mockHub) OnlineUsers() []models.Profile {
	var out []models.Profile
	for id := range h.online {
		out = append(out, models.Profile{ID: id})
	}
	return out
}

func (h *mockHub) OnlineCount() int { return len(h.conns) }

func (h *mockHub) ConnectionCount() int {
	n := 0
	for _, c := range h.conns {
		n += c
	}
	return n
}

func (h *mockHub) UserConnections(userID string) int { return h.conns[userID] }

func (h *mockHub) RoomSize(key rooms.Key) int { return h.rooms[key] }

func (h *mockHub) RoomCount() int { return len(h.rooms) }

func TestEmitter(t *testing.T) {
	tests := []struct {
		name  string
		emit  func(e *Emitter)
		key   rooms.Key
		event string
	}{
		{"task updated", func(e *Emitter) { e.TaskUpdated("t1", "x") }, "task:t1", models.EventTaskUpdated},
		{"comment", func(e *Emitter) { e.CommentAdded("t1", "x") }, "task:t1", models.EventNewComment},
		{"board", func(e *Emitter) { e.BoardUpdated("p1", "x") }, "project:p1", models.EventBoardUpdated},
		{"workspace", func(e *Emitter) { e.WorkspaceUpdated("w1", "x") }, "workspace:w1", models.EventWorkspaceUpdated},
		{"notification", func(e *Emitter) { e.Notification("u1", models.Notification{ID: "n1"}) }, "user:u1", models.EventNotification},
		{"chat", func(e *Emitter) { e.ChatMessage("p1", "x") }, "chat:p1", models.EventNewMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := &mockHub{}
			tt.emit(NewEmitter(hub))
			if len(hub.sent) != 1 {
				t.Fatalf("expected 1 broadcast, got %d", len(hub.sent))
			}
			if hub.sent[0].key != tt.key || hub.sent[0].event != tt.event {
				t.Errorf("got %s %s, want %s %s", hub.sent[0].key, hub.sent[0].event, tt.key, tt.event)
			}
		})
	}
}

func TestEmitter_EmptyIDIsNoop(t *testing.T) {
	hub := &mockHub{}
	e := NewEmitter(hub)
	e.TaskUpdated("", "x")
	e.Notification("", models.Notification{})
	if len(hub.sent) != 0 {
		t.Errorf("expected no broadcasts, got %+v", hub.sent)
	}
}

func TestEmitter_Queries(t *testing.T) {
	hub := &mockHub{
		online: map[string]bool{"u1": true},
		conns:  map[string]int{"u1": 2},
		rooms:  map[rooms.Key]int{rooms.User("u1"): 2, rooms.Chat("p1"): 1},
	}
	e := NewEmitter(hub)
	if !e.IsUserOnline("u1") || e.IsUserOnline("u2") {
		t.Error("IsUserOnline mismatch")
	}
	if len(e.OnlineUsers()) != 1 {
		t.Error("OnlineUsers mismatch")
	}
	// One user with two tabs.
	if got := e.ConnectedUsersCount(); got != 1 {
		t.Errorf("ConnectedUsersCount = %d, want 1", got)
	}
	if got := e.ConnectionCount(); got != 2 {
		t.Errorf("ConnectionCount = %d, want 2", got)
	}
	if got := e.UserConnections("u1"); got != 2 {
		t.Errorf("UserConnections = %d, want 2", got)
	}
	if e.RoomSize(rooms.User("u1")) != 2 || e.RoomCount() != 2 {
		t.Error("room stats mismatch")
	}
}

func TestEmitter_Dispatch(t *testing.T) {
	hub := &mockHub{}
	e := NewEmitter(hub)

	if err := e.Dispatch(EmitRequest{Event: models.EventBoardUpdated, ID: "p1", Data: map[string]any{"column": "done"}}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(hub.sent) != 1 || hub.sent[0].key != rooms.Project("p1") {
		t.Errorf("unexpected broadcasts %+v", hub.sent)
	}

	if err := e.Dispatch(EmitRequest{Event: "user-online", ID: "u1"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := e.Dispatch(EmitRequest{Event: models.EventTaskUpdated}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error for missing id, got %v", err)
	}
}

func TestEmitter_DispatchNotification(t *testing.T) {
	hub := &mockHub{}
	e := NewEmitter(hub)

	err := e.Dispatch(EmitRequest{
		Event: models.EventNotification,
		ID:    "u1",
		Data: map[string]any{
			"id":   "n1",
			"type": "task_assigned",
			"text": "You were assigned <script>alert(1)</script>a task",
			"data": map[string]any{"taskId": "t1"},
		},
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(hub.sent) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.sent))
	}
	got := hub.sent[0]
	if got.key != rooms.User("u1") || got.event != models.EventNotification {
		t.Errorf("got %s %s", got.key, got.event)
	}
	n, ok := got.payload.(models.Notification)
	if !ok {
		t.Fatalf("payload is %T, want models.Notification", got.payload)
	}
	if n.ID != "n1" || n.UserID != "u1" || n.Type != models.NotificationTaskAssigned || n.Data.TaskID != "t1" {
		t.Errorf("unexpected notification %+v", n)
	}
	if n.Text != "You were assigned a task" {
		t.Errorf("text not sanitized: %q", n.Text)
	}
	if n.CreatedAt.IsZero() {
		t.Error("createdAt should default to now")
	}
}

func TestEmitter_DispatchMalformedNotification(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"not an object", "oops"},
		{"wrong field type", map[string]any{"type": "comment", "text": 42}},
		{"unknown type", map[string]any{"type": "party", "text": "hi"}},
		{"empty text", map[string]any{"type": "comment", "text": "<script></script>"}},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := &mockHub{}
			err := NewEmitter(hub).Dispatch(EmitRequest{Event: models.EventNotification, ID: "u1", Data: tt.data})
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(hub.sent) != 0 {
				t.Errorf("nothing should be sent, got %+v", hub.sent)
			}
		})
	}
}
