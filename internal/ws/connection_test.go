package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"devcollab/internal/models"
	"devcollab/internal/rooms"
)

type mockWS struct {
	readCh      chan models.ClientEvent
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	closed      bool
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientEvent, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() {
		m.closed = true
		close(m.closeCh)
	})
	return nil
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientEvent); ok {
			*ptr = msg
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	registerCh   chan string
	unregisterCh chan string
	joinCh       chan rooms.Key
	leaveCh      chan rooms.Key
	out          chan models.ServerEvent
}

func newMockHub() *mockHub {
	return &mockHub{
		registerCh:   make(chan string, 10),
		unregisterCh: make(chan string, 10),
		joinCh:       make(chan rooms.Key, 10),
		leaveCh:      make(chan rooms.Key, 10),
		out:          make(chan models.ServerEvent, 10),
	}
}

func (m *mockHub) Register(connID string, user models.User) (<-chan models.ServerEvent, bool) {
	m.registerCh <- user.ID
	return m.out, true
}

func (m *mockHub) Unregister(connID string) {
	m.unregisterCh <- connID
}

func (m *mockHub) Join(connID string, key rooms.Key) bool {
	m.joinCh <- key
	return true
}

func (m *mockHub) Leave(connID string, key rooms.Key) bool {
	m.leaveCh <- key
	return true
}

type mockChat struct {
	mu      sync.Mutex
	calls   []string
	sendErr error
	online  []models.Profile
}

func (m *mockChat) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockChat) Send(sender models.User, req models.SendMessageRequest) (models.MessageView, error) {
	m.record("send:" + req.Text)
	return models.MessageView{}, m.sendErr
}

func (m *mockChat) Edit(userID string, req models.EditMessageRequest) (models.MessageView, error) {
	m.record("edit:" + req.MessageID)
	return models.MessageView{}, models.ErrEditWindowExpired
}

func (m *mockChat) Delete(userID string, req models.DeleteMessageRequest) error {
	m.record("delete:" + req.MessageID)
	return nil
}

func (m *mockChat) Typing(connID string, user models.Profile, req models.TypingRequest) {
	m.record("typing:" + req.ProjectID)
}

func (m *mockChat) OnlineUsers(projectID string) []models.Profile {
	return m.online
}

func (m *mockChat) JoinChat(connID string, user models.Profile, projectID string) {
	m.record("join-chat:" + projectID)
}

func (m *mockChat) LeaveChat(connID string, user models.Profile, projectID string) {
	m.record("leave-chat:" + projectID)
}

func clientEvent(event string, data any) models.ClientEvent {
	raw, _ := json.Marshal(data)
	return models.ClientEvent{Event: event, Data: raw}
}

func expectWrite(t *testing.T, ws *mockWS, event string) models.ServerEvent {
	t.Helper()
	select {
	case received := <-ws.writeCh:
		ev, ok := received.(models.ServerEvent)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if ev.Event != event {
			t.Fatalf("expected %s, got %s (%+v)", event, ev.Event, ev.Data)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("WS did not receive %s", event)
	}
	return models.ServerEvent{}
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	chat := &mockChat{}
	ws := newMockWS()
	user := models.User{ID: "user1", Name: "User"}

	conn := NewConnection(hub, chat, ws, "c1", user)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	select {
	case id := <-hub.registerCh:
		if id != user.ID {
			t.Errorf("Expected Register with %s, got %s", user.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("Register not called")
	}

	// 1. Room events from the client reach the hub.
	ws.readCh <- clientEvent(models.EventJoinWorkspace, "w1")
	ws.readCh <- clientEvent(models.EventJoinTask, map[string]string{"taskId": "t1"})
	ws.readCh <- clientEvent(models.EventLeaveProject, "p1")

	for _, want := range []rooms.Key{rooms.Workspace("w1"), rooms.Task("t1")} {
		select {
		case key := <-hub.joinCh:
			if key != want {
				t.Errorf("expected join %s, got %s", want, key)
			}
		case <-time.After(time.Second):
			t.Fatalf("join %s not forwarded", want)
		}
	}
	select {
	case key := <-hub.leaveCh:
		if key != rooms.Project("p1") {
			t.Errorf("expected leave project:p1, got %s", key)
		}
	case <-time.After(time.Second):
		t.Fatal("leave not forwarded")
	}

	// 2. Events from the hub reach the client.
	hub.out <- models.ServerEvent{Event: models.EventTaskUpdated, Data: "payload"}
	expectWrite(t, ws, models.EventTaskUpdated)

	// 3. Stop
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Handle did not return after cancel")
	}

	select {
	case id := <-hub.unregisterCh:
		if id != "c1" {
			t.Errorf("Expected Unregister with c1, got %s", id)
		}
	default:
		t.Error("Unregister not called")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
}

func TestConnection_Dispatch(t *testing.T) {
	hub := newMockHub()
	chat := &mockChat{
		sendErr: models.ErrNotAuthorized,
		online:  []models.Profile{{ID: "u1", Name: "A"}},
	}
	ws := newMockWS()
	conn := NewConnection(hub, chat, ws, "c1", models.User{ID: "user1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Handle(ctx) }()

	ws.readCh <- clientEvent(models.EventSendMessage, models.SendMessageRequest{ProjectID: "p1", Text: "hi"})
	ev := expectWrite(t, ws, models.EventMessageError)
	if p := ev.Data.(models.ErrorPayload); p.Error != models.ReasonNotAuthorized || p.Event != models.EventSendMessage {
		t.Errorf("unexpected error payload %+v", p)
	}

	ws.readCh <- clientEvent(models.EventEditMessage, models.EditMessageRequest{MessageID: "m1", Text: "x"})
	ev = expectWrite(t, ws, models.EventMessageError)
	if p := ev.Data.(models.ErrorPayload); p.Error != models.ReasonEditWindowExpired {
		t.Errorf("unexpected error payload %+v", p)
	}

	ws.readCh <- clientEvent(models.EventGetOnlineUsers, "p1")
	ev = expectWrite(t, ws, models.EventOnlineUsers)
	if users := ev.Data.([]models.Profile); len(users) != 1 {
		t.Errorf("unexpected online users %+v", users)
	}

	ws.readCh <- models.ClientEvent{Event: models.EventDeleteMessage, Data: json.RawMessage(`{"messageId":`)}
	ev = expectWrite(t, ws, models.EventMessageError)
	if p := ev.Data.(models.ErrorPayload); p.Error != models.ReasonValidation {
		t.Errorf("malformed payload should be a validation error, got %+v", p)
	}

	ws.readCh <- clientEvent("self-destruct", nil)
	ev = expectWrite(t, ws, models.EventMessageError)
	if p := ev.Data.(models.ErrorPayload); p.Event != "self-destruct" {
		t.Errorf("unexpected error payload %+v", p)
	}

	ws.readCh <- clientEvent(models.EventJoinChat, "p1")
	ws.readCh <- clientEvent(models.EventTyping, models.TypingRequest{ProjectID: "p1", IsTyping: true})
	ws.readCh <- clientEvent(models.EventDeleteMessage, models.DeleteMessageRequest{MessageID: "m1"})
	ws.readCh <- clientEvent(models.EventLeaveChat, map[string]string{"projectId": "p1"})
	// A request that replies marks the end of the queue.
	ws.readCh <- clientEvent(models.EventGetOnlineUsers, "p1")
	expectWrite(t, ws, models.EventOnlineUsers)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	want := []string{"send:hi", "edit:m1", "join-chat:p1", "typing:p1", "delete:m1", "leave-chat:p1"}
	if len(chat.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", chat.calls, want)
	}
	for i := range want {
		if chat.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, chat.calls[i], want[i])
		}
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, &mockChat{}, ws, "c2", models.User{ID: "user2"})

	// Simulate ReadJSON error immediately
	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.closed {
		t.Error("WS Close not called")
	}
	select {
	case <-hub.unregisterCh:
	default:
		t.Error("abrupt disconnect must unregister")
	}
}

func TestConnection_HubClosed(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	conn := NewConnection(hub, &mockChat{}, ws, "c3", models.User{ID: "user3"})

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()
	<-hub.registerCh
	close(hub.out)

	select {
	case err := <-done:
		if !errors.Is(err, errHubClosed) {
			t.Errorf("expected errHubClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Handle did not return after hub closed")
	}
}

func TestDecodeID(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"string", `"w1"`, "w1", false},
		{"object", `{"workspaceId":"w1"}`, "w1", false},
		{"empty string", `""`, "", true},
		{"missing field", `{"other":"x"}`, "", true},
		{"garbage", `[1,2`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeID(json.RawMessage(tt.data), "workspaceId")
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decodeID() = %q, want %q", got, tt.want)
			}
		})
	}
}
