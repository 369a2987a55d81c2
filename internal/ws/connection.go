package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"devcollab/internal/models"
	"devcollab/internal/rooms"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var errHubClosed = errors.New("hub closed the connection")

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

// keepAliver is implemented by *websocket.Conn. Connections that support it
// get read limits, deadlines and ping/pong liveness checks.
type keepAliver interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

type connectionHub interface {
	Register(connID string, user models.User) (<-chan models.ServerEvent, bool)
	Unregister(connID string)
	Join(connID string, key rooms.Key) bool
	Leave(connID string, key rooms.Key) bool
}

type chatPipeline interface {
	Send(sender models.User, req models.SendMessageRequest) (models.MessageView, error)
	Edit(userID string, req models.EditMessageRequest) (models.MessageView, error)
	Delete(userID string, req models.DeleteMessageRequest) error
	Typing(connID string, user models.Profile, req models.TypingRequest)
	OnlineUsers(projectID string) []models.Profile
	JoinChat(connID string, user models.Profile, projectID string)
	LeaveChat(connID string, user models.Profile, projectID string)
}

type Connection struct {
	ws         wsConnection
	hub        connectionHub
	chat       chatPipeline
	id         string
	user       models.User
	fromClient chan models.ClientEvent
	fromServer <-chan models.ServerEvent
	replies    chan models.ServerEvent
	errorCh    chan error
}

func NewConnection(
	hub connectionHub,
	chat chatPipeline,
	ws wsConnection,
	connID string,
	user models.User,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		chat:       chat,
		id:         connID,
		user:       user,
		fromClient: make(chan models.ClientEvent),
		replies:    make(chan models.ServerEvent, 16),
		errorCh:    make(chan error, 3),
	}
}

// Handle registers the connection with the hub and serves it until the
// client goes away, ctx is canceled or the hub stops. Teardown always
// unregisters, however the connection ended.
func (c *Connection) Handle(ctx context.Context) error {
	fromServer, ok := c.hub.Register(c.id, c.user)
	if !ok {
		_ = c.ws.Close()
		return errHubClosed
	}
	c.fromServer = fromServer

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.hub.Unregister(c.id)
	}()

	if ka, ok := c.ws.(keepAliver); ok {
		ka.SetReadLimit(maxMessageSize)
		_ = ka.SetReadDeadline(time.Now().Add(pongWait))
		ka.SetPongHandler(func(string) error {
			return ka.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.readPump(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.processLoop(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.writePump(ctx)
		cancel()
	})

	// The first pump to exit decides the outcome.
	err := <-c.errorCh
	_ = c.ws.Close()
	wg.Wait()

	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (c *Connection) readPump(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// processLoop handles inbound events one at a time, in arrival order.
func (c *Connection) processLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.processClientEvent(ctx, ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) writePump(ctx context.Context) error {
	ka, canPing := c.ws.(keepAliver)
	var ping <-chan time.Time
	if canPing {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	write := func(ev models.ServerEvent) error {
		if canPing {
			_ = ka.SetWriteDeadline(time.Now().Add(writeWait))
		}
		return c.ws.WriteJSON(ev)
	}

	for {
		select {
		case ev, ok := <-c.fromServer:
			if !ok {
				return errHubClosed
			}
			if err := write(ev); err != nil {
				return err
			}
		case ev := <-c.replies:
			if err := write(ev); err != nil {
				return err
			}
		case <-ping:
			if err := ka.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) reply(ctx context.Context, event string, data any) {
	select {
	case c.replies <- models.ServerEvent{Event: event, Data: data}:
	case <-ctx.Done():
	}
}

func (c *Connection) replyError(ctx context.Context, event string, err error) {
	reason := models.Reason(err)
	if reason == models.ReasonTransient {
		slog.Error("event failed", "conn_id", c.id, "user_id", c.user.ID, "event", event, "error", err)
	}
	c.reply(ctx, models.EventMessageError, models.ErrorPayload{Error: reason, Event: event})
}

// decodeID accepts either a bare JSON string or an object carrying field.
func decodeID(data json.RawMessage, field string) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if id == "" {
			return "", models.Invalid("%s is required", field)
		}
		return id, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", models.Invalid("malformed payload")
	}
	id, _ = obj[field].(string)
	if id == "" {
		return "", models.Invalid("%s is required", field)
	}
	return id, nil
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return models.Invalid("malformed payload")
	}
	return nil
}

var roomEvents = map[string]struct {
	join  bool
	field string
	key   func(string) rooms.Key
}{
	models.EventJoinWorkspace:  {true, "workspaceId", rooms.Workspace},
	models.EventLeaveWorkspace: {false, "workspaceId", rooms.Workspace},
	models.EventJoinProject:    {true, "projectId", rooms.Project},
	models.EventLeaveProject:   {false, "projectId", rooms.Project},
	models.EventJoinTask:       {true, "taskId", rooms.Task},
	models.EventLeaveTask:      {false, "taskId", rooms.Task},
}

func (c *Connection) processClientEvent(ctx context.Context, ev models.ClientEvent) {
	if room, ok := roomEvents[ev.Event]; ok {
		id, err := decodeID(ev.Data, room.field)
		if err != nil {
			c.replyError(ctx, ev.Event, err)
			return
		}
		if room.join {
			c.hub.Join(c.id, room.key(id))
		} else {
			c.hub.Leave(c.id, room.key(id))
		}
		return
	}

	profile := c.user.Profile()
	switch ev.Event {
	case models.EventJoinChat, models.EventLeaveChat:
		projectID, err := decodeID(ev.Data, "projectId")
		if err != nil {
			c.replyError(ctx, ev.Event, err)
			return
		}
		if ev.Event == models.EventJoinChat {
			c.chat.JoinChat(c.id, profile, projectID)
		} else {
			c.chat.LeaveChat(c.id, profile, projectID)
		}

	case models.EventSendMessage:
		var req models.SendMessageRequest
		err := decode(ev.Data, &req)
		if err == nil {
			_, err = c.chat.Send(c.user, req)
		}
		if err != nil {
			c.replyError(ctx, ev.Event, err)
		}

	case models.EventEditMessage:
		var req models.EditMessageRequest
		err := decode(ev.Data, &req)
		if err == nil {
			_, err = c.chat.Edit(c.user.ID, req)
		}
		if err != nil {
			c.replyError(ctx, ev.Event, err)
		}

	case models.EventDeleteMessage:
		var req models.DeleteMessageRequest
		err := decode(ev.Data, &req)
		if err == nil {
			err = c.chat.Delete(c.user.ID, req)
		}
		if err != nil {
			c.replyError(ctx, ev.Event, err)
		}

	case models.EventTyping:
		var req models.TypingRequest
		if err := decode(ev.Data, &req); err != nil {
			c.replyError(ctx, ev.Event, err)
			return
		}
		c.chat.Typing(c.id, profile, req)

	case models.EventGetOnlineUsers:
		projectID, err := decodeID(ev.Data, "projectId")
		if err != nil {
			c.replyError(ctx, ev.Event, err)
			return
		}
		c.reply(ctx, models.EventOnlineUsers, c.chat.OnlineUsers(projectID))

	default:
		c.replyError(ctx, ev.Event, models.Invalid("unknown event %q", ev.Event))
	}
}
