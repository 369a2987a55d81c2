// Package events lets request handlers push domain changes to the rooms
// watching the affected entity. Every method is fire-and-forget.
package events

import (
	"encoding/json"
	"time"

	"devcollab/internal/content"
	"devcollab/internal/models"
	"devcollab/internal/rooms"
)

type Hub interface {
	Broadcast(key rooms.Key, event string, payload any, excludeConnID string)
	IsOnline(userID string) bool
	OnlineUsers() []models.Profile
	OnlineCount() int
	ConnectionCount() int
	UserConnections(userID string) int
	RoomSize(key rooms.Key) int
	RoomCount() int
}

type Emitter struct {
	hub Hub
}

func NewEmitter(hub Hub) *Emitter {
	return &Emitter{hub: hub}
}

func (e *Emitter) emit(key rooms.Key, id, event string, payload any) {
	if id == "" {
		return
	}
	e.hub.Broadcast(key, event, payload, "")
}

func (e *Emitter) TaskUpdated(taskID string, payload any) {
	e.emit(rooms.Task(taskID), taskID, models.EventTaskUpdated, payload)
}

func (e *Emitter) CommentAdded(taskID string, payload any) {
	e.emit(rooms.Task(taskID), taskID, models.EventNewComment, payload)
}

func (e *Emitter) BoardUpdated(projectID string, payload any) {
	e.emit(rooms.Project(projectID), projectID, models.EventBoardUpdated, payload)
}

func (e *Emitter) WorkspaceUpdated(workspaceID string, payload any) {
	e.emit(rooms.Workspace(workspaceID), workspaceID, models.EventWorkspaceUpdated, payload)
}

// Notification pushes n to every connection of userID. It does not store it.
func (e *Emitter) Notification(userID string, n models.Notification) {
	e.emit(rooms.User(userID), userID, models.EventNotification, n)
}

func (e *Emitter) ChatMessage(projectID string, msg any) {
	e.emit(rooms.Chat(projectID), projectID, models.EventNewMessage, msg)
}

func (e *Emitter) IsUserOnline(userID string) bool {
	return e.hub.IsOnline(userID)
}

func (e *Emitter) OnlineUsers() []models.Profile {
	return e.hub.OnlineUsers()
}

// ConnectedUsersCount returns the number of distinct online users. A user
// with several open tabs counts once.
func (e *Emitter) ConnectedUsersCount() int {
	return e.hub.OnlineCount()
}

// ConnectionCount returns the number of open sockets.
func (e *Emitter) ConnectionCount() int {
	return e.hub.ConnectionCount()
}

func (e *Emitter) UserConnections(userID string) int {
	return e.hub.UserConnections(userID)
}

func (e *Emitter) RoomSize(key rooms.Key) int {
	return e.hub.RoomSize(key)
}

func (e *Emitter) RoomCount() int {
	return e.hub.RoomCount()
}

// EmitRequest is the wire form accepted by Dispatch.
type EmitRequest struct {
	Event string `json:"event"`
	ID    string `json:"id"`
	Data  any    `json:"data"`
}

// Dispatch routes a named outbound event to the matching emitter method.
func (e *Emitter) Dispatch(req EmitRequest) error {
	if req.ID == "" {
		return models.Invalid("id is required")
	}
	switch req.Event {
	case models.EventTaskUpdated:
		e.TaskUpdated(req.ID, req.Data)
	case models.EventNewComment:
		e.CommentAdded(req.ID, req.Data)
	case models.EventBoardUpdated:
		e.BoardUpdated(req.ID, req.Data)
	case models.EventWorkspaceUpdated:
		e.WorkspaceUpdated(req.ID, req.Data)
	case models.EventNewMessage:
		e.ChatMessage(req.ID, req.Data)
	case models.EventNotification:
		n, err := decodeNotification(req.Data)
		if err != nil {
			return err
		}
		n.UserID = req.ID
		e.Notification(req.ID, n)
	default:
		return models.Invalid("unsupported event %q", req.Event)
	}
	return nil
}

// decodeNotification converts a loosely typed payload into a notification
// fit for delivery. Text is sanitized since it is rendered by clients.
func decodeNotification(data any) (models.Notification, error) {
	var n models.Notification
	raw, err := json.Marshal(data)
	if err != nil {
		return n, models.Invalid("malformed notification payload")
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return n, models.Invalid("malformed notification payload")
	}
	if !n.Type.Valid() {
		return n, models.Invalid("invalid notification type %q", n.Type)
	}
	n.Text = content.Sanitize(n.Text)
	if n.Text == "" {
		return n, models.Invalid("notification text is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return n, nil
}
