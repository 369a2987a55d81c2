package models

import "encoding/json"

// ClientEvent represents a frame sent from the client to the server.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent represents a frame sent to the client.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventJoinWorkspace  = "join-workspace"
	EventLeaveWorkspace = "leave-workspace"
	EventJoinProject    = "join-project"
	EventLeaveProject   = "leave-project"
	EventJoinTask       = "join-task"
	EventLeaveTask      = "leave-task"
	EventJoinChat       = "join-chat"
	EventLeaveChat      = "leave-chat"
	EventSendMessage    = "send-message"
	EventEditMessage    = "edit-message"
	EventDeleteMessage  = "delete-message"
	EventTyping         = "typing"
	EventGetOnlineUsers = "get-online-users"
)

// Outbound event names.
const (
	EventUserOnline       = "user-online"
	EventUserOffline      = "user-offline"
	EventUserJoinedChat   = "user-joined-chat"
	EventUserLeftChat     = "user-left-chat"
	EventUserTyping       = "user-typing"
	EventNewMessage       = "new-message"
	EventMessageEdited    = "message-edited"
	EventMessageDeleted   = "message-deleted"
	EventMessageError     = "message-error"
	EventNotification     = "notification"
	EventTaskUpdated      = "task-updated"
	EventNewComment       = "new-comment"
	EventBoardUpdated     = "board-updated"
	EventWorkspaceUpdated = "workspace-updated"
	EventOnlineUsers      = "online-users"
)

type SendMessageRequest struct {
	ProjectID string   `json:"projectId"`
	Text      string   `json:"text"`
	Mentions  []string `json:"mentions"`
}

type EditMessageRequest struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
}

type TypingRequest struct {
	ProjectID string `json:"projectId"`
	IsTyping  bool   `json:"isTyping"`
}

type PresencePayload struct {
	UserID string   `json:"userId"`
	User   *Profile `json:"user,omitempty"`
}

type ChatPresencePayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping *bool  `json:"isTyping,omitempty"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
	Event string `json:"event,omitempty"`
}
