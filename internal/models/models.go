package models

import "time"

// User represents an account known to the collaboration backend.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the minimal user view attached to broadcast payloads.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Avatar: u.AvatarURL}
}

// Presence represents the online status of a user.
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"` // Unix timestamp (seconds)
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// CanModerate reports whether the role may remove other members' content.
func (r Role) CanModerate() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

type WorkspaceMember struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type ProjectRole string

const (
	ProjectRoleLead      ProjectRole = "lead"
	ProjectRoleDeveloper ProjectRole = "developer"
	ProjectRoleViewer    ProjectRole = "viewer"
)

type ProjectMember struct {
	UserID  string      `json:"userId"`
	Role    ProjectRole `json:"role"`
	AddedAt time.Time   `json:"addedAt"`
}

type Project struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	Name        string          `json:"name"`
	Members     []ProjectMember `json:"members,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// HasMember reports whether userID is already listed on the project.
func (p Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// ChatMessage is a persisted project chat message.
type ChatMessage struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Mentions  []string  `json:"mentions"`
	Edited    bool      `json:"edited"`
	EditedAt  time.Time `json:"editedAt,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageView is a chat message with sender and mentioned users resolved,
// the shape broadcast to chat rooms.
type MessageView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Sender    Profile   `json:"sender"`
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	Mentions  []Profile `json:"mentions"`
	Edited    bool      `json:"edited"`
	EditedAt  time.Time `json:"editedAt,omitzero"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationType string

const (
	NotificationWorkspaceInvite NotificationType = "workspace_invite"
	NotificationTaskAssigned    NotificationType = "task_assigned"
	NotificationTaskUpdated     NotificationType = "task_updated"
	NotificationComment         NotificationType = "comment"
	NotificationMention         NotificationType = "mention"
	NotificationProjectAdded    NotificationType = "project_added"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationWorkspaceInvite, NotificationTaskAssigned, NotificationTaskUpdated,
		NotificationComment, NotificationMention, NotificationProjectAdded:
		return true
	}
	return false
}

// NotificationData references the entities a notification is about.
type NotificationData struct {
	WorkspaceID string `json:"workspaceId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
	SenderID    string `json:"senderId,omitempty"`
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Text      string           `json:"text"`
	Read      bool             `json:"read"`
	Data      NotificationData `json:"data"`
	CreatedAt time.Time        `json:"createdAt"`
}

// PushSubscription is a browser web push endpoint registered by a user.
type PushSubscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
