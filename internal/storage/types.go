package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"devcollab/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

type DBUser struct {
	ID           string `msgpack:"id"`
	Email        string `msgpack:"email"`
	Name         string `msgpack:"name"`
	AvatarURL    string `msgpack:"avatarUrl"`
	Active       bool   `msgpack:"active"`
	PasswordHash string `msgpack:"passwordHash"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) model() models.User {
	return models.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		Active:    u.Active,
		CreatedAt: fromMillis(u.CreatedAt),
	}
}

type DBWorkspace struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	OwnerID   string `msgpack:"ownerId"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (w *DBWorkspace) Key() []byte {
	return []byte(w.ID)
}

func (w *DBWorkspace) MarshalBinary() (data []byte, err error) {
	type alias DBWorkspace
	return msgpack.Marshal((*alias)(w))
}

func (w *DBWorkspace) UnmarshalBinary(data []byte) error {
	type alias DBWorkspace
	return msgpack.Unmarshal(data, (*alias)(w))
}

func (w *DBWorkspace) model() models.Workspace {
	return models.Workspace{
		ID:        w.ID,
		Name:      w.Name,
		OwnerID:   w.OwnerID,
		CreatedAt: fromMillis(w.CreatedAt),
	}
}

type DBMember struct {
	WorkspaceID string `msgpack:"workspaceId"`
	UserID      string `msgpack:"userId"`
	Role        string `msgpack:"role"`
	JoinedAt    int64  `msgpack:"joinedAt"`
}

// Key groups members of a workspace under a common prefix.
func (m *DBMember) Key() []byte {
	return memberKey(m.WorkspaceID, m.UserID)
}

func memberKey(workspaceID, userID string) []byte {
	return []byte(workspaceID + "/" + userID)
}

func (m *DBMember) MarshalBinary() (data []byte, err error) {
	type alias DBMember
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMember) UnmarshalBinary(data []byte) error {
	type alias DBMember
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMember) model() models.WorkspaceMember {
	return models.WorkspaceMember{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        models.Role(m.Role),
		JoinedAt:    fromMillis(m.JoinedAt),
	}
}

type DBProjectMember struct {
	UserID  string `msgpack:"userId"`
	Role    string `msgpack:"role"`
	AddedAt int64  `msgpack:"addedAt"`
}

type DBProject struct {
	ID          string            `msgpack:"id"`
	WorkspaceID string            `msgpack:"workspaceId"`
	Name        string            `msgpack:"name"`
	Members     []DBProjectMember `msgpack:"members"`
	CreatedAt   int64             `msgpack:"createdAt"`
}

func (p *DBProject) Key() []byte {
	return []byte(p.ID)
}

func (p *DBProject) MarshalBinary() (data []byte, err error) {
	type alias DBProject
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProject) UnmarshalBinary(data []byte) error {
	type alias DBProject
	return msgpack.Unmarshal(data, (*alias)(p))
}

func newDBProject(p models.Project) DBProject {
	dbProject := DBProject{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		CreatedAt:   millis(p.CreatedAt),
	}
	for _, m := range p.Members {
		dbProject.Members = append(dbProject.Members, DBProjectMember{
			UserID:  m.UserID,
			Role:    string(m.Role),
			AddedAt: millis(m.AddedAt),
		})
	}
	return dbProject
}

func (p *DBProject) model() models.Project {
	project := models.Project{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		Name:        p.Name,
		CreatedAt:   fromMillis(p.CreatedAt),
	}
	for _, m := range p.Members {
		project.Members = append(project.Members, models.ProjectMember{
			UserID:  m.UserID,
			Role:    models.ProjectRole(m.Role),
			AddedAt: fromMillis(m.AddedAt),
		})
	}
	return project
}

type DBMessage struct {
	ID        string   `msgpack:"id"`
	Seq       uint64   `msgpack:"seq"`
	ProjectID string   `msgpack:"projectId"`
	SenderID  string   `msgpack:"senderId"`
	Text      string   `msgpack:"text"`
	Mentions  []string `msgpack:"mentions"`
	Edited    bool     `msgpack:"edited"`
	EditedAt  int64    `msgpack:"editedAt"`
	CreatedAt int64    `msgpack:"createdAt"`
}

func (m *DBMessage) Key() []byte {
	return []byte(m.ID)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) model() models.ChatMessage {
	return models.ChatMessage{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Mentions:  m.Mentions,
		Edited:    m.Edited,
		EditedAt:  fromMillis(m.EditedAt),
		CreatedAt: fromMillis(m.CreatedAt),
	}
}

type DBNotification struct {
	ID          string `msgpack:"id"`
	Seq         uint64 `msgpack:"seq"`
	UserID      string `msgpack:"userId"`
	Type        string `msgpack:"type"`
	Text        string `msgpack:"text"`
	Read        bool   `msgpack:"read"`
	WorkspaceID string `msgpack:"workspaceId,omitempty"`
	ProjectID   string `msgpack:"projectId,omitempty"`
	TaskID      string `msgpack:"taskId,omitempty"`
	SenderID    string `msgpack:"senderId,omitempty"`
	CreatedAt   int64  `msgpack:"createdAt"`
}

// Key orders notifications of a user by creation.
func (n *DBNotification) Key() []byte {
	return seqKey(n.Seq)
}

func (n *DBNotification) MarshalBinary() (data []byte, err error) {
	type alias DBNotification
	return msgpack.Marshal((*alias)(n))
}

func (n *DBNotification) UnmarshalBinary(data []byte) error {
	type alias DBNotification
	return msgpack.Unmarshal(data, (*alias)(n))
}

func (n *DBNotification) model() models.Notification {
	return models.Notification{
		ID:     n.ID,
		UserID: n.UserID,
		Type:   models.NotificationType(n.Type),
		Text:   n.Text,
		Read:   n.Read,
		Data: models.NotificationData{
			WorkspaceID: n.WorkspaceID,
			ProjectID:   n.ProjectID,
			TaskID:      n.TaskID,
			SenderID:    n.SenderID,
		},
		CreatedAt: fromMillis(n.CreatedAt),
	}
}

type DBPushSubscription struct {
	UserID   string `msgpack:"userId"`
	Endpoint string `msgpack:"endpoint"`
	P256dh   string `msgpack:"p256dh"`
	Auth     string `msgpack:"auth"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.Endpoint)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}
