// Package chat authorizes, persists and broadcasts project chat messages.
package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"devcollab/internal/content"
	"devcollab/internal/models"
	"devcollab/internal/rooms"
)

const DefaultEditWindow = 15 * time.Minute

type Store interface {
	GetProject(id string) (models.Project, error)
	GetUsers(ids []string) ([]models.User, error)
	CreateMessage(msg models.ChatMessage) (models.ChatMessage, error)
	GetMessage(id string) (models.ChatMessage, error)
	SaveMessage(msg models.ChatMessage) error
	DeleteMessage(id string) error
	ListMessages(projectID string, page, limit int) ([]models.ChatMessage, int, error)
}

type Authorizer interface {
	MembershipOf(workspaceID, userID string) (models.Role, bool, error)
}

// Broadcaster is the room fan-out the pipeline publishes through.
type Broadcaster interface {
	Join(connID string, key rooms.Key) bool
	Leave(connID string, key rooms.Key) bool
	Broadcast(key rooms.Key, event string, payload any, excludeConnID string)
	MembersOf(key rooms.Key) []models.Profile
}

// Notifier delivers a notification durably and in realtime.
type Notifier interface {
	Notify(n models.Notification) (models.Notification, error)
}

type Config struct {
	EditWindow time.Duration
}

type Pipeline struct {
	store    Store
	authz    Authorizer
	hub      Broadcaster
	notifier Notifier

	editWindow time.Duration
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, authz Authorizer, hub Broadcaster, notifier Notifier, cfg Config) *Pipeline {
	if cfg.EditWindow <= 0 {
		cfg.EditWindow = DefaultEditWindow
	}
	return &Pipeline{
		store:      store,
		authz:      authz,
		hub:        hub,
		notifier:   notifier,
		editWindow: cfg.EditWindow,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// roomLock serializes persist+broadcast for one chat room so room events go
// out in the order they were stored.
func (p *Pipeline) roomLock(projectID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[projectID] = l
	}
	return l
}

func (p *Pipeline) project(projectID string) (models.Project, error) {
	if projectID == "" {
		return models.Project{}, models.ErrProjectNotFound
	}
	project, err := p.store.GetProject(projectID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Project{}, models.ErrProjectNotFound
	}
	if err != nil {
		return models.Project{}, models.Transient("get project", err)
	}
	return project, nil
}

// membership returns the user's workspace role or ErrNotAuthorized.
func (p *Pipeline) membership(project models.Project, userID string) (models.Role, error) {
	role, ok, err := p.authz.MembershipOf(project.WorkspaceID, userID)
	if err != nil {
		return "", models.Transient("membership", err)
	}
	if !ok {
		return "", models.ErrNotAuthorized
	}
	return role, nil
}

// Send stores a new message from sender, broadcasts it to the project's chat
// room and notifies mentioned users.
func (p *Pipeline) Send(sender models.User, req models.SendMessageRequest) (models.MessageView, error) {
	project, err := p.project(req.ProjectID)
	if err != nil {
		return models.MessageView{}, err
	}
	if _, err := p.membership(project, sender.ID); err != nil {
		return models.MessageView{}, err
	}
	text, err := content.ValidateMessageText(req.Text)
	if err != nil {
		return models.MessageView{}, err
	}

	lock := p.roomLock(project.ID)
	lock.Lock()
	msg, err := p.store.CreateMessage(models.ChatMessage{
		ProjectID: project.ID,
		SenderID:  sender.ID,
		Text:      text,
		Mentions:  content.NormalizeMentions(req.Mentions),
		CreatedAt: p.now(),
	})
	if err != nil {
		lock.Unlock()
		return models.MessageView{}, models.Transient("create message", err)
	}
	view := p.view(msg)
	p.hub.Broadcast(rooms.Chat(project.ID), models.EventNewMessage, view, "")
	lock.Unlock()

	p.notifyMentions(sender, project, msg)
	return view, nil
}

func (p *Pipeline) notifyMentions(sender models.User, project models.Project, msg models.ChatMessage) {
	for _, userID := range msg.Mentions {
		if userID == sender.ID {
			continue
		}
		_, err := p.notifier.Notify(models.Notification{
			UserID: userID,
			Type:   models.NotificationMention,
			Text:   fmt.Sprintf("%s mentioned you in %s chat", sender.Name, project.Name),
			Data: models.NotificationData{
				WorkspaceID: project.WorkspaceID,
				ProjectID:   project.ID,
				SenderID:    sender.ID,
			},
		})
		if err != nil {
			slog.Error("mention notification failed", "message_id", msg.ID, "user_id", userID, "error", err)
		}
	}
}

func (p *Pipeline) message(messageID string) (models.ChatMessage, error) {
	if messageID == "" {
		return models.ChatMessage{}, models.ErrNotFound
	}
	msg, err := p.store.GetMessage(messageID)
	if err != nil {
		return models.ChatMessage{}, models.Transient("get message", err)
	}
	return msg, nil
}

// Edit replaces the text of a message. Only the sender may edit, and only
// within the edit window.
func (p *Pipeline) Edit(userID string, req models.EditMessageRequest) (models.MessageView, error) {
	msg, err := p.message(req.MessageID)
	if err != nil {
		return models.MessageView{}, err
	}
	if msg.SenderID != userID {
		return models.MessageView{}, models.ErrNotAuthorized
	}
	now := p.now()
	if now.Sub(msg.CreatedAt) > p.editWindow {
		return models.MessageView{}, models.ErrEditWindowExpired
	}
	text, err := content.ValidateMessageText(req.Text)
	if err != nil {
		return models.MessageView{}, err
	}

	lock := p.roomLock(msg.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	msg.Text = text
	msg.Edited = true
	msg.EditedAt = now
	if err := p.store.SaveMessage(msg); err != nil {
		return models.MessageView{}, models.Transient("save message", err)
	}
	view := p.view(msg)
	p.hub.Broadcast(rooms.Chat(msg.ProjectID), models.EventMessageEdited, view, "")
	return view, nil
}

// Delete removes a message. The sender and workspace owners or admins may
// delete. A message is announced as deleted exactly once.
func (p *Pipeline) Delete(userID string, req models.DeleteMessageRequest) error {
	msg, err := p.message(req.MessageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		project, err := p.project(msg.ProjectID)
		if err != nil {
			return err
		}
		role, err := p.membership(project, userID)
		if err != nil {
			return err
		}
		if !role.CanModerate() {
			return models.ErrNotAuthorized
		}
	}

	lock := p.roomLock(msg.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.store.DeleteMessage(msg.ID); err != nil {
		return models.Transient("delete message", err)
	}
	p.hub.Broadcast(rooms.Chat(msg.ProjectID), models.EventMessageDeleted, models.MessageDeletedPayload{MessageID: msg.ID}, "")
	return nil
}

// Typing relays a typing indicator to everyone else in the chat room.
// Nothing is stored or authorized.
func (p *Pipeline) Typing(connID string, user models.Profile, req models.TypingRequest) {
	if req.ProjectID == "" {
		return
	}
	isTyping := req.IsTyping
	p.hub.Broadcast(rooms.Chat(req.ProjectID), models.EventUserTyping, models.ChatPresencePayload{
		UserID:   user.ID,
		UserName: user.Name,
		IsTyping: &isTyping,
	}, connID)
}

// OnlineUsers returns the distinct users connected to the project's chat room.
func (p *Pipeline) OnlineUsers(projectID string) []models.Profile {
	return p.hub.MembersOf(rooms.Chat(projectID))
}

// JoinChat adds the connection to the chat room and tells the other
// occupants. Joining twice announces once.
func (p *Pipeline) JoinChat(connID string, user models.Profile, projectID string) {
	if projectID == "" {
		return
	}
	key := rooms.Chat(projectID)
	if p.hub.Join(connID, key) {
		p.hub.Broadcast(key, models.EventUserJoinedChat, models.ChatPresencePayload{UserID: user.ID, UserName: user.Name}, connID)
	}
}

func (p *Pipeline) LeaveChat(connID string, user models.Profile, projectID string) {
	if projectID == "" {
		return
	}
	key := rooms.Chat(projectID)
	if p.hub.Leave(connID, key) {
		p.hub.Broadcast(key, models.EventUserLeftChat, models.ChatPresencePayload{UserID: user.ID, UserName: user.Name}, connID)
	}
}

// History returns a page of the project's messages in chronological order
// and the total number of messages. The caller must be a workspace member.
func (p *Pipeline) History(userID, projectID string, page, limit int) ([]models.MessageView, int, error) {
	project, err := p.project(projectID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := p.membership(project, userID); err != nil {
		return nil, 0, err
	}
	msgs, total, err := p.store.ListMessages(project.ID, page, limit)
	if err != nil {
		return nil, 0, models.Transient("list messages", err)
	}
	return p.views(msgs), total, nil
}
