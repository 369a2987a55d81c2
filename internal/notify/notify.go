// Package notify stores user notifications and pushes them to the
// recipient's live connections, falling back to browser web push when the
// recipient has none.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"devcollab/internal/models"
)

type Store interface {
	CreateNotification(n models.Notification) (models.Notification, error)
	ListNotifications(userID string, page, limit int, unreadOnly bool) ([]models.Notification, int, error)
	UnreadCount(userID string) (int, error)
	MarkNotificationRead(userID, id string) (models.Notification, error)
	MarkAllNotificationsRead(userID string) (int, error)
	DeleteNotification(userID, id string) error
	ClearReadNotifications(userID string) (int, error)
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(userID, endpoint string) error
}

// Realtime is the live delivery channel, normally the domain event emitter.
type Realtime interface {
	Notification(userID string, n models.Notification)
	IsUserOnline(userID string) bool
}

// PushSender delivers a payload to one browser subscription and returns the
// push service's HTTP status.
type PushSender interface {
	Send(sub models.PushSubscription, payload []byte) (int, error)
}

type Service struct {
	store    Store
	realtime Realtime
	push     PushSender // nil disables web push

	wg sync.WaitGroup
}

func NewService(store Store, realtime Realtime, push PushSender) *Service {
	return &Service{store: store, realtime: realtime, push: push}
}

// Notify stores n and pushes it to the recipient. Storage failures are
// returned. Delivery is best effort.
func (s *Service) Notify(n models.Notification) (models.Notification, error) {
	if n.UserID == "" {
		return models.Notification{}, models.Invalid("notification recipient is required")
	}
	if !n.Type.Valid() {
		return models.Notification{}, models.Invalid("unknown notification type %q", n.Type)
	}

	stored, err := s.store.CreateNotification(n)
	if err != nil {
		return models.Notification{}, models.Transient("create notification", err)
	}

	s.realtime.Notification(stored.UserID, stored)
	if s.push != nil && !s.realtime.IsUserOnline(stored.UserID) {
		s.wg.Go(func() { s.webPush(stored) })
	}
	return stored, nil
}

type pushMessage struct {
	Title string                  `json:"title"`
	Body  string                  `json:"body"`
	Type  string                  `json:"type"`
	Data  models.NotificationData `json:"data"`
}

func (s *Service) webPush(n models.Notification) {
	subs, err := s.store.ListPushSubscriptions(n.UserID)
	if err != nil {
		slog.Error("failed to list push subscriptions", "user_id", n.UserID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(pushMessage{
		Title: "devcollab",
		Body:  n.Text,
		Type:  string(n.Type),
		Data:  n.Data,
	})
	if err != nil {
		slog.Error("failed to encode push payload", "error", err)
		return
	}

	for _, sub := range subs {
		status, err := s.push.Send(sub, payload)
		switch {
		case err != nil:
			slog.Error("web push failed", "user_id", n.UserID, "error", err)
		case status == http.StatusGone || status == http.StatusNotFound:
			if err := s.store.DeletePushSubscription(n.UserID, sub.Endpoint); err != nil {
				slog.Error("failed to drop expired subscription", "user_id", n.UserID, "error", err)
			}
		case status >= 400:
			slog.Warn("web push rejected", "user_id", n.UserID, "status", status)
		}
	}
}

// Wait blocks until in-flight web pushes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func WorkspaceInviteText(workspaceName string) string {
	return fmt.Sprintf("You have been invited to join %q workspace", workspaceName)
}

func ProjectAddedText(projectName string) string {
	return fmt.Sprintf("You have been added to project %q", projectName)
}

func (s *Service) List(userID string, page, limit int, unreadOnly bool) ([]models.Notification, int, error) {
	list, total, err := s.store.ListNotifications(userID, page, limit, unreadOnly)
	return list, total, models.Transient("list notifications", err)
}

func (s *Service) UnreadCount(userID string) (int, error) {
	n, err := s.store.UnreadCount(userID)
	return n, models.Transient("unread count", err)
}

func (s *Service) MarkRead(userID, id string) (models.Notification, error) {
	n, err := s.store.MarkNotificationRead(userID, id)
	return n, models.Transient("mark read", err)
}

func (s *Service) MarkAllRead(userID string) (int, error) {
	n, err := s.store.MarkAllNotificationsRead(userID)
	return n, models.Transient("mark all read", err)
}

func (s *Service) Delete(userID, id string) error {
	return models.Transient("delete notification", s.store.DeleteNotification(userID, id))
}

func (s *Service) ClearRead(userID string) (int, error) {
	n, err := s.store.ClearReadNotifications(userID)
	return n, models.Transient("clear read", err)
}
