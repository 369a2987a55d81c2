package storage

import (
	"fmt"

	"devcollab/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Notifications live in a nested bucket per recipient, keyed by sequence, so
// a cursor walk from the end yields newest first.

func (s *BboltStorage) CreateNotification(n models.Notification) (models.Notification, error) {
	if n.UserID == "" {
		return models.Notification{}, fmt.Errorf("notification missing userID")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketNotifications).CreateBucketIfNotExists([]byte(n.UserID))
		if err != nil {
			return fmt.Errorf("failed to create notifications bucket: %w", err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putRecord(b, &DBNotification{
			ID:          n.ID,
			Seq:         seq,
			UserID:      n.UserID,
			Type:        string(n.Type),
			Text:        n.Text,
			Read:        n.Read,
			WorkspaceID: n.Data.WorkspaceID,
			ProjectID:   n.Data.ProjectID,
			TaskID:      n.Data.TaskID,
			SenderID:    n.Data.SenderID,
			CreatedAt:   millis(n.CreatedAt),
		})
	})
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// ListNotifications returns a page of the user's notifications newest first
// and the total number matching the filter.
func (s *BboltStorage) ListNotifications(userID string, page, limit int, unreadOnly bool) ([]models.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	list := []models.Notification{}
	total := 0
	skip := pageOffset(page, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var dbNotification DBNotification
			if err := dbNotification.UnmarshalBinary(v); err != nil {
				return err
			}
			if unreadOnly && dbNotification.Read {
				continue
			}
			total++
			if skip > 0 {
				skip--
				continue
			}
			if len(list) < limit {
				list = append(list, dbNotification.model())
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *BboltStorage) UnreadCount(userID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var dbNotification DBNotification
			if err := dbNotification.UnmarshalBinary(v); err != nil {
				return err
			}
			if !dbNotification.Read {
				count++
			}
			return nil
		})
	})
	return count, err
}

// updateNotifications applies fn to every notification of the user. fn
// returns keep=false to delete the record and changed=true to rewrite it.
func (s *BboltStorage) updateNotifications(userID string, fn func(n *DBNotification) (keep, changed bool)) (int, error) {
	touched := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if b == nil {
			return nil
		}

		var (
			deletes [][]byte
			updates []*DBNotification
		)
		err := b.ForEach(func(k, v []byte) error {
			n := &DBNotification{}
			if err := n.UnmarshalBinary(v); err != nil {
				return err
			}
			keep, changed := fn(n)
			switch {
			case !keep:
				deletes = append(deletes, append([]byte(nil), k...))
			case changed:
				updates = append(updates, n)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Mutating a bucket inside ForEach is not allowed.
		for _, k := range deletes {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		for _, n := range updates {
			if err := putRecord(b, n); err != nil {
				return err
			}
		}
		touched = len(deletes) + len(updates)
		return nil
	})
	return touched, err
}

// MarkNotificationRead marks one of the user's notifications as read.
// Notifications of other users are reported as not found.
func (s *BboltStorage) MarkNotificationRead(userID, id string) (models.Notification, error) {
	var found *DBNotification
	_, err := s.updateNotifications(userID, func(n *DBNotification) (bool, bool) {
		if n.ID != id {
			return true, false
		}
		found = n
		if n.Read {
			return true, false
		}
		n.Read = true
		return true, true
	})
	if err != nil {
		return models.Notification{}, err
	}
	if found == nil {
		return models.Notification{}, models.ErrNotFound
	}
	return found.model(), nil
}

func (s *BboltStorage) MarkAllNotificationsRead(userID string) (int, error) {
	return s.updateNotifications(userID, func(n *DBNotification) (bool, bool) {
		if n.Read {
			return true, false
		}
		n.Read = true
		return true, true
	})
}

func (s *BboltStorage) DeleteNotification(userID, id string) error {
	deleted, err := s.updateNotifications(userID, func(n *DBNotification) (bool, bool) {
		return n.ID != id, false
	})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearReadNotifications deletes every read notification of the user.
func (s *BboltStorage) ClearReadNotifications(userID string) (int, error) {
	return s.updateNotifications(userID, func(n *DBNotification) (bool, bool) {
		return !n.Read, false
	})
}
