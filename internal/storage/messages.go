package storage

import (
	"fmt"

	"devcollab/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// CreateMessage stores a chat message and appends it to the project's
// ordered message index.
func (s *BboltStorage) CreateMessage(msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.ProjectID == "" {
		return models.ChatMessage{}, fmt.Errorf("message missing projectID")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		index, err := tx.Bucket(bucketProjectMessages).CreateBucketIfNotExists([]byte(msg.ProjectID))
		if err != nil {
			return fmt.Errorf("failed to create project bucket: %w", err)
		}
		seq, err := index.NextSequence()
		if err != nil {
			return err
		}

		if err := index.Put(seqKey(seq), []byte(msg.ID)); err != nil {
			return fmt.Errorf("failed to index message: %w", err)
		}
		return putRecord(tx.Bucket(bucketMessages), &DBMessage{
			ID:        msg.ID,
			Seq:       seq,
			ProjectID: msg.ProjectID,
			SenderID:  msg.SenderID,
			Text:      msg.Text,
			Mentions:  msg.Mentions,
			Edited:    msg.Edited,
			EditedAt:  millis(msg.EditedAt),
			CreatedAt: millis(msg.CreatedAt),
		})
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (s *BboltStorage) GetMessage(id string) (models.ChatMessage, error) {
	var dbMessage DBMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getRecord(tx.Bucket(bucketMessages), []byte(id), &dbMessage)
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return dbMessage.model(), nil
}

// SaveMessage updates the mutable fields of an existing message.
func (s *BboltStorage) SaveMessage(msg models.ChatMessage) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		var dbMessage DBMessage
		if err := getRecord(b, []byte(msg.ID), &dbMessage); err != nil {
			return err
		}
		dbMessage.Text = msg.Text
		dbMessage.Mentions = msg.Mentions
		dbMessage.Edited = msg.Edited
		dbMessage.EditedAt = millis(msg.EditedAt)
		return putRecord(b, &dbMessage)
	})
}

// DeleteMessage removes a message. Deleting a missing id returns ErrNotFound.
func (s *BboltStorage) DeleteMessage(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		var dbMessage DBMessage
		if err := getRecord(b, []byte(id), &dbMessage); err != nil {
			return err
		}
		if index := tx.Bucket(bucketProjectMessages).Bucket([]byte(dbMessage.ProjectID)); index != nil {
			if err := index.Delete(seqKey(dbMessage.Seq)); err != nil {
				return err
			}
		}
		return b.Delete([]byte(id))
	})
}

// ListMessages pages through a project's messages newest first and returns
// the page in chronological order together with the total count.
func (s *BboltStorage) ListMessages(projectID string, page, limit int) ([]models.ChatMessage, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var (
		messages []models.ChatMessage
		total    int
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketProjectMessages).Bucket([]byte(projectID))
		if index == nil {
			return nil // No messages for this project
		}
		total = index.Stats().KeyN

		skip := pageOffset(page, limit)
		if skip >= total {
			return nil
		}
		all := tx.Bucket(bucketMessages)
		c := index.Cursor()
		for k, v := c.Last(); k != nil && len(messages) < limit; k, v = c.Prev() {
			if skip > 0 {
				skip--
				continue
			}
			var dbMessage DBMessage
			if err := getRecord(all, v, &dbMessage); err != nil {
				return fmt.Errorf("message index points to %s: %w", v, err)
			}
			messages = append(messages, dbMessage.model())
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}
