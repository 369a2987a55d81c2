package storage

import (
	"fmt"

	"devcollab/internal/models"

	"go.etcd.io/bbolt"
)

// UpsertPushSubscription registers a browser push endpoint for the user.
// Re-subscribing the same endpoint replaces its keys.
func (s *BboltStorage) UpsertPushSubscription(sub models.PushSubscription) error {
	if sub.UserID == "" || sub.Endpoint == "" {
		return models.Invalid("push subscription requires user and endpoint")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketPushSubscriptions).CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return fmt.Errorf("failed to create subscriptions bucket: %w", err)
		}
		return putRecord(b, &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			P256dh:   sub.P256dh,
			Auth:     sub.Auth,
		})
	})
}

func (s *BboltStorage) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:   dbSub.UserID,
				Endpoint: dbSub.Endpoint,
				P256dh:   dbSub.P256dh,
				Auth:     dbSub.Auth,
			})
			return nil
		})
	})
	return subs, err
}

// DeletePushSubscription forgets an endpoint, typically after the push
// service reported it gone.
func (s *BboltStorage) DeletePushSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(endpoint))
	})
}
