package storage

import (
	"errors"
	"fmt"

	"devcollab/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// FileMetadata describes an uploaded avatar image stored by the filestore.
type FileMetadata struct {
	ID        string `msgpack:"id"`
	Hash      string `msgpack:"hash"`
	MimeType  string `msgpack:"mimeType"`
	Size      int64  `msgpack:"size"`
	OwnerID   string `msgpack:"ownerId"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (f *FileMetadata) Key() []byte {
	return []byte(f.ID)
}

func (f *FileMetadata) MarshalBinary() (data []byte, err error) {
	type alias FileMetadata
	return msgpack.Marshal((*alias)(f))
}

func (f *FileMetadata) UnmarshalBinary(data []byte) error {
	type alias FileMetadata
	return msgpack.Unmarshal(data, (*alias)(f))
}

func (s *BboltStorage) UpsertFileMetadata(meta FileMetadata) error {
	if meta.CreatedAt == 0 {
		meta.CreatedAt = millis(s.now())
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket(bucketFiles), &meta)
	})
}

func (s *BboltStorage) GetFileMetadata(id string) (FileMetadata, error) {
	var meta FileMetadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getRecord(tx.Bucket(bucketFiles), []byte(id), &meta)
	})
	if errors.Is(err, models.ErrNotFound) {
		return FileMetadata{}, fmt.Errorf("file %s: %w", id, models.ErrNotFound)
	}
	return meta, err
}
