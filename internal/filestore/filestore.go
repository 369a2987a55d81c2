package filestore

import (
	"errors"
	"io"
)

var ErrInvalidHash = errors.New("invalid file hash")

// FileStore keeps uploaded blobs addressed by the sha256 of their content.
type FileStore interface {
	// Save streams r to the store and returns its hex sha256 and size.
	// Saving identical content twice keeps a single copy.
	Save(r io.Reader) (hash string, size int64, err error)

	// Get opens the content stored under hash.
	Get(hash string) (io.ReadCloser, error)
}
