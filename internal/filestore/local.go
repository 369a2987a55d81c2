package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFileStore implements FileStore using the local filesystem.
type LocalFileStore struct {
	root string
}

func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &LocalFileStore{root: root}, nil
}

func validHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

func (s *LocalFileStore) getPath(hash string) string {
	return filepath.Join(s.root, hash[:2], hash)
}

func (s *LocalFileStore) Save(r io.Reader) (string, int64, error) {
	// Content goes to a temp file in the root first since the final
	// location depends on the hash.
	tmp, err := os.CreateTemp(s.root, "upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	hash := hex.EncodeToString(h.Sum(nil))
	path := s.getPath(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, size, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("failed to rename file: %w", err)
	}

	return hash, size, nil
}

func (s *LocalFileStore) Get(hash string) (io.ReadCloser, error) {
	if !validHash(hash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	f, err := os.Open(s.getPath(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", hash, err)
	}
	return f, nil
}
