package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalFileStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalFileStore(root)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	content := "avatar bytes"
	sum := sha256.Sum256([]byte(content))
	want := hex.EncodeToString(sum[:])

	hash, size, err := store.Save(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if hash != want || size != int64(len(content)) {
		t.Fatalf("Save() = %s, %d; want %s, %d", hash, size, want, len(content))
	}

	// Same content again keeps one copy and leaves no temp files behind.
	if again, _, err := store.Save(strings.NewReader(content)); err != nil || again != hash {
		t.Fatalf("second Save() = %s, %v", again, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != hash[:2] {
		t.Errorf("unexpected root entries %v", entries)
	}
	if _, err := os.Stat(filepath.Join(root, hash[:2], hash)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	rc, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(got) != content {
		t.Errorf("Get() = %q, want %q", got, content)
	}

	if _, err := store.Get("../../etc/passwd"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("expected ErrInvalidHash, got %v", err)
	}

	missing := strings.Repeat("ab", sha256.Size)
	if _, err := store.Get(missing); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not exist for %s, got %v", missing, err)
	}
}
