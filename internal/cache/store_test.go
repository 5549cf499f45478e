package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/any-hub/imghub/internal/pathguard"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t, afero.NewMemMapFs())
	locator := Locator{Collection: "Logos", Path: "a/b/logo.jpg"}

	modTime := time.Now().Add(-time.Hour).UTC()
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), locator, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), locator)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
	if result.Entry.FilePath != "/cache/Logos/a/b/logo.jpg" {
		t.Fatalf("unexpected file path %s", result.Entry.FilePath)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t, afero.NewMemMapFs())
	_, err := store.Get(context.Background(), Locator{Collection: "Logos", Path: "missing.jpg"})
	if err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t, afero.NewMemMapFs())
	locator := Locator{Collection: "Logos", Path: "a/b/remove.jpg"}
	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
	if err := store.Remove(context.Background(), locator); err != nil {
		t.Fatalf("removing a missing entry should succeed: %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store := newTestStore(t, fsys)
	locator := Locator{Collection: "Logos", Path: "a/b"}

	filePath, err := store.EntryPath(locator)
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := fsys.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), locator); err == nil || err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreRejectsEscapingLocators(t *testing.T) {
	store := newTestStore(t, afero.NewMemMapFs())

	cases := []Locator{
		{Collection: "Logos", Path: "../Screenshots/a/b/x.jpg"},
		{Collection: "Logos", Path: "a/../../../etc/passwd"},
		{Collection: "Logos", Path: ""},
		{Collection: "..", Path: "x.jpg"},
		{Collection: "Logos/a", Path: "x.jpg"},
		{Collection: "", Path: "x.jpg"},
	}
	for _, loc := range cases {
		if _, err := store.EntryPath(loc); err == nil {
			t.Fatalf("expected error for %+v", loc)
		}
	}

	err := store.Remove(context.Background(), Locator{Collection: "Logos", Path: "../../images/Logos/a/b/logo.png"})
	if !errors.Is(err, pathguard.ErrPathViolation) {
		t.Fatalf("expected path violation, got %v", err)
	}
}

func TestStorePutCleansTempOnRenameFailure(t *testing.T) {
	fsys := &renameFailFs{Fs: afero.NewMemMapFs()}
	store := newTestStore(t, fsys)
	locator := Locator{Collection: "Logos", Path: "a/b/logo.jpg"}

	if _, err := store.Put(context.Background(), locator, bytes.NewReader([]byte("data")), PutOptions{}); err == nil {
		t.Fatalf("expected rename failure")
	}

	entries, err := afero.ReadDir(fsys, "/cache/Logos/a/b")
	if err != nil {
		t.Fatalf("read dir error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, got %d (%s)", len(entries), entries[0].Name())
	}
}

// newTestStore returns a Store rooted at /cache on the given filesystem.
func newTestStore(t *testing.T, fsys afero.Fs) Store {
	t.Helper()
	store, err := NewStore(fsys, "/cache")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

type renameFailFs struct {
	afero.Fs
}

func (f *renameFailFs) Rename(_, _ string) error {
	return errors.New("rename refused")
}
