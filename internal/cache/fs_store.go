package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/any-hub/imghub/internal/pathguard"
)

// NewStore 以 basePath 为缓存根目录构建磁盘缓存，整站复用一份实例。
func NewStore(fsys afero.Fs, basePath string) (Store, error) {
	if fsys == nil {
		return nil, errors.New("filesystem required")
	}
	if basePath == "" {
		return nil, errors.New("cache path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache path: %w", err)
	}

	if err := fsys.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache path: %w", err)
	}

	return &fileStore{
		fs:       fsys,
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 串行化同一 Locator 的 rename，并发编码本身不受限制。
type fileStore struct {
	fs       afero.Fs
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.EntryPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.EntryPath(locator)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	dir := filepath.Dir(filePath)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	tempFile, err := afero.TempFile(s.fs, dir, ".cache-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		_ = s.fs.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	} else if err := s.fs.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	filePath, err := s.EntryPath(locator)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(locator)
	defer unlock()

	if err := s.fs.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Root(collection string) (string, error) {
	name := strings.TrimSpace(collection)
	if name == "" {
		return "", errors.New("collection name required")
	}
	root := filepath.Join(s.basePath, name)
	if !pathguard.IsContained(s.basePath, root) || filepath.Dir(root) != s.basePath {
		return "", fmt.Errorf("collection %q: %w", collection, pathguard.ErrPathViolation)
	}
	return root, nil
}

// EntryPath 将 Locator 映射为缓存文件路径；任何逃逸出集合缓存根目录的路径都返回 ErrPathViolation。
func (s *fileStore) EntryPath(locator Locator) (string, error) {
	root, err := s.Root(locator.Collection)
	if err != nil {
		return "", err
	}

	rel := strings.TrimPrefix(locator.Path, "/")
	if rel == "" {
		return "", fmt.Errorf("empty cache path: %w", pathguard.ErrPathViolation)
	}
	filePath, err := pathguard.Resolve(root, filepath.FromSlash(rel))
	if err != nil {
		return "", fmt.Errorf("cache path %q: %w", locator.Path, err)
	}
	return filePath, nil
}

func (s *fileStore) lockEntry(locator Locator) func() {
	key := locatorKey(locator)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}

func locatorKey(locator Locator) string {
	return locator.Collection + "::" + locator.Path
}
