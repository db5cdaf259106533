package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// localBackend stores blobs as files below a root directory. Keys are
// slash-relative paths; anything that would resolve outside the root is
// rejected before touching the filesystem.
type localBackend struct {
	root string
}

// NewLocal creates a filesystem backend rooted at root, creating the
// directory if needed.
func NewLocal(root string) (Backend, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &localBackend{root: abs}, nil
}

// Put writes to a temp file first and renames into place, so a concurrent
// reader never observes a half-written blob.
func (l *localBackend) Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error) {
	var zero ObjectInfo
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
	}, nil
}

// Get opens the blob file under key.
func (l *localBackend) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	var zero ObjectInfo
	if err := ctx.Err(); err != nil {
		return nil, zero, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return nil, zero, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, zero, ErrNotExist
		}
		return nil, zero, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, zero, err
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

// Delete removes the blob file. Missing files are ignored.
func (l *localBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListByPrefix walks the tree collecting slash-relative keys under prefix.
func (l *localBackend) ListByPrefix(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	stop := errors.New("limit reached")
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// The staging directory holds in-flight temp files only.
			if path == filepath.Join(l.root, "tmp") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		keys = append(keys, key)
		if limit > 0 && len(keys) >= limit {
			return stop
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return nil, err
	}
	return keys, nil
}

// PresignGet is not supported for the filesystem backend.
func (l *localBackend) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

// pathFromKey validates a key and resolves it below the root. Absolute keys
// and keys with ".." segments are rejected.
func (l *localBackend) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("storage key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}
