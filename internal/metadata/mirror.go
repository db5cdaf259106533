package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"pdfdrop/internal/model"
	"pdfdrop/internal/storage"
)

const mirrorPrefix = "meta/"

// mirrorTimeout bounds every mirror round-trip so a hung remote call cannot
// wedge a create, a resolve fallback, or the purge scheduler.
const mirrorTimeout = 15 * time.Second

// Mirror maintains one small JSON record per token on the storage backend.
// The local Store stays the fast path; the mirror is an eventually consistent
// copy that lets Resolve fall back when the local index is stale and lets
// Reindex rebuild the indices after local metadata loss.
type Mirror struct {
	backend storage.Backend
}

// NewMirror creates a mirror writing records through the given backend.
func NewMirror(backend storage.Backend) *Mirror {
	return &Mirror{backend: backend}
}

func mirrorKey(tok string) string {
	return mirrorPrefix + tok + ".json"
}

// Put writes the per-token record for e.
func (m *Mirror) Put(ctx context.Context, e model.DocumentEntry) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal mirror record: %w", err)
	}
	_, err = m.backend.Put(ctx, mirrorKey(e.Token), bytes.NewReader(data), storage.PutOptions{
		Size:        int64(len(data)),
		ContentType: "application/json",
	})
	return err
}

// Get fetches the record for token. Returns storage.ErrNotExist when absent.
func (m *Mirror) Get(ctx context.Context, tok string) (*model.DocumentEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	rc, _, err := m.backend.Get(ctx, mirrorKey(tok))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var e model.DocumentEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode mirror record for %s: %w", tok, err)
	}
	return &e, nil
}

// Delete removes the record for token. Missing records are not an error.
func (m *Mirror) Delete(ctx context.Context, tok string) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	err := m.backend.Delete(ctx, mirrorKey(tok))
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}

// List fetches up to limit mirror records. Records that fail to load or
// decode are skipped; a partial listing is more useful than none.
func (m *Mirror) List(ctx context.Context, limit int) ([]model.DocumentEntry, error) {
	listCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()

	keys, err := m.backend.ListByPrefix(listCtx, mirrorPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list mirror records: %w", err)
	}

	entries := make([]model.DocumentEntry, 0, len(keys))
	for _, key := range keys {
		tok := strings.TrimSuffix(path.Base(key), ".json")
		e, err := m.Get(ctx, tok)
		if err != nil {
			continue
		}
		entries = append(entries, *e)
	}
	return entries, nil
}
