// Package metadata persists the token-indexed document registry state as a
// single JSON document, plus an optional per-token remote mirror for
// reconstruction after local storage loss.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"pdfdrop/internal/model"
)

// Indices holds both persisted mappings. Every entry reachable from one index
// is reachable from the other with identical content; ByToken is the primary
// index and ByFilename is derived from each entry's StorageKey.
type Indices struct {
	ByToken    map[string]model.DocumentEntry `json:"byToken"`
	ByFilename map[string]model.DocumentEntry `json:"byFilename"`
}

// NewIndices returns empty initialized indices.
func NewIndices() Indices {
	return Indices{
		ByToken:    make(map[string]model.DocumentEntry),
		ByFilename: make(map[string]model.DocumentEntry),
	}
}

// Insert adds the entry to both indices.
func (idx *Indices) Insert(e model.DocumentEntry) {
	idx.ByToken[e.Token] = e
	idx.ByFilename[e.StorageKey] = e
}

// Remove drops the entry for token from both indices, returning it and
// whether it was present.
func (idx *Indices) Remove(tok string) (model.DocumentEntry, bool) {
	e, ok := idx.ByToken[tok]
	if !ok {
		return model.DocumentEntry{}, false
	}
	delete(idx.ByToken, tok)
	delete(idx.ByFilename, e.StorageKey)
	return e, true
}

// Store reads and writes the indices document on the local filesystem.
type Store struct {
	path string
}

// NewStore creates a store persisting to path, creating the parent directory
// if needed.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("metadata path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// ReadAll loads the persisted indices. A missing or unreadable document
// yields empty indices rather than an error; the registry stays usable,
// degraded, if metadata is lost.
func (s *Store) ReadAll() Indices {
	idx := NewIndices()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("metadata: read %s failed, starting empty: %v", s.path, err)
		}
		return idx
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		log.Printf("metadata: %s is corrupt, starting empty: %v", s.path, err)
		return NewIndices()
	}
	if idx.ByToken == nil {
		idx.ByToken = make(map[string]model.DocumentEntry)
	}
	if idx.ByFilename == nil {
		idx.ByFilename = make(map[string]model.DocumentEntry)
	}
	return idx
}

// WriteAll persists the indices via write-new-then-replace so a concurrent
// reader never observes a half-written document.
func (s *Store) WriteAll(idx Indices) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}
