// Package registry implements the token-indexed document registry: creating
// entries on upload, resolving tokens respecting expiry, deleting entries and
// their blobs, and purging expired entries.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdfdrop/internal/metadata"
	"pdfdrop/internal/model"
	"pdfdrop/internal/qr"
	"pdfdrop/internal/storage"
	"pdfdrop/internal/token"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrExpired   = errors.New("document link expired")
	ErrReaderNil = errors.New("reader is nil")
	// ErrNoMirror is returned by Reindex when no remote mirror is configured;
	// there is nothing to rebuild the indices from.
	ErrNoMirror = errors.New("reindex requires a remote metadata mirror")
)

// blobOpTimeout bounds best-effort blob deletions so storage backend hiccups
// cannot wedge Delete or the purge scheduler.
const blobOpTimeout = 30 * time.Second

const (
	documentPrefix = "documents/"
	qrPrefix       = "qr/"
)

// Config carries the registry's tunables.
type Config struct {
	// BaseURL is the externally visible prefix for resolution URLs.
	BaseURL string
	// TTL applied to new entries; zero or negative means entries never expire.
	TTL time.Duration
	// ListMax bounds List results and mirror listings.
	ListMax int
}

// Service defines the use cases for handling documents.
type Service interface {
	// Create stores the PDF blob, mints a token, persists metadata to both
	// indices, and best-effort renders and stores the QR image.
	Create(ctx context.Context, r io.Reader, originalName string, mimeType string, size int64) (*model.DocumentEntry, error)

	// Resolve maps a token to its entry. Returns ErrNotFound for unknown
	// tokens and ErrExpired for known but time-lapsed ones. Never mutates
	// state.
	Resolve(ctx context.Context, tok string) (*model.DocumentEntry, error)

	// Open resolves the token and opens the PDF blob for streaming.
	Open(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error)

	// OpenQR resolves the token and opens the stored QR image. Entries whose
	// QR rendering failed at create time resolve but have no QR.
	OpenQR(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error)

	// PresignView returns a short-lived signed URL for the PDF blob, or
	// storage.ErrPresignUnsupported when the backend cannot issue one.
	PresignView(ctx context.Context, tok string, expiry time.Duration) (string, error)

	// Delete removes the entry and best-effort deletes its blobs. Idempotent
	// under retry: a second call returns ErrNotFound.
	Delete(ctx context.Context, tok string) error

	// Purge removes every expired entry and returns the count removed.
	Purge(ctx context.Context) (int, error)

	// List returns entries newest first, bounded by the configured maximum.
	List(ctx context.Context) ([]model.DocumentEntry, error)

	// Reindex rebuilds the local indices from the remote mirror records.
	Reindex(ctx context.Context) (int, error)

	// ViewURL builds the resolution URL for a token.
	ViewURL(tok string) string
}

// documentRegistry is the concrete Service. One sync.RWMutex serializes every
// metadata read-modify-write sequence so concurrent Creates never clobber
// each other; blob I/O runs outside the lock.
type documentRegistry struct {
	mu      sync.RWMutex
	idx     metadata.Indices
	store   *metadata.Store
	backend storage.Backend
	mirror  *metadata.Mirror
	cfg     Config
	now     func() time.Time
}

// Option customizes a registry at construction time.
type Option func(*documentRegistry)

// WithClock injects the time source; tests use it to step through expiry.
func WithClock(now func() time.Time) Option {
	return func(r *documentRegistry) { r.now = now }
}

// WithMirror enables per-token remote metadata mirroring.
func WithMirror(m *metadata.Mirror) Option {
	return func(r *documentRegistry) { r.mirror = m }
}

// New constructs the registry, loading the persisted indices.
func New(backend storage.Backend, store *metadata.Store, cfg Config, opts ...Option) Service {
	if cfg.ListMax <= 0 {
		cfg.ListMax = 500
	}
	r := &documentRegistry{
		idx:     store.ReadAll(),
		store:   store,
		backend: backend,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *documentRegistry) Create(ctx context.Context, rd io.Reader, originalName string, mimeType string, size int64) (*model.DocumentEntry, error) {
	if rd == nil {
		return nil, ErrReaderNil
	}

	tok, err := token.New()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	key := storageKey(now, originalName)

	// An entry without its blob is useless, so a storage write failure fails
	// the upload.
	info, err := r.backend.Put(ctx, key, rd, storage.PutOptions{
		Size:        size,
		ContentType: mimeType,
		Metadata: map[string]string{
			"original-filename": originalName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store document blob: %w", err)
	}

	entry := model.DocumentEntry{
		Token:        tok,
		OriginalName: originalName,
		MimeType:     mimeType,
		SizeBytes:    info.Size,
		StorageKey:   key,
		CreatedAt:    now,
	}
	if r.cfg.TTL > 0 {
		exp := now.Add(r.cfg.TTL)
		entry.ExpiresAt = &exp
	}

	if err := r.commit(entry); err != nil {
		// The blob is unreachable without metadata; clean it up.
		r.deleteBlobs(entry)
		return nil, err
	}
	r.mirrorPut(ctx, entry)

	// QR rendering is best-effort: failure is reported in logs, the entry
	// remains valid without a QR.
	if qrEntry, ok := r.attachQR(ctx, entry); ok {
		entry = qrEntry
	}

	return &entry, nil
}

// attachQR renders and stores the QR image for the entry's view URL and
// persists the updated entry. Returns the updated entry and whether it took.
func (r *documentRegistry) attachQR(ctx context.Context, entry model.DocumentEntry) (model.DocumentEntry, bool) {
	png, err := qr.Render(r.ViewURL(entry.Token))
	if err != nil {
		log.Printf("registry: render qr for %s: %v", entry.Token, err)
		return entry, false
	}

	qrKey := qrPrefix + entry.Token + ".png"
	_, err = r.backend.Put(ctx, qrKey, bytes.NewReader(png), storage.PutOptions{
		Size:        int64(len(png)),
		ContentType: "image/png",
	})
	if err != nil {
		log.Printf("registry: store qr for %s: %v", entry.Token, err)
		return entry, false
	}

	entry.QRStorageKey = qrKey
	if err := r.commit(entry); err != nil {
		log.Printf("registry: persist qr key for %s: %v", entry.Token, err)
		return entry, false
	}
	r.mirrorPut(ctx, entry)
	return entry, true
}

// commit inserts the entry into both indices and persists them, rolling the
// in-memory state back if the write fails.
func (r *documentRegistry) commit(e model.DocumentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.idx.ByToken[e.Token]
	r.idx.Insert(e)
	if err := r.store.WriteAll(r.idx); err != nil {
		if had {
			r.idx.Insert(prev)
		} else {
			r.idx.Remove(e.Token)
		}
		return fmt.Errorf("persist metadata: %w", err)
	}
	return nil
}

func (r *documentRegistry) Resolve(ctx context.Context, tok string) (*model.DocumentEntry, error) {
	r.mu.RLock()
	e, ok := r.idx.ByToken[tok]
	r.mu.RUnlock()

	if !ok {
		// The local index may be stale or lost; try the remote mirror before
		// declaring the token unknown.
		if r.mirror == nil {
			return nil, ErrNotFound
		}
		me, err := r.mirror.Get(ctx, tok)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("mirror lookup for %s: %w", tok, err)
		}
		e = *me
	}

	cp := e
	if e.Expired(r.now()) {
		// The entry accompanies ErrExpired so callers can report when the
		// link lapsed.
		return &cp, ErrExpired
	}
	return &cp, nil
}

func (r *documentRegistry) Open(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error) {
	e, err := r.Resolve(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := r.backend.Get(ctx, e.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document blob: %w", err)
	}
	return rc, e, nil
}

func (r *documentRegistry) OpenQR(ctx context.Context, tok string) (io.ReadCloser, *model.DocumentEntry, error) {
	e, err := r.Resolve(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	if e.QRStorageKey == "" {
		return nil, nil, ErrNotFound
	}
	rc, _, err := r.backend.Get(ctx, e.QRStorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open qr blob: %w", err)
	}
	return rc, e, nil
}

func (r *documentRegistry) PresignView(ctx context.Context, tok string, expiry time.Duration) (string, error) {
	e, err := r.Resolve(ctx, tok)
	if err != nil {
		return "", err
	}
	return r.backend.PresignGet(ctx, e.StorageKey, expiry)
}

func (r *documentRegistry) Delete(ctx context.Context, tok string) error {
	r.mu.RLock()
	e, ok := r.idx.ByToken[tok]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	// Blob cleanup is advisory and must not block token invalidation;
	// failures are logged and the metadata removal still commits.
	r.deleteBlobs(e)

	r.mu.Lock()
	_, ok = r.idx.Remove(tok)
	var werr error
	if ok {
		werr = r.store.WriteAll(r.idx)
	}
	r.mu.Unlock()

	if !ok {
		// A concurrent Delete committed first.
		return ErrNotFound
	}
	if werr != nil {
		return fmt.Errorf("persist metadata: %w", werr)
	}
	r.mirrorDelete(ctx, tok)
	return nil
}

func (r *documentRegistry) Purge(ctx context.Context) (int, error) {
	now := r.now()

	r.mu.RLock()
	var expired []model.DocumentEntry
	for _, e := range r.idx.ByToken {
		if e.Expired(now) {
			expired = append(expired, e)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return 0, nil
	}

	for _, e := range expired {
		r.deleteBlobs(e)
	}

	r.mu.Lock()
	removed := 0
	for _, e := range expired {
		// Re-check at write time: the token may have been deleted meanwhile,
		// and tokens are never reused, so an entry present under the same
		// token is the one we scanned.
		cur, ok := r.idx.ByToken[e.Token]
		if !ok || !cur.Expired(now) {
			continue
		}
		r.idx.Remove(e.Token)
		removed++
	}
	var werr error
	if removed > 0 {
		// One write after the full scan bounds write amplification.
		werr = r.store.WriteAll(r.idx)
	}
	r.mu.Unlock()

	if werr != nil {
		return removed, fmt.Errorf("persist metadata: %w", werr)
	}
	for _, e := range expired {
		r.mirrorDelete(ctx, e.Token)
	}
	return removed, nil
}

func (r *documentRegistry) List(ctx context.Context) ([]model.DocumentEntry, error) {
	r.mu.RLock()
	merged := make(map[string]model.DocumentEntry, len(r.idx.ByToken))
	for tok, e := range r.idx.ByToken {
		merged[tok] = e
	}
	r.mu.RUnlock()

	if r.mirror != nil {
		remote, err := r.mirror.List(ctx, r.cfg.ListMax)
		if err != nil {
			log.Printf("registry: list mirror: %v", err)
		} else {
			// Remote records take precedence on collision.
			for _, e := range remote {
				merged[e.Token] = e
			}
		}
	}

	out := make([]model.DocumentEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Token < out[j].Token
	})
	if len(out) > r.cfg.ListMax {
		out = out[:r.cfg.ListMax]
	}
	return out, nil
}

func (r *documentRegistry) Reindex(ctx context.Context) (int, error) {
	if r.mirror == nil {
		return 0, ErrNoMirror
	}

	records, err := r.mirror.List(ctx, 0)
	if err != nil {
		return 0, err
	}
	blobKeys, err := r.backend.ListByPrefix(ctx, documentPrefix, 0)
	if err != nil {
		return 0, fmt.Errorf("list document blobs: %w", err)
	}

	rebuilt := metadata.NewIndices()
	for _, e := range records {
		rebuilt.Insert(e)
	}

	r.mu.Lock()
	// Keep local-only entries; their blobs may predate mirroring.
	for tok, e := range r.idx.ByToken {
		if _, ok := rebuilt.ByToken[tok]; !ok {
			rebuilt.Insert(e)
		}
	}
	// Blobs with neither a mirror record nor a local entry are left alone.
	// Minting fresh tokens for them would silently invalidate every QR and
	// link already distributed for those files.
	orphans := 0
	for _, key := range blobKeys {
		if _, ok := rebuilt.ByFilename[key]; !ok {
			orphans++
		}
	}
	if orphans > 0 {
		log.Printf("registry: reindex found %d blob(s) without metadata, leaving untouched", orphans)
	}
	r.idx = rebuilt
	werr := r.store.WriteAll(r.idx)
	count := len(r.idx.ByToken)
	r.mu.Unlock()

	if werr != nil {
		return count, fmt.Errorf("persist metadata: %w", werr)
	}
	return count, nil
}

// ViewURL builds the resolution URL encoded into QR images and returned to
// upload callers.
func (r *documentRegistry) ViewURL(tok string) string {
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/view/" + tok
}

// deleteBlobs best-effort removes the entry's PDF and QR blobs with a bounded
// timeout, detached from the caller's context so request cancellation does
// not leak blobs.
func (r *documentRegistry) deleteBlobs(e model.DocumentEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), blobOpTimeout)
	defer cancel()

	if err := r.backend.Delete(ctx, e.StorageKey); err != nil {
		log.Printf("registry: delete blob %s: %v", e.StorageKey, err)
	}
	if e.QRStorageKey != "" {
		if err := r.backend.Delete(ctx, e.QRStorageKey); err != nil {
			log.Printf("registry: delete qr blob %s: %v", e.QRStorageKey, err)
		}
	}
}

func (r *documentRegistry) mirrorPut(ctx context.Context, e model.DocumentEntry) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Put(ctx, e); err != nil {
		log.Printf("registry: mirror put %s: %v", e.Token, err)
	}
}

func (r *documentRegistry) mirrorDelete(ctx context.Context, tok string) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Delete(ctx, tok); err != nil {
		log.Printf("registry: mirror delete %s: %v", tok, err)
	}
}

// storageKey derives a unique blob key from the upload time and original
// filename. Collision avoidance only; the key is never shown to clients.
func storageKey(now time.Time, originalName string) string {
	base := sanitizeFilename(path.Base(strings.ReplaceAll(originalName, "\\", "/")))
	if base == "" || base == "." {
		base = "document.pdf"
	}
	return fmt.Sprintf("%s%s-%s-%s", documentPrefix, now.Format("20060102-150405"), uuid.NewString()[:8], base)
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '-' || c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}
