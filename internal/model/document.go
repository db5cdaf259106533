package model

import "time"

// DocumentEntry represents one uploaded PDF in the registry.
// This is a pure domain model with no storage-specific dependencies or tags.
// It can be used across layers (HTTP, registry, metadata) without coupling to persistence.
type DocumentEntry struct {
	Token        string     `json:"token"`
	OriginalName string     `json:"original_name"`
	MimeType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size_bytes"`
	StorageKey   string     `json:"storage_key"`
	QRStorageKey string     `json:"qr_storage_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry's expiry time has passed as of now.
// A nil ExpiresAt means the entry never expires.
func (e *DocumentEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}
