package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfdrop/internal/model"
)

func testEntry(tok, key string) model.DocumentEntry {
	return model.DocumentEntry{
		Token:        tok,
		OriginalName: "invoice.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    42,
		StorageKey:   key,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	idx := NewIndices()
	idx.Insert(testEntry("tok-1", "documents/a.pdf"))
	idx.Insert(testEntry("tok-2", "documents/b.pdf"))
	require.NoError(t, st.WriteAll(idx))

	got := st.ReadAll()
	assert.Len(t, got.ByToken, 2)
	assert.Len(t, got.ByFilename, 2)
	assert.Equal(t, idx.ByToken["tok-1"], got.ByToken["tok-1"])
	assert.Equal(t, idx.ByToken["tok-1"], got.ByFilename["documents/a.pdf"])
}

func TestStoreMissingFileYieldsEmpty(t *testing.T) {
	st, err := NewStore(filepath.Join(t.TempDir(), "never-written.json"))
	require.NoError(t, err)

	idx := st.ReadAll()
	assert.Empty(t, idx.ByToken)
	assert.Empty(t, idx.ByFilename)
	assert.NotNil(t, idx.ByToken)
}

func TestStoreCorruptFileYieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := NewStore(path)
	require.NoError(t, err)

	idx := st.ReadAll()
	assert.Empty(t, idx.ByToken)
	assert.NotNil(t, idx.ByFilename)
}

func TestStorePersistedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.json")
	st, err := NewStore(path)
	require.NoError(t, err)

	idx := NewIndices()
	idx.Insert(testEntry("tok-1", "documents/a.pdf"))
	require.NoError(t, st.WriteAll(idx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// The on-disk layout is part of the contract; older deployments read it back.
	assert.Contains(t, string(data), `"byToken"`)
	assert.Contains(t, string(data), `"byFilename"`)
}

func TestIndicesRemove(t *testing.T) {
	idx := NewIndices()
	idx.Insert(testEntry("tok-1", "documents/a.pdf"))

	e, ok := idx.Remove("tok-1")
	assert.True(t, ok)
	assert.Equal(t, "documents/a.pdf", e.StorageKey)
	assert.Empty(t, idx.ByToken)
	assert.Empty(t, idx.ByFilename)

	_, ok = idx.Remove("tok-1")
	assert.False(t, ok)
}
