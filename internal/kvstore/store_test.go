package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	var got doc
	ok, err := s.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("bus-/fromSfc/toShonandai.json", doc{Name: "a", Count: 2}))
	ok, err = s.Get("bus-/fromSfc/toShonandai.json", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, doc{Name: "a", Count: 2}, got)

	// The key is escaped into a single file inside the store directory.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("prefs", doc{Name: "x"}))

	s2, err := Open(dir)
	require.NoError(t, err)
	var got doc
	ok, err := s2.Get("prefs", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got.Name)
}

func TestDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Put("session", doc{Name: "u"}))
	require.NoError(t, s.Delete("session"))
	require.NoError(t, s.Delete("session"))

	var got doc
	ok, err := s.Get("session", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prefs.json"), []byte("invalid json {"), 0o644))

	var got doc
	_, err = s.Get("prefs", &got)
	assert.Error(t, err)
}

func TestOpenRejectsEmptyDir(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
