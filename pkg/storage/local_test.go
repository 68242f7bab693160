package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	st, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("create local storage: %v", err)
	}
	return st
}

func writeObject(t *testing.T, st *LocalStorage, key string, data []byte) {
	t.Helper()
	err := st.Write(context.Background(), key, bytes.NewReader(data), int64(len(data)), "application/octet-stream")
	if err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
}

func TestLocalWriteReadRoundtrip(t *testing.T) {
	st := newTestLocal(t)
	content := []byte("webp bytes")

	writeObject(t, st, "A100_thumb.webp", content)

	rc, err := st.Read(context.Background(), "A100_thumb.webp")
	assert.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	assert.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalNestedKeys(t *testing.T) {
	st := newTestLocal(t)
	writeObject(t, st, "products/a/A100.jpg", []byte("jpeg"))

	ok, err := st.Exists(context.Background(), "products/a/A100.jpg")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalReadMissing(t *testing.T) {
	st := newTestLocal(t)

	_, err := st.Read(context.Background(), "nope.webp")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalExists(t *testing.T) {
	st := newTestLocal(t)

	ok, err := st.Exists(context.Background(), "A100_thumb.webp")
	assert.NoError(t, err)
	assert.False(t, ok)

	writeObject(t, st, "A100_thumb.webp", []byte("x"))

	ok, err = st.Exists(context.Background(), "A100_thumb.webp")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalOverwrite(t *testing.T) {
	st := newTestLocal(t)
	writeObject(t, st, "A100_thumb.webp", []byte("old"))
	writeObject(t, st, "A100_thumb.webp", []byte("new content"))

	rc, err := st.Read(context.Background(), "A100_thumb.webp")
	assert.NoError(t, err)
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, []byte("new content"), got)
}

func TestLocalDelete(t *testing.T) {
	st := newTestLocal(t)
	writeObject(t, st, "A100_thumb.webp", []byte("x"))

	assert.NoError(t, st.Delete(context.Background(), "A100_thumb.webp"))

	ok, _ := st.Exists(context.Background(), "A100_thumb.webp")
	assert.False(t, ok)

	// Deleting a missing key is not an error.
	assert.NoError(t, st.Delete(context.Background(), "A100_thumb.webp"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("source went away")
}

func TestLocalWriteLeavesNoTempFiles(t *testing.T) {
	st := newTestLocal(t)

	writeObject(t, st, "ok.webp", []byte("fine"))

	err := st.Write(context.Background(), "broken.webp", failingReader{}, -1, "image/webp")
	assert.Error(t, err)

	// The failed write must not surface under the final key or leave temp
	// files for a concurrent reader to trip over.
	ok, _ := st.Exists(context.Background(), "broken.webp")
	assert.False(t, ok)

	entries, err := os.ReadDir(st.BasePath())
	assert.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestLocalGetURL(t *testing.T) {
	st := newTestLocal(t)

	_, err := st.GetURL(context.Background(), "missing.webp", 0)
	assert.True(t, errors.Is(err, ErrNotExist))

	writeObject(t, st, "A100_thumb.webp", []byte("x"))

	url, err := st.GetURL(context.Background(), "A100_thumb.webp", 0)
	assert.NoError(t, err)
	assert.Equal(t, "/A100_thumb.webp", url)
}

func TestLocalRejectsPathTraversal(t *testing.T) {
	st := newTestLocal(t)

	err := st.Write(context.Background(), "../escape.txt", bytes.NewReader([]byte("x")), 1, "text/plain")
	assert.Error(t, err)

	outside := filepath.Join(filepath.Dir(st.BasePath()), "escape.txt")
	_, statErr := os.Stat(outside)
	assert.True(t, os.IsNotExist(statErr))
}
