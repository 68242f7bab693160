package metrics

import (
	"context"
	"io"
	"time"

	"github.com/IdoEfroni/Grocery/pkg/storage"
)

// InstrumentedStorage wraps a Storage and counts every operation by type and
// status. A Read that hits a missing key counts as "missing", not "error",
// so routine existence probes do not look like failures on a dashboard.
type InstrumentedStorage struct {
	next storage.Storage
	rec  *Recorder
}

// InstrumentStorage wraps next so all calls are counted on rec.
func InstrumentStorage(next storage.Storage, rec *Recorder) *InstrumentedStorage {
	return &InstrumentedStorage{next: next, rec: rec}
}

func (s *InstrumentedStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	err := s.next.Write(ctx, key, r, size, contentType)
	s.rec.observeStorageOp("write", err)
	return err
}

func (s *InstrumentedStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.next.Read(ctx, key)
	s.rec.observeStorageOp("read", err)
	return rc, err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.next.Exists(ctx, key)
	s.rec.observeStorageOp("exists", err)
	return ok, err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	err := s.next.Delete(ctx, key)
	s.rec.observeStorageOp("delete", err)
	return err
}

func (s *InstrumentedStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	url, err := s.next.GetURL(ctx, key, expires)
	s.rec.observeStorageOp("url", err)
	return url, err
}
