package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/IdoEfroni/Grocery/internal/metrics"
	"github.com/IdoEfroni/Grocery/internal/mq"
	"github.com/IdoEfroni/Grocery/internal/processor"
	"github.com/IdoEfroni/Grocery/pkg/storage"
)

// fakeStorage is an in-memory Storage that records every operation so tests
// can assert on probe order and write counts.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	reads   []string
	writes  int
	readErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (f *fakeStorage) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeStorage) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeStorage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	f.writes++
	return nil
}

func (f *fakeStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, key)
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "/" + key, nil
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func newTestConsumer(st storage.Storage) *Consumer {
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	gen := processor.NewWebPGenerator(processor.DefaultPolicy())
	return NewConsumer(st, gen, rec)
}

func TestConsumeGeneratesThumbnail(t *testing.T) {
	fs := newFakeStorage()
	fs.put("A100.jpg", encodeJPEG(t, 800, 400))
	c := newTestConsumer(fs)

	outcome, err := c.Consume(context.Background(), "A100")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)

	thumb, ok := fs.get("A100_thumb.webp")
	if !ok {
		t.Fatal("expected thumbnail to be written")
	}
	assert.Equal(t, "image/webp", fs.types["A100_thumb.webp"])

	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	assert.NoError(t, err)
	assert.Equal(t, "webp", format)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
}

func TestConsumeSkipsExistingThumbnail(t *testing.T) {
	existing := []byte{0x01, 0x02, 0x03}
	fs := newFakeStorage()
	fs.put("C300.gif", encodeJPEG(t, 200, 200))
	fs.put("C300_thumb.webp", existing)
	c := newTestConsumer(fs)

	outcome, err := c.Consume(context.Background(), "C300")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	// The cached thumbnail must be untouched, byte for byte.
	thumb, _ := fs.get("C300_thumb.webp")
	assert.Equal(t, existing, thumb)
	assert.Equal(t, 0, fs.writes)
}

func TestConsumeIsIdempotent(t *testing.T) {
	fs := newFakeStorage()
	fs.put("B200.png", encodeJPEG(t, 500, 500))
	c := newTestConsumer(fs)

	outcome, err := c.Consume(context.Background(), "B200")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)
	first, _ := fs.get("B200_thumb.webp")

	outcome, err = c.Consume(context.Background(), "B200")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	second, _ := fs.get("B200_thumb.webp")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fs.writes)
}

func TestConsumeProbesExtensionsInOrder(t *testing.T) {
	fs := newFakeStorage()
	fs.put("B200.png", encodeJPEG(t, 100, 100))
	fs.put("B200.webp", []byte("never reached"))
	c := newTestConsumer(fs)

	outcome, err := c.Consume(context.Background(), "B200")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)

	// .jpg and .jpeg miss first, .png hits, .gif and .webp are never probed.
	assert.Equal(t, []string{"B200.jpg", "B200.jpeg", "B200.png"}, fs.reads)
}

func TestConsumeOriginalMissing(t *testing.T) {
	tests := []struct {
		desc string
		seed func(fs *fakeStorage)
	}{
		{
			desc: "empty storage",
			seed: func(fs *fakeStorage) {},
		},
		{
			desc: "stale thumbnail without original",
			seed: func(fs *fakeStorage) {
				fs.put("D400_thumb.webp", []byte{0xFF})
			},
		},
	}

	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			fs := newFakeStorage()
			test.seed(fs)
			c := newTestConsumer(fs)

			_, err := c.Consume(context.Background(), "D400")
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrOriginalNotFound))
			assert.Equal(t, 0, fs.writes)

			// All extensions were probed before giving up.
			assert.Equal(t, len(OriginalExtensions), len(fs.reads))
		})
	}
}

func TestConsumeCorruptOriginal(t *testing.T) {
	fs := newFakeStorage()
	fs.put("E500.jpg", []byte("not pixels at all"))
	c := newTestConsumer(fs)

	_, err := c.Consume(context.Background(), "E500")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessingFailed))
	assert.False(t, errors.Is(err, ErrOriginalNotFound))
	assert.Equal(t, 0, fs.writes)
}

func TestConsumeBlankSKU(t *testing.T) {
	for _, sku := range []string{"", "   "} {
		fs := newFakeStorage()
		c := newTestConsumer(fs)

		outcome, err := c.Consume(context.Background(), sku)
		assert.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.Empty(t, fs.reads)
		assert.Equal(t, 0, fs.writes)
	}
}

func TestConsumeStorageFailure(t *testing.T) {
	fs := newFakeStorage()
	fs.readErr = errors.New("connection reset")
	c := newTestConsumer(fs)

	_, err := c.Consume(context.Background(), "A100")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrOriginalNotFound))
	assert.Equal(t, 0, fs.writes)
}

func TestHandleRequest(t *testing.T) {
	fs := newFakeStorage()
	fs.put("A100.jpg", encodeJPEG(t, 300, 300))
	c := newTestConsumer(fs)

	err := c.HandleRequest(context.Background(), &mq.ThumbnailRequest{SKU: "A100"})
	assert.NoError(t, err)

	_, ok := fs.get("A100_thumb.webp")
	assert.True(t, ok)

	err = c.HandleRequest(context.Background(), &mq.ThumbnailRequest{SKU: "missing"})
	assert.True(t, errors.Is(err, ErrOriginalNotFound))
}
