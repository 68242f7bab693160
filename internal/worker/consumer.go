package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/IdoEfroni/Grocery/internal/metrics"
	"github.com/IdoEfroni/Grocery/internal/mq"
	"github.com/IdoEfroni/Grocery/internal/processor"
	pkglog "github.com/IdoEfroni/Grocery/pkg/log"
	"github.com/IdoEfroni/Grocery/pkg/storage"
)

// Outcome reports how a thumbnail request ended.
type Outcome string

const (
	// OutcomeGenerated means a new thumbnail was rendered and stored.
	OutcomeGenerated Outcome = "generated"
	// OutcomeSkipped means the thumbnail already existed and was left as is.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIgnored means the request carried a blank SKU and was dropped.
	OutcomeIgnored Outcome = "ignored"
)

var (
	// ErrOriginalNotFound is returned when no original image exists for the
	// SKU under any known extension. Retryable: the original may simply not
	// have finished uploading yet.
	ErrOriginalNotFound = errors.New("original image not found")

	// ErrProcessingFailed is returned when the original was found but could
	// not be decoded or re-encoded.
	ErrProcessingFailed = errors.New("image processing failed")
)

// Consumer ensures each requested product has a cached thumbnail in storage.
// It is stateless; every request is resolved against storage alone, so any
// number of consumers can run concurrently.
type Consumer struct {
	storage storage.Storage
	gen     processor.Generator
	rec     *metrics.Recorder
}

// NewConsumer creates a thumbnail consumer backed by the given storage and
// generator.
func NewConsumer(st storage.Storage, gen processor.Generator, rec *metrics.Recorder) *Consumer {
	return &Consumer{
		storage: st,
		gen:     gen,
		rec:     rec,
	}
}

// HandleRequest implements mq.RequestHandler.
func (c *Consumer) HandleRequest(ctx context.Context, req *mq.ThumbnailRequest) error {
	_, err := c.Consume(ctx, req.SKU)
	return err
}

// Consume handles one thumbnail request for the given SKU and reports the
// outcome. A blank SKU is ignored rather than failed, so such requests are
// not redelivered.
func (c *Consumer) Consume(ctx context.Context, sku string) (Outcome, error) {
	start := time.Now()
	l := pkglog.Ctx(ctx)

	if strings.TrimSpace(sku) == "" {
		l.Warn().Msg("thumbnail request with blank sku, ignoring")
		c.rec.ObserveRequest(string(OutcomeIgnored), time.Since(start))
		return OutcomeIgnored, nil
	}

	outcome, err := c.consume(ctx, sku)
	if err != nil {
		c.rec.ObserveRequest("error", time.Since(start))
		return "", err
	}

	c.rec.ObserveRequest(string(outcome), time.Since(start))
	l.Debug().
		Str(pkglog.FieldSKU, sku).
		Str(pkglog.FieldOutcome, string(outcome)).
		Int64(pkglog.FieldDuration, time.Since(start).Milliseconds()).
		Msg("thumbnail request handled")
	return outcome, nil
}

func (c *Consumer) consume(ctx context.Context, sku string) (Outcome, error) {
	l := pkglog.Ctx(ctx)

	// The original must exist before anything else is decided. A request for
	// a product with no original is a failure even if a stale thumbnail is
	// still lying around.
	original, originalKey, err := c.locateOriginal(ctx, sku)
	if err != nil {
		return "", err
	}
	c.rec.ObserveImageBytes("original", len(original))

	// An existing thumbnail is taken as current. Regeneration after an
	// original changes requires deleting the thumbnail first.
	thumbKey := ThumbnailKey(sku)
	exists, err := c.storage.Exists(ctx, thumbKey)
	if err != nil {
		return "", fmt.Errorf("check thumbnail %s: %w", thumbKey, err)
	}
	if exists {
		l.Info().
			Str(pkglog.FieldSKU, sku).
			Str(pkglog.FieldKey, thumbKey).
			Msg("thumbnail already exists, skipping")
		return OutcomeSkipped, nil
	}

	thumb, err := c.gen.Generate(bytes.NewReader(original))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", originalKey, ErrProcessingFailed, err)
	}
	c.rec.ObserveImageBytes("thumbnail", len(thumb))

	if err := c.storage.Write(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), thumbnailContentType); err != nil {
		return "", fmt.Errorf("store thumbnail %s: %w", thumbKey, err)
	}

	l.Info().
		Str(pkglog.FieldSKU, sku).
		Str(pkglog.FieldKey, thumbKey).
		Int(pkglog.FieldBytes, len(thumb)).
		Msg("thumbnail generated")
	return OutcomeGenerated, nil
}

// locateOriginal probes storage for {sku}{ext} over OriginalExtensions in
// order and returns the first original found. Producers store exactly one
// original per product, so the first hit wins.
func (c *Consumer) locateOriginal(ctx context.Context, sku string) ([]byte, string, error) {
	for _, ext := range OriginalExtensions {
		key := OriginalKey(sku, ext)
		rc, err := c.storage.Read(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				continue
			}
			return nil, "", fmt.Errorf("read original %s: %w", key, err)
		}

		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read original %s: %w", key, err)
		}
		return data, key, nil
	}
	return nil, "", fmt.Errorf("%s: %w", sku, ErrOriginalNotFound)
}
