package processor

import "io"

// Policy fixes the rendered thumbnail shape and encoding. The catalog serves
// one rendition per product, so the values are set once at startup and never
// vary per request.
type Policy struct {
	Width   int
	Height  int
	Quality int // lossy webp quality, 0-100
}

// DefaultPolicy returns the catalog-wide thumbnail policy: a 300×300 square
// encoded as lossy webp at quality 85.
func DefaultPolicy() Policy {
	return Policy{Width: 300, Height: 300, Quality: 85}
}

// Generator renders a thumbnail from a source image stream.
type Generator interface {
	// Generate decodes the source image and returns the encoded thumbnail
	// bytes. The error reports undecodable or unencodable input.
	Generate(r io.Reader) ([]byte, error)
}
