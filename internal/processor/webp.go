package processor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	// Register the webp decoder so webp originals pass image.Decode.
	_ "golang.org/x/image/webp"
)

// WebPGenerator implements Generator with a fill-area resize: the source is
// scaled so it covers the target square, center-cropped to the exact
// dimensions, and re-encoded as lossy webp.
type WebPGenerator struct {
	policy Policy
}

// NewWebPGenerator constructs a WebPGenerator with the given policy.
func NewWebPGenerator(policy Policy) *WebPGenerator {
	return &WebPGenerator{policy: policy}
}

// Policy returns the generator's rendering policy.
func (g *WebPGenerator) Policy() Policy {
	return g.policy
}

// Generate renders the thumbnail. Format is auto-detected; jpeg, png, gif
// and webp sources are supported.
func (g *WebPGenerator) Generate(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// Scale to cover the target box, then crop centred on the image.
	thumb := imaging.Fill(img, g.policy.Width, g.policy.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, thumb, &webp.Options{Lossless: false, Quality: float32(g.policy.Quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}

	return buf.Bytes(), nil
}
