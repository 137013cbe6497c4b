// Package derivative implements spec.md §4.7: resizing a fetched image
// into the fixed thumb/grid/detail variants and encoding each as WebP.
// Resizing reuses disintegration/imaging (already the teacher's resize
// library, also used by internal/sidedetect and internal/collage).
// WebP encoding is not covered by any package in the retrieved pack;
// golang.org/x/image/webp only decodes. github.com/chai2010/webp is
// introduced as a real, out-of-pack dependency to fill that gap.
package derivative

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/bourdainai/bourdain-image-worker/internal/hashutil"
	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

// Setting is the target width and encode quality for one variant.
type Setting struct {
	Width   int
	Quality int
}

// Generator produces the fixed set of derivative variants for a decoded
// source image.
type Generator struct {
	settings map[pipeline.Variant]Setting
}

// New builds a Generator from a variant-name-keyed settings map, as
// loaded by internal/config.
func New(settings map[string]Setting) *Generator {
	byVariant := make(map[pipeline.Variant]Setting, len(settings))
	for name, s := range settings {
		byVariant[pipeline.Variant(name)] = s
	}
	return &Generator{settings: byVariant}
}

// Generate produces derivatives for every variant in pipeline.Variants,
// in that fixed order, aborting on the first failure per spec.md §4.7.
func (g *Generator) Generate(raw []byte, sha256hex string) ([]pipeline.DerivativeResult, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	originalWidth := src.Bounds().Dx()

	results := make([]pipeline.DerivativeResult, 0, len(pipeline.Variants))
	for _, variant := range pipeline.Variants {
		setting, ok := g.settings[variant]
		if !ok {
			return nil, fmt.Errorf("no derivative setting configured for variant %q", variant)
		}

		result, err := g.generateOne(src, variant, setting, originalWidth, sha256hex)
		if err != nil {
			return nil, fmt.Errorf("generate %s derivative: %w", variant, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (g *Generator) generateOne(src image.Image, variant pipeline.Variant, setting Setting, originalWidth int, sha256hex string) (pipeline.DerivativeResult, error) {
	targetWidth := setting.Width
	if targetWidth > originalWidth {
		targetWidth = originalWidth
	}

	resized := imaging.Resize(src, targetWidth, 0, imaging.Lanczos)
	bounds := resized.Bounds()

	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, &webp.Options{Quality: float32(setting.Quality)}); err != nil {
		return pipeline.DerivativeResult{}, fmt.Errorf("encode webp: %w", err)
	}

	return pipeline.DerivativeResult{
		Variant:     variant,
		Buffer:      buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Bytes:       buf.Len(),
		StoragePath: hashutil.DerivativeStoragePath(sha256hex, variant),
	}, nil
}
