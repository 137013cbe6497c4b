package sidedetect

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// solidBordered builds a card-ratio image with a solid border color and a
// varied-hue interior, so we can drive the detector's border sampling
// deterministically.
func solidBordered(w, h int, border color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	borderPx := int(float64(w) * 0.12) // wider than the sampled 10% ring after resize
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < borderPx || x >= w-borderPx || y < borderPx || y >= h-borderPx {
				img.Set(x, y, border)
			} else {
				img.Set(x, y, color.RGBA{R: uint8((x * 37) % 255), G: uint8((y * 53) % 255), B: uint8((x + y) % 255), A: 255})
			}
		}
	}
	return img
}

func TestDetectYellowBorderIsFront(t *testing.T) {
	img := solidBordered(630, 880, color.RGBA{R: 230, G: 200, B: 40, A: 255})
	result := Detect(encode(t, img), 630, 880)
	assert.Equal(t, pipeline.SideFront, result.Side)
	assert.GreaterOrEqual(t, result.Confidence, 0.5)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestDetectBlueBorderIsBack(t *testing.T) {
	img := solidBordered(630, 880, color.RGBA{R: 10, G: 40, B: 200, A: 255})
	result := Detect(encode(t, img), 630, 880)
	assert.Equal(t, pipeline.SideBack, result.Side)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestDetectGarbageBytesReturnsUnknown(t *testing.T) {
	result := Detect([]byte("not an image"), 630, 880)
	assert.Equal(t, pipeline.SideUnknown, result.Side)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, pipeline.MethodHeuristic, result.Method)
}

func TestConfidenceAlwaysInUnitRange(t *testing.T) {
	cases := [][2]int{{630, 880}, {800, 800}, {1600, 600}}
	colors := []color.RGBA{
		{R: 230, G: 200, B: 40, A: 255},
		{R: 10, G: 40, B: 200, A: 255},
		{R: 128, G: 128, B: 128, A: 255},
	}
	for _, dims := range cases {
		for _, c := range colors {
			img := solidBordered(dims[0], dims[1], c)
			result := Detect(encode(t, img), dims[0], dims[1])
			assert.GreaterOrEqual(t, result.Confidence, 0.0)
			assert.LessOrEqual(t, result.Confidence, 1.0)
		}
	}
}
