package collage

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDetectExtremeWideAspectIsCollage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1600, 600))
	assert.True(t, Detect(encode(t, img), 1600, 600))
}

func TestDetectExtremeTallAspectIsCollage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 1200))
	assert.True(t, Detect(encode(t, img), 300, 1200))
}

func TestDetectSolidCardIsNotCollage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 630, 880))
	for y := 0; y < 880; y++ {
		for x := 0; x < 630; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	assert.False(t, Detect(encode(t, img), 630, 880))
}

func TestDetectVerticalStripesIsCollage(t *testing.T) {
	w, h := 630, 880
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Alternating high-contrast vertical bands mimic card boundaries.
			if (x/20)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 250, G: 250, B: 250, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 5, G: 5, B: 5, A: 255})
			}
		}
	}
	assert.True(t, Detect(encode(t, img), w, h))
}

func TestDetectGarbageBytesReturnsFalse(t *testing.T) {
	assert.False(t, Detect([]byte("not an image"), 630, 880))
}

func TestDetectZeroHeightReturnsFalse(t *testing.T) {
	assert.False(t, Detect([]byte{}, 630, 0))
}
