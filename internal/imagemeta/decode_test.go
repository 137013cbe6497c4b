package imagemeta

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestDecodeReturnsDimensions(t *testing.T) {
	b := encodeJPEG(t, 100, 50)
	meta, err := Decode(b, 20_000_000)
	require.NoError(t, err)
	assert.Equal(t, 100, meta.Width)
	assert.Equal(t, 50, meta.Height)
	assert.Equal(t, "jpeg", meta.Format)
	assert.Equal(t, len(b), meta.SizeBytes)
}

func TestDecodeRejectsOverPixelBudget(t *testing.T) {
	b := encodeJPEG(t, 200, 200)
	_, err := Decode(b, 100) // 200*200 = 40000 > 100
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not an image"), 20_000_000)
	require.Error(t, err)
}
