package derivative

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

func testSettings() map[string]Setting {
	return map[string]Setting{
		"thumb":  {Width: 160, Quality: 75},
		"grid":   {Width: 360, Quality: 80},
		"detail": {Width: 960, Quality: 80},
	}
}

func encodeSourceJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestGenerateProducesFixedOrderVariants(t *testing.T) {
	g := New(testSettings())
	raw := encodeSourceJPEG(t, 630, 880)

	results, err := g.Generate(raw, "abcd1234")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, pipeline.VariantThumb, results[0].Variant)
	assert.Equal(t, pipeline.VariantGrid, results[1].Variant)
	assert.Equal(t, pipeline.VariantDetail, results[2].Variant)

	for _, r := range results {
		assert.NotEmpty(t, r.Buffer)
		assert.Equal(t, len(r.Buffer), r.Bytes)
		assert.Contains(t, r.StoragePath, "derivatives/ab/abcd1234/")
	}
}

func TestGenerateNeverUpscales(t *testing.T) {
	g := New(testSettings())
	// Source narrower than even the thumb target width.
	raw := encodeSourceJPEG(t, 100, 140)

	results, err := g.Generate(raw, "ffff0000")
	require.NoError(t, err)
	for _, r := range results {
		assert.LessOrEqual(t, r.Width, 100)
	}
}

func TestGenerateWidthsShrinkWithSource(t *testing.T) {
	g := New(testSettings())
	raw := encodeSourceJPEG(t, 630, 880)

	results, err := g.Generate(raw, "1234abcd")
	require.NoError(t, err)

	byVariant := map[pipeline.Variant]pipeline.DerivativeResult{}
	for _, r := range results {
		byVariant[r.Variant] = r
	}
	assert.Equal(t, 160, byVariant[pipeline.VariantThumb].Width)
	assert.Equal(t, 360, byVariant[pipeline.VariantGrid].Width)
	assert.Equal(t, 630, byVariant[pipeline.VariantDetail].Width)
}

func TestGenerateMissingSettingAborts(t *testing.T) {
	g := New(map[string]Setting{"thumb": {Width: 160, Quality: 75}})
	raw := encodeSourceJPEG(t, 630, 880)

	_, err := g.Generate(raw, "deadbeef")
	assert.Error(t, err)
}

func TestGenerateGarbageBytesFails(t *testing.T) {
	g := New(testSettings())
	_, err := g.Generate([]byte("not an image"), "0000")
	assert.Error(t, err)
}
