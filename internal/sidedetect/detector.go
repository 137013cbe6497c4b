// Package sidedetect implements the heuristic front/back classifier from
// spec.md §4.4: aspect-ratio scoring plus border colorimetry on a
// downscaled thumbnail. The downscale itself reuses the teacher's resize
// dependency (disintegration/imaging), the same library
// internal/derivative uses for the size variants — one resize idiom
// throughout the module.
package sidedetect

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/bourdainai/bourdain-image-worker/pkg/pipeline"
)

const (
	expectedAspectRatio = 0.716 // 63:88
	aspectTolerance      = 0.08
	sampleSize           = 64
	borderFraction       = 0.10
	hueBuckets           = 12
	hueBucketWidth       = 30.0
)

// Detect runs the heuristic side detector over raw image bytes and the
// metadata already extracted by internal/imagemeta. Any internal failure
// (decode error, degenerate image) is swallowed and reported as an
// unknown verdict per spec.md §4.4 step 7.
func Detect(raw []byte, width, height int) pipeline.SideDetectionResult {
	result, err := detect(raw, width, height)
	if err != nil {
		return pipeline.SideDetectionResult{Side: pipeline.SideUnknown, Confidence: 0.5, Method: pipeline.MethodHeuristic}
	}
	return result
}

func detect(raw []byte, width, height int) (pipeline.SideDetectionResult, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return pipeline.SideDetectionResult{}, err
	}

	var score float64

	if height > 0 {
		ratio := float64(width) / float64(height)
		if math.Abs(ratio-expectedAspectRatio) <= aspectTolerance {
			score += 0.2
		}
	}

	small := imaging.Resize(img, sampleSize, sampleSize, imaging.Lanczos)

	blue, yellow, total := 0, 0, 0
	var histogram [hueBuckets]int

	sampleSizeF := float64(sampleSize)
	border := int(sampleSizeF * borderFraction)
	if border < 1 {
		border = 1
	}

	for y := 0; y < sampleSize; y++ {
		for x := 0; x < sampleSize; x++ {
			if !inBorderRing(x, y, sampleSize, border) {
				continue
			}
			total++

			r, g, b := pixelRGB(small, x, y)

			if isBlueBack(r, g, b) {
				blue++
			}
			if isYellowFront(r, g, b) {
				yellow++
			}

			bucket := hueBucket(r, g, b)
			histogram[bucket]++
		}
	}

	if total == 0 {
		return pipeline.SideDetectionResult{}, errNoBorderSamples
	}

	blueRatio := float64(blue) / float64(total)
	yellowRatio := float64(yellow) / float64(total)

	maxBucket := 0
	for _, count := range histogram {
		if count > maxBucket {
			maxBucket = count
		}
	}

	isBlueBack := blueRatio > 0.5
	hasYellowBorder := yellowRatio > 0.3
	hasVariedColors := float64(maxBucket) < 0.4*float64(total)

	switch {
	case isBlueBack:
		score -= 0.6
	case hasYellowBorder:
		score += 0.3
	case hasVariedColors:
		score += 0.2
	}

	switch {
	case score >= 0.3:
		return pipeline.SideDetectionResult{
			Side:       pipeline.SideFront,
			Confidence: math.Min(0.95, 0.5+score),
			Method:     pipeline.MethodHeuristic,
		}, nil
	case score <= -0.3:
		return pipeline.SideDetectionResult{
			Side:       pipeline.SideBack,
			Confidence: math.Min(0.95, 0.5+math.Abs(score)),
			Method:     pipeline.MethodHeuristic,
		}, nil
	default:
		return pipeline.SideDetectionResult{
			Side:       pipeline.SideUnknown,
			Confidence: 0.5,
			Method:     pipeline.MethodHeuristic,
		}, nil
	}
}

func inBorderRing(x, y, size, border int) bool {
	return x < border || x >= size-border || y < border || y >= size-border
}

func pixelRGB(img image.Image, x, y int) (r, g, b int) {
	rr, gg, bb, _ := img.At(x, y).RGBA()
	// RGBA() returns 16-bit-scaled components; downscale to 8-bit.
	return int(rr >> 8), int(gg >> 8), int(bb >> 8)
}

func isBlueBack(r, g, b int) bool {
	return b > 120 && float64(b) > 1.5*float64(r) && float64(b) > 1.2*float64(g)
}

func isYellowFront(r, g, b int) bool {
	return r > 180 && g > 150 && b < 100
}

// hueBucket computes the standard max/min/delta HSV hue in degrees and
// returns which of the 12 30-degree buckets it falls into.
func hueBucket(r, g, b int) int {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	bucket := int(hue / hueBucketWidth)
	if bucket >= hueBuckets {
		bucket = hueBuckets - 1
	}
	return bucket
}

type detectError string

func (e detectError) Error() string { return string(e) }

const errNoBorderSamples = detectError("no border samples")
