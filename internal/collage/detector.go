// Package collage implements the multi-card "collage" heuristic from
// spec.md §4.5: an aspect-ratio short-circuit, then a vertical-edge
// density check over a grayscale downscale. The downscale reuses
// disintegration/imaging (already required by the teacher and by
// internal/sidedetect and internal/derivative); the Sobel convolution
// itself is plain arithmetic over the resulting gray image, since no
// package in the retrieved examples exposes a Sobel operator directly.
package collage

import (
	"bytes"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	extremeAspectHigh = 1.5
	extremeAspectLow  = 0.4

	sobelWidth      = 200
	edgeThreshold   = 100.0
	strongColumnMin = 0.15
)

var sobelVertical = [3][3]int{
	{-1, 0, 1},
	{-2, 0, 2},
	{-1, 0, 1},
}

// Detect returns true when raw looks like a multi-card collage. Any
// internal failure returns false per spec.md §4.5 step 4.
func Detect(raw []byte, width, height int) bool {
	if height <= 0 {
		return false
	}
	aspect := float64(width) / float64(height)
	if aspect > extremeAspectHigh || aspect < extremeAspectLow {
		return true
	}

	isCollage, err := edgeDensityCollage(raw, aspect)
	if err != nil {
		return false
	}
	return isCollage
}

func edgeDensityCollage(raw []byte, aspect float64) (bool, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return false, err
	}

	targetHeight := int(math.Round(float64(sobelWidth) / aspect))
	if targetHeight < 1 {
		targetHeight = 1
	}

	gray := imaging.Resize(imaging.Grayscale(img), sobelWidth, targetHeight, imaging.Lanczos)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	edges := sobelVerticalMagnitude(gray, w, h)

	loBound := int(0.2 * float64(w))
	hiBound := int(0.8 * float64(w))
	middleWidth := hiBound - loBound
	if middleWidth <= 0 {
		return false, nil
	}

	strongColumns := 0
	for x := loBound; x < hiBound; x++ {
		var sum float64
		for y := 0; y < h; y++ {
			sum += edges[y*w+x]
		}
		mean := sum / float64(h)
		if mean > edgeThreshold {
			strongColumns++
		}
	}

	edgeRatio := float64(strongColumns) / float64(middleWidth)
	return edgeRatio > strongColumnMin, nil
}

// sobelVerticalMagnitude convolves the grayscale image with the vertical
// Sobel kernel, returning the raw (unclamped, absolute) response for every
// pixel, row-major.
func sobelVerticalMagnitude(img image.Image, w, h int) []float64 {
	out := make([]float64, w*h)
	bounds := img.Bounds()

	gray := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
		r, g, b, _ := c.RGBA()
		// image already grayscale; any channel carries the luminance.
		lum := (float64(r) + float64(g) + float64(b)) / 3 / 256
		return lum
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += float64(sobelVertical[ky+1][kx+1]) * gray(x+kx, y+ky)
				}
			}
			out[y*w+x] = math.Abs(sum)
		}
	}
	return out
}
