// Package ocr turns sampled frames into aggregated text through a pluggable
// OCR engine.
package ocr

import (
	"context"
	"image"
)

// FallbackText replaces an empty aggregate.
const FallbackText = "No text could be extracted from the video frames. Please ensure the video contains clear, readable text."

// Engine recognises text regions in one image. Implementations must not
// carry state between calls and must be safe for concurrent use.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]Detection, error)
}

// Detection is one recognised text region. Bounds and Confidence are
// informational only.
type Detection struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64 // 0..1
}

// RecognizedLine is one kept line of text with its position in the aggregate.
type RecognizedLine struct {
	FrameIndex int
	Order      int
	Text       string
}
