// Package tesseract implements ocr.Engine with the Tesseract library through
// gosseract. It needs libtesseract at build time.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"

	"github.com/bookscan/bookscan-server/internal/ocr"
)

// Engine is a Tesseract-backed ocr.Engine. Each call uses its own client.
type Engine struct {
	languages     []string
	maxDimension  int
	clientFactory func() *gosseract.Client
}

// New creates an engine for the given languages. Frames larger than
// maxDimension on their longest edge are scaled down first; zero disables
// scaling.
func New(languages []string, maxDimension int) *Engine {
	return &Engine{
		languages:     languages,
		maxDimension:  maxDimension,
		clientFactory: gosseract.NewClient,
	}
}

// Recognize returns one detection per text line in reading order.
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]ocr.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled, factor := downscale(img, e.maxDimension)
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		a, b := boxes[i], boxes[j]
		if a.BlockNum != b.BlockNum {
			return a.BlockNum < b.BlockNum
		}
		if a.ParNum != b.ParNum {
			return a.ParNum < b.ParNum
		}
		return a.LineNum < b.LineNum
	})

	dets := make([]ocr.Detection, 0, len(boxes))
	for _, b := range boxes {
		dets = append(dets, ocr.Detection{
			Text:       b.Word,
			Bounds:     scaleRect(b.Box, factor),
			Confidence: b.Confidence / 100.0,
		})
	}
	return dets, nil
}

// downscale shrinks img so its longest edge is at most maxDim, returning the
// factor that maps scaled coordinates back to the original.
func downscale(img image.Image, maxDim int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxDim <= 0 || longest <= maxDim {
		return img, 1
	}
	factor := float64(longest) / float64(maxDim)
	w := max(1, int(float64(b.Dx())/factor))
	h := max(1, int(float64(b.Dy())/factor))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, factor
}

func scaleRect(r image.Rectangle, factor float64) image.Rectangle {
	if factor == 1 {
		return r
	}
	return image.Rect(
		int(float64(r.Min.X)*factor),
		int(float64(r.Min.Y)*factor),
		int(float64(r.Max.X)*factor),
		int(float64(r.Max.Y)*factor),
	)
}

// Probe reports the Tesseract version and installed languages.
func Probe() (version string, languages []string, err error) {
	c := gosseract.NewClient()
	defer c.Close()

	languages, err = gosseract.GetAvailableLanguages()
	if err != nil {
		return "", nil, fmt.Errorf("list languages: %w", err)
	}
	return c.Version(), languages, nil
}
