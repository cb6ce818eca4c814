package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bookscan/bookscan-server/internal/metrics"
	"github.com/bookscan/bookscan-server/internal/video"
)

// Extractor runs an Engine over a frame sequence.
type Extractor struct {
	engine  Engine
	workers int
	logger  *slog.Logger
}

// NewExtractor creates an extractor running up to workers OCR calls at once.
func NewExtractor(engine Engine, workers int, logger *slog.Logger) *Extractor {
	if workers < 1 {
		workers = 1
	}
	return &Extractor{engine: engine, workers: workers, logger: logger}
}

// Extract returns the trimmed, newline-joined text of every frame in frame
// order, or FallbackText when nothing was recognised. It fails only when ctx
// is done.
func (e *Extractor) Extract(ctx context.Context, frames video.FrameSequence) (string, error) {
	lines, err := e.Lines(ctx, frames)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	text := strings.TrimSpace(strings.Join(texts, "\n"))
	if text == "" {
		return FallbackText, nil
	}
	return text, nil
}

// Lines returns the recognised lines ordered by frame, then by detection
// order within the frame. Lines are trimmed and empty ones dropped. A frame
// whose OCR call fails contributes nothing.
func (e *Extractor) Lines(ctx context.Context, frames video.FrameSequence) ([]RecognizedLine, error) {
	perFrame := make([][]RecognizedLine, len(frames))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, f := range frames {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dets, err := e.recognize(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.OCRFailuresTotal.Inc()
				e.logger.Warn("ocr failed, skipping frame",
					"frame_index", f.Index,
					"ts_s", f.Timestamp.Seconds(),
					"error", err,
				)
				return nil
			}
			perFrame[i] = keepLines(f.Index, dets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []RecognizedLine
	for _, lines := range perFrame {
		out = append(out, lines...)
	}

	e.logger.Info("text extraction complete",
		"frames", len(frames),
		"lines", len(out),
	)
	return out, nil
}

// recognize calls the engine, converting a panic into an error.
func (e *Extractor) recognize(ctx context.Context, f video.Frame) (dets []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ocr engine panic: %v", r)
		}
	}()
	return e.engine.Recognize(ctx, f.Image)
}

// keepLines trims every detected line and drops empty ones. A detection
// spanning several lines contributes each of them.
func keepLines(frameIndex int, dets []Detection) []RecognizedLine {
	var lines []RecognizedLine
	for _, d := range dets {
		for _, raw := range strings.Split(d.Text, "\n") {
			text := strings.TrimSpace(raw)
			if text == "" {
				continue
			}
			lines = append(lines, RecognizedLine{FrameIndex: frameIndex, Order: len(lines), Text: text})
		}
	}
	return lines
}
