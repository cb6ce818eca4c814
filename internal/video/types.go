// Package video samples still frames from an uploaded video through a
// pluggable decoder capability.
package video

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrOpen marks a source the decoder could not open or probe.
	ErrOpen = errors.New("video: cannot open source")
	// ErrFrame marks a single timestamp that could not be decoded.
	ErrFrame = errors.New("video: cannot decode frame")
	// ErrDecoderUnavailable means the decoder tooling is not installed.
	ErrDecoderUnavailable = errors.New("video: decoder unavailable")
)

// Decoder opens video sources.
type Decoder interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// Handle is an open video source. FrameAt must be safe for concurrent use.
type Handle interface {
	Duration() time.Duration
	FrameAt(ctx context.Context, ts time.Duration) (image.Image, error)
	Close() error
}

// SamplingConfig controls one sampling run. Interval is in seconds and must
// be positive; callers coerce bad values before sampling.
type SamplingConfig struct {
	Interval  float64
	MaxFrames int
}

// Frame is one sampled still. Index is 0-based over the produced frames and
// increases with Timestamp.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Image     image.Image
}

// Width returns the frame's pixel width.
func (f Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame's pixel height.
func (f Frame) Height() int { return f.Image.Bounds().Dy() }

// FrameSequence is an ordered run of frames. It may be empty.
type FrameSequence []Frame
