package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
)

const defaultProbeTimeout = 30 * time.Second

// FFmpegDecoder decodes video with the ffprobe and ffmpeg executables. Every
// FrameAt call runs its own ffmpeg process, so handles are safe for
// concurrent use.
type FFmpegDecoder struct {
	ffmpegPath   string
	ffprobePath  string
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewFFmpegDecoder creates a decoder for the given executables. Bare names
// are resolved on PATH when a source is opened.
func NewFFmpegDecoder(ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegDecoder{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		probeTimeout: defaultProbeTimeout,
		logger:       logger,
	}
}

// probeOutput is the subset of `ffprobe -of json` the decoder reads.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Open probes path with ffprobe. A source without a video stream, or one
// ffprobe rejects, wraps ErrOpen.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Handle, error) {
	ffmpeg, err := exec.LookPath(d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrDecoderUnavailable, err)
	}
	ffprobe, err := exec.LookPath(d.ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrDecoderUnavailable, err)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	res := run(probeCtx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,width,height:format=duration",
		"-of", "json",
		path,
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !res.ok() {
		d.logger.Warn("ffprobe failed",
			"exit_code", res.ExitCode,
			"duration_ms", res.Duration.Milliseconds(),
			"stderr_tail", truncate(res.StderrTail, 512),
		)
		return nil, fmt.Errorf("%w: ffprobe exited %d: %s", ErrOpen, res.ExitCode, truncate(strings.TrimSpace(res.StderrTail), 512))
	}

	var probe probeOutput
	if err := json.Unmarshal(res.Stdout, &probe); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrOpen, err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrOpen)
	}

	duration := parseSeconds(probe.Format.Duration)

	d.logger.Debug("video probed",
		"duration_s", duration.Seconds(),
		"width", probe.Streams[0].Width,
		"height", probe.Streams[0].Height,
	)

	return &ffmpegHandle{
		ffmpeg:   ffmpeg,
		path:     path,
		duration: duration,
	}, nil
}

// parseSeconds converts an ffprobe duration ("12.345000" or "N/A").
// Anything unusable is reported as zero duration.
func parseSeconds(s string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

type ffmpegHandle struct {
	ffmpeg   string
	path     string
	duration time.Duration
	closed   atomic.Bool
}

func (h *ffmpegHandle) Duration() time.Duration {
	return h.duration
}

// FrameAt seeks to ts and decodes exactly one video frame as PNG on stdout.
// Audio is disabled.
func (h *ffmpegHandle) FrameAt(ctx context.Context, ts time.Duration) (image.Image, error) {
	if h.closed.Load() {
		return nil, fmt.Errorf("%w: handle closed", ErrFrame)
	}

	res := run(ctx, h.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(ts.Seconds(), 'f', 3, 64),
		"-i", h.path,
		"-an",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !res.ok() {
		return nil, fmt.Errorf("%w at %s: ffmpeg exited %d: %s", ErrFrame, ts, res.ExitCode, truncate(strings.TrimSpace(res.StderrTail), 512))
	}
	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("%w at %s: no frame produced", ErrFrame, ts)
	}

	img, err := png.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrFrame, ts, err)
	}
	return toRGBA(img), nil
}

func (h *ffmpegHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// toRGBA returns img as an opaque *image.RGBA with a zero origin.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Opaque() {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
