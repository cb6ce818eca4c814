package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bookscan/bookscan-server/internal/logging"
)

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10.000000", 10 * time.Second},
		{" 2.5\n", 2500 * time.Millisecond},
		{"N/A", 0},
		{"", 0},
		{"-1", 0},
	}
	for _, tt := range tests {
		if got := parseSeconds(tt.in); got != tt.want {
			t.Errorf("parseSeconds(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToRGBA_FlattensOntoOpaque(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 9, 8))
	src.Set(5, 5, color.NRGBA{R: 255, A: 255})

	got := toRGBA(src)
	if got.Bounds() != image.Rect(0, 0, 4, 3) {
		t.Fatalf("bounds = %v, want origin-based 4x3", got.Bounds())
	}
	if !got.Opaque() {
		t.Error("normalised frame is not opaque")
	}
	if r, _, _, _ := got.At(0, 0).RGBA(); r>>8 != 255 {
		t.Errorf("pixel (0,0) red = %d, want 255", r>>8)
	}
}

// writeScript writes an executable shell script into dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func fakeTools(t *testing.T, probeBody string) (ffmpeg, ffprobe string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	dir := t.TempDir()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	pngPath := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(pngPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	ffmpeg = writeScript(t, dir, "ffmpeg", "cat '"+pngPath+"'\n")
	ffprobe = writeScript(t, dir, "ffprobe", probeBody)
	return ffmpeg, ffprobe
}

func TestFFmpegDecoder_OpenAndFrameAt(t *testing.T) {
	ffmpeg, ffprobe := fakeTools(t, `echo '{"streams":[{"codec_type":"video","width":4,"height":3}],"format":{"duration":"10.000000"}}'`+"\n")
	video := filepath.Join(t.TempDir(), "book.mp4")
	os.WriteFile(video, []byte("not really a video"), 0o644)

	dec := NewFFmpegDecoder(ffmpeg, ffprobe, logging.Discard())
	h, err := dec.Open(context.Background(), video)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if h.Duration() != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", h.Duration())
	}

	img, err := h.FrameAt(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("FrameAt() error = %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("frame size = %v, want 4x3", img.Bounds())
	}
	if _, ok := img.(*image.RGBA); !ok {
		t.Errorf("frame type = %T, want *image.RGBA", img)
	}

	h.Close()
	if _, err := h.FrameAt(context.Background(), 0); !errors.Is(err, ErrFrame) {
		t.Errorf("FrameAt() after Close error = %v, want ErrFrame", err)
	}
}

func TestFFmpegDecoder_ProbeFailureIsOpenError(t *testing.T) {
	ffmpeg, ffprobe := fakeTools(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	video := filepath.Join(t.TempDir(), "junk.mp4")
	os.WriteFile(video, []byte("junk"), 0o644)

	dec := NewFFmpegDecoder(ffmpeg, ffprobe, logging.Discard())
	_, err := dec.Open(context.Background(), video)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Open() error = %v, want ErrOpen", err)
	}
}

func TestFFmpegDecoder_NoVideoStream(t *testing.T) {
	ffmpeg, ffprobe := fakeTools(t, `echo '{"streams":[],"format":{"duration":"3.0"}}'`+"\n")
	video := filepath.Join(t.TempDir(), "audio.m4a")
	os.WriteFile(video, []byte("x"), 0o644)

	dec := NewFFmpegDecoder(ffmpeg, ffprobe, logging.Discard())
	if _, err := dec.Open(context.Background(), video); !errors.Is(err, ErrOpen) {
		t.Fatalf("Open() error = %v, want ErrOpen", err)
	}
}

func TestFFmpegDecoder_MissingBinary(t *testing.T) {
	dec := NewFFmpegDecoder("/nonexistent/ffmpeg999", "/nonexistent/ffprobe999", logging.Discard())
	_, err := dec.Open(context.Background(), "whatever.mp4")
	if !errors.Is(err, ErrDecoderUnavailable) {
		t.Fatalf("Open() error = %v, want ErrDecoderUnavailable", err)
	}
}

func TestFFmpegDecoder_MissingSource(t *testing.T) {
	ffmpeg, ffprobe := fakeTools(t, "exit 0\n")
	dec := NewFFmpegDecoder(ffmpeg, ffprobe, logging.Discard())
	_, err := dec.Open(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"))
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Open() error = %v, want ErrOpen", err)
	}
}

func TestFFmpegDecoder_SamplerEndToEnd(t *testing.T) {
	ffmpeg, ffprobe := fakeTools(t, `echo '{"streams":[{"codec_type":"video","width":4,"height":3}],"format":{"duration":"10.0"}}'`+"\n")
	video := filepath.Join(t.TempDir(), "book.mp4")
	os.WriteFile(video, []byte("x"), 0o644)

	s := NewSampler(NewFFmpegDecoder(ffmpeg, ffprobe, logging.Discard()), 2, logging.Discard())
	frames, err := s.Sample(context.Background(), video, SamplingConfig{Interval: 2, MaxFrames: 400})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	for _, f := range frames {
		if f.Width() != 4 || f.Height() != 3 {
			t.Errorf("frame %d size %dx%d, want 4x3", f.Index, f.Width(), f.Height())
		}
	}
}
