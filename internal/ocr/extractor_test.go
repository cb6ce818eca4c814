package ocr

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bookscan/bookscan-server/internal/logging"
	"github.com/bookscan/bookscan-server/internal/video"
)

// fakeEngine answers by the frame's width, which tests use as a frame key.
type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	results map[int][]string
	fail    map[int]error
	panics  map[int]bool
	delay   map[int]time.Duration
}

func (e *fakeEngine) Recognize(ctx context.Context, img image.Image) ([]Detection, error) {
	key := img.Bounds().Dx()
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if d := e.delay[key]; d > 0 {
		time.Sleep(d)
	}
	if e.panics[key] {
		panic("tesseract segfault")
	}
	if err := e.fail[key]; err != nil {
		return nil, err
	}
	var dets []Detection
	for _, text := range e.results[key] {
		dets = append(dets, Detection{Text: text, Confidence: 0.9})
	}
	return dets, nil
}

func framesWithKeys(keys ...int) video.FrameSequence {
	frames := make(video.FrameSequence, len(keys))
	for i, k := range keys {
		frames[i] = video.Frame{
			Index:     i,
			Timestamp: time.Duration(i) * 2 * time.Second,
			Image:     image.NewRGBA(image.Rect(0, 0, k, 1)),
		}
	}
	return frames
}

func TestExtract_OrderByFrameThenDetection(t *testing.T) {
	engine := &fakeEngine{
		results: map[int][]string{
			1: {"  Chapter One ", "It was a dark"},
			2: {"and stormy night."},
			3: {"", "   ", "The end"},
		},
		// The first frame finishes last.
		delay: map[int]time.Duration{1: 20 * time.Millisecond},
	}
	x := NewExtractor(engine, 3, logging.Discard())

	got, err := x.Extract(context.Background(), framesWithKeys(1, 2, 3))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "Chapter One\nIt was a dark\nand stormy night.\nThe end"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestLines_Positions(t *testing.T) {
	engine := &fakeEngine{
		results: map[int][]string{
			1: {"a", "", "b"},
			2: {"c\n\nd"},
		},
	}
	x := NewExtractor(engine, 2, logging.Discard())

	lines, err := x.Lines(context.Background(), framesWithKeys(1, 2))
	if err != nil {
		t.Fatalf("Lines() error = %v", err)
	}
	want := []RecognizedLine{
		{FrameIndex: 0, Order: 0, Text: "a"},
		{FrameIndex: 0, Order: 1, Text: "b"},
		{FrameIndex: 1, Order: 0, Text: "c"},
		{FrameIndex: 1, Order: 1, Text: "d"},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %v, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}
}

func TestExtract_FailingFrameSkipped(t *testing.T) {
	engine := &fakeEngine{
		results: map[int][]string{1: {"first"}, 3: {"third"}},
		fail:    map[int]error{2: errors.New("engine exploded")},
		panics:  map[int]bool{4: true},
	}
	x := NewExtractor(engine, 1, logging.Discard())

	got, err := x.Extract(context.Background(), framesWithKeys(1, 2, 3, 4))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "first\nthird" {
		t.Fatalf("Extract() = %q, want %q", got, "first\nthird")
	}
	if engine.calls != 4 {
		t.Errorf("engine calls = %d, want 4", engine.calls)
	}
}

func TestExtract_NoDetectionsGivesFallback(t *testing.T) {
	engine := &fakeEngine{results: map[int][]string{2: {"  ", ""}}}
	x := NewExtractor(engine, 2, logging.Discard())

	got, err := x.Extract(context.Background(), framesWithKeys(1, 2, 3))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != FallbackText {
		t.Fatalf("Extract() = %q, want fallback sentence", got)
	}
}

func TestExtract_EmptySequence(t *testing.T) {
	x := NewExtractor(&fakeEngine{}, 2, logging.Discard())
	got, err := x.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != FallbackText {
		t.Fatalf("Extract() = %q, want fallback sentence", got)
	}
}

func TestExtract_ContextCancelled(t *testing.T) {
	x := NewExtractor(&fakeEngine{results: map[int][]string{1: {"x"}}}, 2, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := x.Extract(ctx, framesWithKeys(1, 2)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract() error = %v, want context.Canceled", err)
	}
}
