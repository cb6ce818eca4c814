// Package render writes conversion output as PDF: reflowed text on letter
// pages, or one sampled frame per page.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/bookscan/bookscan-server/internal/metrics"
)

// Mode selects what a document is built from.
type Mode string

const (
	ModeText   Mode = "text"
	ModeImages Mode = "images"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("render: unknown mode")

// ParseMode accepts "text" or "images", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeImages:
		return ModeImages, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ErrNoFrames is returned when images mode is asked to render nothing.
var ErrNoFrames = errors.New("render: no frames to render")

// Document describes a written PDF.
type Document struct {
	Path       string
	Mode       Mode
	Pages      int
	Paragraphs int  // text blocks laid out; zero in images mode
	Fallback   bool // text was drawn by the line fallback
	Size       int64
}

// Options configures a Renderer.
type Options struct {
	JPEGQuality int  // images mode, 1..100
	Validate    bool // check written files with pdfcpu
}

// Renderer writes documents. It holds no per-document state.
type Renderer struct {
	opts   Options
	logger *slog.Logger

	// paragraphs and lines are the two text layouts, swappable in tests.
	paragraphs func(paras []string, path string) (int, error)
	lines      func(text, path string) (int, error)
}

var disableConfigDir sync.Once

// New creates a Renderer.
func New(opts Options, logger *slog.Logger) *Renderer {
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	// pdfcpu would otherwise create a config dir under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)

	r := &Renderer{opts: opts, logger: logger}
	r.paragraphs = writeParagraphs
	r.lines = writeLines
	return r
}

// RenderText lays text out as paragraphs. If that fails in any way the raw
// lines are drawn instead; only when both fail is an error returned.
func (r *Renderer) RenderText(ctx context.Context, text, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paras := SplitParagraphs(text)
	if len(paras) == 0 {
		paras = []string{PlaceholderParagraph}
	}

	pages, err := r.guard(path, func() (int, error) { return r.paragraphs(paras, path) })
	if err == nil {
		return r.finish(path, ModeText, pages, len(paras), false)
	}

	r.logger.Warn("paragraph layout failed, using line fallback", "error", err)
	metrics.RenderFallbacksTotal.Inc()

	if strings.TrimSpace(text) == "" {
		text = PlaceholderParagraph
	}
	pages, ferr := r.guard(path, func() (int, error) { return r.lines(text, path) })
	if ferr != nil {
		os.Remove(path)
		return nil, errors.Join(
			fmt.Errorf("paragraph layout: %w", err),
			fmt.Errorf("line fallback: %w", ferr),
		)
	}
	return r.finish(path, ModeText, pages, countLines(text), true)
}

// guard runs a layout, converting panics into errors and validating the
// written file.
func (r *Renderer) guard(path string, layout func() (int, error)) (pages int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("layout panic: %v", p)
		}
	}()

	pages, err = layout()
	if err != nil {
		return 0, err
	}
	if pages < 1 {
		return 0, fmt.Errorf("layout produced no pages")
	}
	return r.check(path, pages)
}

// check validates path with pdfcpu when enabled and confirms its page count.
func (r *Renderer) check(path string, pages int) (int, error) {
	if !r.opts.Validate {
		return pages, nil
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, fmt.Errorf("validate pdf: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	if n != pages {
		return 0, fmt.Errorf("page count mismatch: wrote %d, file has %d", pages, n)
	}
	return n, nil
}

func (r *Renderer) finish(path string, mode Mode, pages, paragraphs int, fallback bool) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat document: %w", err)
	}
	doc := &Document{
		Path:       path,
		Mode:       mode,
		Pages:      pages,
		Paragraphs: paragraphs,
		Fallback:   fallback,
		Size:       info.Size(),
	}
	r.logger.Info("document rendered",
		"mode", string(mode),
		"pages", pages,
		"paragraphs", paragraphs,
		"fallback", fallback,
		"bytes", doc.Size,
	)
	return doc, nil
}

func countLines(text string) int {
	return len(strings.Split(text, "\n"))
}
