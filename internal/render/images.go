package render

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"github.com/bookscan/bookscan-server/internal/video"
)

// DefaultJPEGQuality is used when Options.JPEGQuality is out of range.
const DefaultJPEGQuality = 85

// RenderImages writes one page per frame, in order, each sized to the
// frame's pixel dimensions at one point per pixel. Every frame passes through
// a JPEG scratch file next to path that is removed once embedded.
func (r *Renderer) RenderImages(ctx context.Context, frames video.FrameSequence, path string) (*Document, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	dir := filepath.Dir(path)
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.addFramePage(pdf, dir, f); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Index, err)
		}
	}

	pages := pdf.PageCount()
	if err := pdf.OutputFileAndClose(path); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	if _, err := r.check(path, pages); err != nil {
		os.Remove(path)
		return nil, err
	}
	return r.finish(path, ModeImages, pages, 0, false)
}

func (r *Renderer) addFramePage(pdf *fpdf.Fpdf, dir string, f video.Frame) error {
	tmp, err := os.CreateTemp(dir, "frame_*.jpg")
	if err != nil {
		return fmt.Errorf("create scratch jpeg: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = jpeg.Encode(tmp, f.Image, &jpeg.Options{Quality: r.opts.JPEGQuality})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}

	w, h := float64(f.Width()), float64(f.Height())
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
	pdf.ImageOptions(tmp.Name(), 0, 0, w, h, false, fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
	if pdf.Err() {
		return pdf.Error()
	}
	return nil
}
