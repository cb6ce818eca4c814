package render

import (
	"strings"

	"github.com/go-pdf/fpdf"
)

// Text layout geometry, in points on a US letter page.
const (
	pageHeight   = 792.0
	marginLeft   = 72.0
	marginRight  = 72.0
	marginTop    = 72.0
	marginBottom = 18.0
	fontFamily   = "Helvetica"
	fontSize     = 12.0
	leading      = 14.0
	spaceAfter   = 6.0

	// Line fallback.
	fallbackX       = 50.0
	fallbackTop     = 50.0
	fallbackBottom  = 50.0
	fallbackStep    = 15.0
	fallbackMaxRune = 80
)

// writeParagraphs flows paragraphs over letter pages with automatic breaks.
func writeParagraphs(paras []string, path string) (int, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetFont(fontFamily, "", fontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	for i, p := range paras {
		pdf.MultiCell(0, leading, tr(p), "", "L", false)
		if i < len(paras)-1 {
			pdf.Ln(spaceAfter)
		}
		if pdf.Err() {
			return 0, pdf.Error()
		}
	}

	pages := pdf.PageCount()
	if err := pdf.OutputFileAndClose(path); err != nil {
		return 0, err
	}
	return pages, nil
}

// writeLines draws every raw line at a fixed step, truncated, starting a new
// page when the next baseline would fall into the bottom margin.
func writeLines(text, path string) (int, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont(fontFamily, "", fontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	y := fallbackTop
	for _, line := range splitLines(text) {
		if y > pageHeight-fallbackBottom {
			pdf.AddPage()
			y = fallbackTop
		}
		pdf.Text(fallbackX, y, tr(truncateRunes(line, fallbackMaxRune)))
		y += fallbackStep
	}
	if pdf.Err() {
		return 0, pdf.Error()
	}

	pages := pdf.PageCount()
	if err := pdf.OutputFileAndClose(path); err != nil {
		return 0, err
	}
	return pages, nil
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
