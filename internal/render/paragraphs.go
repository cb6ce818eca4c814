package render

import "strings"

// PlaceholderParagraph is laid out when the text holds no paragraphs.
const PlaceholderParagraph = "No readable text was found in the video."

// SplitParagraphs groups runs of non-blank lines into paragraphs. Lines are
// trimmed and joined with single spaces; blank lines separate paragraphs.
func SplitParagraphs(text string) []string {
	var (
		paras   []string
		current []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		if p := strings.TrimSpace(strings.Join(current, " ")); p != "" {
			paras = append(paras, p)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return paras
}
