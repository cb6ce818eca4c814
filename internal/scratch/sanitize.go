package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const maxNameRunes = 100

// SanitizeFilename reduces an uploaded filename to a safe base name. Directory
// components are dropped, spaces become underscores and anything outside
// [A-Za-z0-9._-] is replaced. An empty result becomes "upload".
func SanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == "/" {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	runes := []rune(cleaned)
	if len(runes) > maxNameRunes {
		cleaned = string(runes[len(runes)-maxNameRunes:])
	}
	if cleaned == "" {
		return "upload"
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if r > unicode.MaxASCII {
		return false
	}
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.':
		return true
	default:
		return false
	}
}

// ValidateRoot checks that dir is a usable, clean scratch root.
func ValidateRoot(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("scratch dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("scratch dir cannot contain path traversal")
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("scratch dir does not exist")
		}
		return fmt.Errorf("invalid scratch dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scratch dir is not a directory")
	}

	probe, err := os.CreateTemp(dir, ".bookscan-probe-*")
	if err != nil {
		return fmt.Errorf("scratch dir is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}
