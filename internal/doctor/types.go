// Package doctor probes the external tools the conversion pipeline needs and
// caches the result.
package doctor

import "time"

// Capabilities reports which tools are installed and which render modes can
// be served.
type Capabilities struct {
	Executables map[string]DepInfo `json:"executables"`
	Libraries   map[string]DepInfo `json:"libraries"`
	Languages   []string           `json:"ocr_languages,omitempty"`
	Modes       ModesInfo          `json:"modes"`
	ProbedAt    time.Time          `json:"probed_at"`
}

// ModesInfo reports per-mode availability.
type ModesInfo struct {
	Text   bool `json:"text"`
	Images bool `json:"images"`
}

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ModeAvailable reports whether mode ("text" or "images") can be served.
func (c *Capabilities) ModeAvailable(mode string) bool {
	switch mode {
	case "text":
		return c.Modes.Text
	case "images":
		return c.Modes.Images
	default:
		return false
	}
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}
