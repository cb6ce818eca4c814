package api

import (
	"github.com/bookscan/bookscan-server/internal/doctor"
	"github.com/bookscan/bookscan-server/internal/pipeline"
)

// Document download headers.
const (
	OutputFilename = "bookscan_output.pdf"
	HeaderPages    = "X-Bookscan-Pages"
	HeaderFrames   = "X-Bookscan-Frames"
	HeaderMode     = "X-Bookscan-Mode"
)

type HomeResponse struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State        string               `json:"state"`
	Capabilities *doctor.Capabilities `json:"capabilities,omitempty"`
	ProbeError   string               `json:"probe_error,omitempty"`
	Active       []pipeline.Status    `json:"active"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code"`
}
