package doctor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strings"
	"time"
)

const defaultProbeTimeout = 10 * time.Second

// Prober inspects the environment.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// TesseractProbe reports the OCR library version and installed languages.
type TesseractProbe func() (version string, languages []string, err error)

// ToolProber checks the ffmpeg and ffprobe executables and, when given, the
// Tesseract library.
type ToolProber struct {
	FFmpegPath   string
	FFprobePath  string
	Tesseract    TesseractProbe
	OCRLanguages []string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Probe never fails: missing tools are reported as unavailable.
func (p *ToolProber) Probe(ctx context.Context) (*Capabilities, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	caps := &Capabilities{
		Executables: map[string]DepInfo{
			"ffmpeg":  probeExecutable(ctx, p.FFmpegPath),
			"ffprobe": probeExecutable(ctx, p.FFprobePath),
		},
		Libraries: map[string]DepInfo{},
	}

	tess := DepInfo{Error: "not configured"}
	if p.Tesseract != nil {
		tess = p.probeTesseract(caps)
	}
	caps.Libraries["tesseract"] = tess

	caps.Modes.Images = isAvailable(caps.Executables, "ffmpeg") &&
		isAvailable(caps.Executables, "ffprobe")
	caps.Modes.Text = caps.Modes.Images && isAvailable(caps.Libraries, "tesseract")
	caps.ProbedAt = time.Now()

	if p.Logger != nil {
		p.Logger.Info("doctor probe complete",
			"text", caps.Modes.Text,
			"images", caps.Modes.Images,
			"ocr_languages", caps.Languages,
		)
	}
	return caps, nil
}

func (p *ToolProber) probeTesseract(caps *Capabilities) (info DepInfo) {
	defer func() {
		if r := recover(); r != nil {
			info = DepInfo{Error: fmt.Sprintf("probe panic: %v", r)}
		}
	}()

	version, langs, err := p.Tesseract()
	if err != nil {
		return DepInfo{Error: err.Error()}
	}
	caps.Languages = langs

	var missing []string
	for _, want := range p.OCRLanguages {
		if !slices.Contains(langs, want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return DepInfo{Version: version, Error: "missing languages: " + strings.Join(missing, ", ")}
	}
	return DepInfo{Available: true, Version: version}
}

// probeExecutable resolves name on PATH and reads the first line of its
// -version output.
func probeExecutable(ctx context.Context, name string) DepInfo {
	path, err := exec.LookPath(name)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-version")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return DepInfo{Path: path, Error: fmt.Sprintf("%s -version: %v", name, err)}
	}
	return DepInfo{Available: true, Path: path, Version: parseVersion(out.String())}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(output string) string {
	sc := bufio.NewScanner(strings.NewReader(output))
	if !sc.Scan() {
		return ""
	}
	fields := strings.Fields(sc.Text())
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
