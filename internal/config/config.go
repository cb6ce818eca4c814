// Package config provides configuration management for the BookScan server.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 5000
	DefaultLogLevel        = "info"
	DefaultMaxUploadBytes  = 200 * 1024 * 1024
	DefaultInterval        = 2.0
	DefaultMaxFrames       = 400
	DefaultMode            = "images"
	DefaultProcessTimeout  = 5 * time.Minute
	DefaultMaxConcurrent   = 2
	DefaultSampleWorkers   = 2
	DefaultOCRWorkers      = 2
	DefaultOCRMaxDimension = 2400
	DefaultJPEGQuality     = 85

	// Environment variable names
	EnvPort           = "BOOKSCAN_PORT"
	EnvLogLevel       = "BOOKSCAN_LOG_LEVEL"
	EnvScratchDir     = "BOOKSCAN_SCRATCH_DIR"
	EnvAllowedOrigins = "BOOKSCAN_ALLOWED_ORIGINS"
	EnvDefaultMode    = "BOOKSCAN_DEFAULT_MODE"
	EnvMaxFrames      = "BOOKSCAN_MAX_FRAMES"
	EnvInterval       = "BOOKSCAN_DEFAULT_INTERVAL"
	EnvJPEGQuality    = "BOOKSCAN_JPEG_QUALITY"
	EnvOTLPEndpoint   = "BOOKSCAN_OTLP_ENDPOINT"

	// DotEnvFile is read on startup when present.
	DotEnvFile = ".env"
)

// DefaultAllowedOrigins are the browser origins allowed to call the upload API.
var DefaultAllowedOrigins = []string{
	"https://bookscan-ai-frontend.vercel.app",
	"http://localhost:3000",
}

// Config defines the application configuration interface
type Config interface {
	Host() string
	Port() int
	LogLevel() string
	ScratchDir() string
	MaxUploadBytes() int64
	AllowedOrigins() []string

	DefaultInterval() float64
	MaxFrames() int
	DefaultMode() string
	ProcessTimeout() time.Duration
	MaxConcurrent() int
	SampleWorkers() int
	OCRWorkers() int
	OCRLanguages() []string
	OCRMaxDimension() int
	FFmpegPath() string
	FFprobePath() string
	JPEGQuality() int
	ValidateOutput() bool
	OTLPEndpoint() string
}

// envVars is the raw shape parsed from the environment.
type envVars struct {
	Host            string        `env:"BOOKSCAN_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"BOOKSCAN_PORT" envDefault:"5000"`
	LogLevel        string        `env:"BOOKSCAN_LOG_LEVEL" envDefault:"info"`
	ScratchDir      string        `env:"BOOKSCAN_SCRATCH_DIR"`
	MaxUploadBytes  int64         `env:"BOOKSCAN_MAX_UPLOAD_BYTES" envDefault:"209715200"`
	AllowedOrigins  []string      `env:"BOOKSCAN_ALLOWED_ORIGINS" envSeparator:","`
	DefaultInterval float64       `env:"BOOKSCAN_DEFAULT_INTERVAL" envDefault:"2.0"`
	MaxFrames       int           `env:"BOOKSCAN_MAX_FRAMES" envDefault:"400"`
	DefaultMode     string        `env:"BOOKSCAN_DEFAULT_MODE" envDefault:"images"`
	ProcessTimeout  time.Duration `env:"BOOKSCAN_PROCESS_TIMEOUT" envDefault:"5m"`
	MaxConcurrent   int           `env:"BOOKSCAN_MAX_CONCURRENT" envDefault:"2"`
	SampleWorkers   int           `env:"BOOKSCAN_SAMPLE_WORKERS" envDefault:"2"`
	OCRWorkers      int           `env:"BOOKSCAN_OCR_WORKERS" envDefault:"2"`
	OCRLanguages    []string      `env:"BOOKSCAN_OCR_LANGUAGES" envSeparator:"," envDefault:"eng"`
	OCRMaxDimension int           `env:"BOOKSCAN_OCR_MAX_DIMENSION" envDefault:"2400"`
	FFmpegPath      string        `env:"BOOKSCAN_FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath     string        `env:"BOOKSCAN_FFPROBE_PATH" envDefault:"ffprobe"`
	JPEGQuality     int           `env:"BOOKSCAN_JPEG_QUALITY" envDefault:"85"`
	ValidateOutput  bool          `env:"BOOKSCAN_VALIDATE_OUTPUT" envDefault:"true"`
	OTLPEndpoint    string        `env:"BOOKSCAN_OTLP_ENDPOINT"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	host           string
	port           int
	logLevel       string
	scratchDir     string
	maxUploadBytes int64
	allowedOrigins []string

	defaultInterval float64
	maxFrames       int
	defaultMode     string
	processTimeout  time.Duration
	maxConcurrent   int
	sampleWorkers   int
	ocrWorkers      int
	ocrLanguages    []string
	ocrMaxDimension int
	ffmpegPath      string
	ffprobePath     string
	jpegQuality     int
	validateOutput  bool
	otlpEndpoint    string
}

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	var raw envVars
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if raw.Port < 1 || raw.Port > 65535 {
		return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	if raw.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid BOOKSCAN_MAX_UPLOAD_BYTES: must be positive")
	}
	if raw.DefaultInterval <= 0 || math.IsNaN(raw.DefaultInterval) || math.IsInf(raw.DefaultInterval, 0) {
		return nil, fmt.Errorf("invalid %s: interval must be a positive number of seconds", EnvInterval)
	}
	if raw.MaxFrames < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvMaxFrames)
	}
	mode := strings.ToLower(strings.TrimSpace(raw.DefaultMode))
	if mode != "images" && mode != "text" {
		return nil, fmt.Errorf("invalid %s: %q (want text or images)", EnvDefaultMode, raw.DefaultMode)
	}
	if raw.JPEGQuality < 1 || raw.JPEGQuality > 100 {
		return nil, fmt.Errorf("invalid %s: quality must be between 1 and 100", EnvJPEGQuality)
	}
	if raw.ProcessTimeout <= 0 {
		return nil, fmt.Errorf("invalid BOOKSCAN_PROCESS_TIMEOUT: must be positive")
	}

	cfg := &EnvConfig{
		host:            raw.Host,
		port:            raw.Port,
		logLevel:        raw.LogLevel,
		scratchDir:      raw.ScratchDir,
		maxUploadBytes:  raw.MaxUploadBytes,
		allowedOrigins:  cleanList(raw.AllowedOrigins),
		defaultInterval: raw.DefaultInterval,
		maxFrames:       raw.MaxFrames,
		defaultMode:     mode,
		processTimeout:  raw.ProcessTimeout,
		maxConcurrent:   atLeastOne(raw.MaxConcurrent),
		sampleWorkers:   atLeastOne(raw.SampleWorkers),
		ocrWorkers:      atLeastOne(raw.OCRWorkers),
		ocrLanguages:    cleanList(raw.OCRLanguages),
		ocrMaxDimension: raw.OCRMaxDimension,
		ffmpegPath:      raw.FFmpegPath,
		ffprobePath:     raw.FFprobePath,
		jpegQuality:     raw.JPEGQuality,
		validateOutput:  raw.ValidateOutput,
		otlpEndpoint:    raw.OTLPEndpoint,
	}

	if len(cfg.allowedOrigins) == 0 {
		cfg.allowedOrigins = append([]string(nil), DefaultAllowedOrigins...)
	}
	if len(cfg.ocrLanguages) == 0 {
		cfg.ocrLanguages = []string{"eng"}
	}
	if cfg.scratchDir == "" {
		cfg.scratchDir = os.TempDir()
	}

	return cfg, nil
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// ScratchDir returns the parent directory for per-request scratch space
func (c *EnvConfig) ScratchDir() string {
	return c.scratchDir
}

// MaxUploadBytes returns the upload size limit in bytes
func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

// AllowedOrigins returns the CORS origin allowlist
func (c *EnvConfig) AllowedOrigins() []string {
	return append([]string(nil), c.allowedOrigins...)
}

// DefaultInterval returns the sampling interval in seconds used when a
// request does not carry a usable one
func (c *EnvConfig) DefaultInterval() float64 {
	return c.defaultInterval
}

// MaxFrames returns the per-request frame cap
func (c *EnvConfig) MaxFrames() int {
	return c.maxFrames
}

// DefaultMode returns the render mode used when a request does not name one
func (c *EnvConfig) DefaultMode() string {
	return c.defaultMode
}

func (c *EnvConfig) ProcessTimeout() time.Duration {
	return c.processTimeout
}

func (c *EnvConfig) MaxConcurrent() int {
	return c.maxConcurrent
}

func (c *EnvConfig) SampleWorkers() int {
	return c.sampleWorkers
}

func (c *EnvConfig) OCRWorkers() int {
	return c.ocrWorkers
}

func (c *EnvConfig) OCRLanguages() []string {
	return append([]string(nil), c.ocrLanguages...)
}

// OCRMaxDimension returns the longest edge frames are scaled down to before
// OCR. Zero disables scaling.
func (c *EnvConfig) OCRMaxDimension() int {
	return c.ocrMaxDimension
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) JPEGQuality() int {
	return c.jpegQuality
}

func (c *EnvConfig) ValidateOutput() bool {
	return c.validateOutput
}

// OTLPEndpoint returns the trace exporter URL; empty disables tracing
func (c *EnvConfig) OTLPEndpoint() string {
	return c.otlpEndpoint
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
