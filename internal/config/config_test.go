package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.MaxUploadBytes() != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes(), DefaultMaxUploadBytes)
	}
	if cfg.DefaultInterval() != DefaultInterval {
		t.Errorf("DefaultInterval = %v, want %v", cfg.DefaultInterval(), DefaultInterval)
	}
	if cfg.MaxFrames() != DefaultMaxFrames {
		t.Errorf("MaxFrames = %d, want %d", cfg.MaxFrames(), DefaultMaxFrames)
	}
	if cfg.DefaultMode() != DefaultMode {
		t.Errorf("DefaultMode = %q, want %q", cfg.DefaultMode(), DefaultMode)
	}
	if cfg.ProcessTimeout() != DefaultProcessTimeout {
		t.Errorf("ProcessTimeout = %v, want %v", cfg.ProcessTimeout(), DefaultProcessTimeout)
	}
	if cfg.JPEGQuality() != DefaultJPEGQuality {
		t.Errorf("JPEGQuality = %d, want %d", cfg.JPEGQuality(), DefaultJPEGQuality)
	}
	if !cfg.ValidateOutput() {
		t.Error("ValidateOutput should default to true")
	}
	if cfg.ScratchDir() == "" {
		t.Error("ScratchDir should fall back to the OS temp dir")
	}
	if got := cfg.OCRLanguages(); len(got) != 1 || got[0] != "eng" {
		t.Errorf("OCRLanguages = %v, want [eng]", got)
	}

	origins := cfg.AllowedOrigins()
	if len(origins) != len(DefaultAllowedOrigins) {
		t.Fatalf("AllowedOrigins = %v, want %v", origins, DefaultAllowedOrigins)
	}
	for i := range origins {
		if origins[i] != DefaultAllowedOrigins[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, origins[i], DefaultAllowedOrigins[i])
		}
	}
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvAllowedOrigins, " https://a.example , ,https://b.example")
	t.Setenv(EnvDefaultMode, "TEXT")
	t.Setenv(EnvMaxFrames, "50")
	t.Setenv("BOOKSCAN_PROCESS_TIMEOUT", "90s")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port())
	}
	if cfg.DefaultMode() != "text" {
		t.Errorf("DefaultMode = %q, want text", cfg.DefaultMode())
	}
	if cfg.MaxFrames() != 50 {
		t.Errorf("MaxFrames = %d, want 50", cfg.MaxFrames())
	}
	if cfg.ProcessTimeout() != 90*time.Second {
		t.Errorf("ProcessTimeout = %v, want 90s", cfg.ProcessTimeout())
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", origins)
	}
}

func TestNew_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", EnvPort, "70000"},
		{"port not a number", EnvPort, "abc"},
		{"zero interval", EnvInterval, "0"},
		{"negative interval", EnvInterval, "-1"},
		{"zero frames", EnvMaxFrames, "0"},
		{"unknown mode", EnvDefaultMode, "video"},
		{"quality too high", EnvJPEGQuality, "101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Fatalf("New() with %s=%q: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadDotEnv() on missing file error = %v, want nil", err)
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BOOKSCAN_LOG_LEVEL=debug\nBOOKSCAN_OTLP_ENDPOINT=http://collector:4318/v1/traces\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvOTLPEndpoint, "")
	os.Unsetenv(EnvOTLPEndpoint)

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel() != "warn" {
		t.Errorf("LogLevel = %q, want warn (env wins over .env)", cfg.LogLevel())
	}
	if cfg.OTLPEndpoint() != "http://collector:4318/v1/traces" {
		t.Errorf("OTLPEndpoint = %q, want value from .env", cfg.OTLPEndpoint())
	}
}
