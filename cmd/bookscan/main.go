package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookscan/bookscan-server/internal/api"
	"github.com/bookscan/bookscan-server/internal/config"
	"github.com/bookscan/bookscan-server/internal/doctor"
	"github.com/bookscan/bookscan-server/internal/logging"
	"github.com/bookscan/bookscan-server/internal/ocr"
	"github.com/bookscan/bookscan-server/internal/ocr/tesseract"
	"github.com/bookscan/bookscan-server/internal/pipeline"
	"github.com/bookscan/bookscan-server/internal/render"
	"github.com/bookscan/bookscan-server/internal/scratch"
	"github.com/bookscan/bookscan-server/internal/tracing"
	"github.com/bookscan/bookscan-server/internal/video"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.LoadDotEnv(config.DotEnvFile); err != nil {
		return fmt.Errorf("failed to load %s: %w", config.DotEnvFile, err)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting bookscan server",
		"version", config.Version,
		"commit", config.GitCommit,
		"built", config.BuildTime,
		"scratch_dir", logging.SanitizePath(cfg.ScratchDir()),
	)

	if err := scratch.ValidateRoot(cfg.ScratchDir()); err != nil {
		return fmt.Errorf("invalid scratch dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if endpoint := cfg.OTLPEndpoint(); endpoint != "" {
		tp, err := tracing.InitTracer(ctx, endpoint, config.Version)
		if err != nil {
			logger.Warn("tracing disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to flush traces", "error", err)
				}
			}()
			logger.Info("tracing enabled", "endpoint", endpoint)
		}
	}

	decoder := video.NewFFmpegDecoder(cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	sampler := video.NewSampler(decoder, cfg.SampleWorkers(), logger)
	engine := tesseract.New(cfg.OCRLanguages(), cfg.OCRMaxDimension())
	extractor := ocr.NewExtractor(engine, cfg.OCRWorkers(), logger)
	renderer := render.New(render.Options{
		JPEGQuality: cfg.JPEGQuality(),
		Validate:    cfg.ValidateOutput(),
	}, logger)

	doc := doctor.NewCachedDoctor(&doctor.ToolProber{
		FFmpegPath:   cfg.FFmpegPath(),
		FFprobePath:  cfg.FFprobePath(),
		Tesseract:    tesseract.Probe,
		OCRLanguages: cfg.OCRLanguages(),
		Logger:       logger,
	}, logger)

	probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
	caps, err := doc.Refresh(probeCtx)
	probeCancel()
	if err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else {
		logger.Info("conversion capabilities detected",
			"text", caps.Modes.Text,
			"images", caps.Modes.Images,
			"ocr_languages", caps.Languages,
		)
		if !caps.ModeAvailable(cfg.DefaultMode()) {
			logger.Warn("default mode is unavailable on this host", "mode", cfg.DefaultMode())
		}
	}

	defaultMode, err := render.ParseMode(cfg.DefaultMode())
	if err != nil {
		return fmt.Errorf("invalid default mode: %w", err)
	}

	orchestrator := pipeline.New(pipeline.Config{
		ScratchRoot:     cfg.ScratchDir(),
		DefaultInterval: cfg.DefaultInterval(),
		MaxFrames:       cfg.MaxFrames(),
		DefaultMode:     defaultMode,
		Timeout:         cfg.ProcessTimeout(),
		MaxConcurrent:   cfg.MaxConcurrent(),
	}, sampler, extractor, renderer, logger).WithCapabilities(doc)

	apiServer := api.NewServer(api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Converter:      orchestrator,
		Doctor:         doc,
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	// In-flight conversions may run up to the processing timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ProcessTimeout()+10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
