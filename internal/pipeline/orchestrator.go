// Package pipeline runs one video-to-PDF conversion: sampling, optional text
// extraction and rendering, with scratch files scoped to the request.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/bookscan/bookscan-server/internal/doctor"
	"github.com/bookscan/bookscan-server/internal/logging"
	"github.com/bookscan/bookscan-server/internal/metrics"
	"github.com/bookscan/bookscan-server/internal/render"
	"github.com/bookscan/bookscan-server/internal/scratch"
	"github.com/bookscan/bookscan-server/internal/tracing"
	"github.com/bookscan/bookscan-server/internal/video"
)

// Sampler produces frames from a video file.
type Sampler interface {
	Sample(ctx context.Context, path string, cfg video.SamplingConfig) (video.FrameSequence, error)
}

// TextExtractor turns frames into aggregated text.
type TextExtractor interface {
	Extract(ctx context.Context, frames video.FrameSequence) (string, error)
}

// DocumentRenderer writes the output PDF.
type DocumentRenderer interface {
	RenderText(ctx context.Context, text, path string) (*render.Document, error)
	RenderImages(ctx context.Context, frames video.FrameSequence, path string) (*render.Document, error)
}

// CapabilityChecker reports which modes the host can serve.
type CapabilityChecker interface {
	Get(ctx context.Context) (*doctor.Capabilities, error)
}

// Config holds the orchestrator's policy.
type Config struct {
	ScratchRoot     string
	DefaultInterval float64
	MaxFrames       int
	DefaultMode     render.Mode
	Timeout         time.Duration
	MaxConcurrent   int
}

// Request is one conversion request. Interval and Mode are raw form values.
type Request struct {
	Filename string
	Video    io.Reader
	Interval string
	Mode     string
}

// Result is a finished conversion. The caller must call Cleanup once the
// document has been delivered.
type Result struct {
	ID       string
	Document *render.Document
	Frames   int
	Interval float64
	Mode     render.Mode
	Cleanup  func()
}

// Orchestrator wires sampler, extractor and renderer together.
type Orchestrator struct {
	cfg       Config
	sampler   Sampler
	extractor TextExtractor
	renderer  DocumentRenderer
	caps      CapabilityChecker
	sem       *semaphore.Weighted
	tracker   *tracker
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, sampler Sampler, extractor TextExtractor, renderer DocumentRenderer, logger *slog.Logger) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 2.0
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = render.ModeImages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Orchestrator{
		cfg:       cfg,
		sampler:   sampler,
		extractor: extractor,
		renderer:  renderer,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		tracker:   newTracker(),
		tracer:    tracing.Tracer(),
		logger:    logging.WithComponent(logger, "pipeline"),
	}
}

// WithCapabilities gates conversions on the checker's report.
func (o *Orchestrator) WithCapabilities(c CapabilityChecker) *Orchestrator {
	o.caps = c
	return o
}

// Active returns the conversions currently in progress, oldest first.
func (o *Orchestrator) Active() []Status {
	return o.tracker.snapshot()
}

// ParseInterval returns raw as seconds, or def when raw is empty, not a
// number, not finite or not positive.
func ParseInterval(raw string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return v
}

// Convert runs one conversion. Every returned error is an *Error, and no
// scratch files remain after a failure.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (*Result, error) {
	id := uuid.NewString()
	logger := logging.WithConversionID(o.logger, id)
	o.tracker.start(id)

	mode := o.cfg.DefaultMode
	res, err := o.convert(ctx, id, logger, req, &mode)
	if err != nil {
		pe := o.classify(err)
		o.tracker.update(id, func(s *Status) {
			s.Stage = StageErrored
			s.Error = string(pe.Kind)
		})
		metrics.ConversionsTotal.WithLabelValues(string(mode), string(pe.Kind)).Inc()
		logger.Warn("conversion failed",
			"stage", StageErrored,
			"kind", pe.Kind,
			"error", pe.Message,
			"details", pe.Details,
		)
		return nil, pe
	}

	o.tracker.update(id, func(s *Status) { s.Stage = StageDone })
	metrics.ConversionsTotal.WithLabelValues(string(mode), "success").Inc()
	logger.Info("conversion complete",
		"stage", StageDone,
		"mode", string(res.Mode),
		"frames", res.Frames,
		"pages", res.Document.Pages,
	)
	return res, nil
}

func (o *Orchestrator) convert(ctx context.Context, id string, logger *slog.Logger, req Request, modeOut *render.Mode) (*Result, error) {
	if req.Video == nil {
		return nil, BadInput("Missing 'video' file")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return nil, BadInput("Empty filename")
	}

	mode := o.cfg.DefaultMode
	if strings.TrimSpace(req.Mode) != "" {
		m, err := render.ParseMode(req.Mode)
		if err != nil {
			e := BadInput("Unknown mode")
			e.Details = "mode must be 'text' or 'images'"
			e.Err = err
			return nil, e
		}
		mode = m
	}
	*modeOut = mode
	interval := ParseInterval(req.Interval, o.cfg.DefaultInterval)

	if o.caps != nil {
		caps, err := o.caps.Get(ctx)
		if err != nil {
			return nil, ServerMisconfiguration("Cannot determine server capabilities", err)
		}
		if !caps.ModeAvailable(string(mode)) {
			e := ServerMisconfiguration("Conversion tools are not installed on this server", nil)
			e.Details = string(mode) + " mode is unavailable"
			return nil, e
		}
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.sem.Release(1)
	metrics.InFlightConversions.Inc()
	defer metrics.InFlightConversions.Dec()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "bookscan.convert", trace.WithAttributes(
		attribute.String("conversion.id", id),
		attribute.String("conversion.mode", string(mode)),
		attribute.Float64("conversion.interval_s", interval),
	))
	defer span.End()

	o.tracker.update(id, func(s *Status) { s.Mode = mode })
	logger.Info("conversion received",
		"stage", StageReceived,
		"mode", string(mode),
		"interval_s", interval,
		"filename", scratch.SanitizeFilename(req.Filename),
	)

	ws, err := scratch.New(o.cfg.ScratchRoot)
	if err != nil {
		return nil, ProcessingFailure("Conversion failed", err)
	}
	delivered := false
	defer func() {
		if !delivered {
			if err := ws.Cleanup(); err != nil {
				logger.Error("cannot remove scratch dir", "error", err)
			}
		}
	}()

	videoPath, size, err := ws.Save(req.Filename, req.Video)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return nil, ResourceExhaustion("File too large", err)
		}
		return nil, ProcessingFailure("Cannot store upload", err)
	}
	if size == 0 {
		ws.Remove(videoPath)
		return nil, BadInput("Empty video file")
	}

	var frames video.FrameSequence
	err = o.stage(ctx, id, logger, StageSampling, func(ctx context.Context) error {
		defer ws.Remove(videoPath)
		var err error
		frames, err = o.sampler.Sample(ctx, videoPath, video.SamplingConfig{
			Interval:  interval,
			MaxFrames: o.cfg.MaxFrames,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, video.ErrDecoderUnavailable) {
			return nil, ServerMisconfiguration("Video decoder is not installed on this server", err)
		}
		return nil, err
	}
	o.tracker.update(id, func(s *Status) { s.Frames = len(frames) })
	if len(frames) == 0 {
		return nil, ExtractionEmpty("No frames extracted",
			"The video could not be decoded or is empty. Try a smaller interval or a different video.")
	}

	outPath := ws.Path(uuid.NewString() + ".pdf")
	var doc *render.Document

	switch mode {
	case render.ModeText:
		var text string
		err = o.stage(ctx, id, logger, StageExtracting, func(ctx context.Context) error {
			var err error
			text, err = o.extractor.Extract(ctx, frames)
			return err
		})
		if err != nil {
			return nil, err
		}
		err = o.stage(ctx, id, logger, StageRendering, func(ctx context.Context) error {
			var err error
			doc, err = o.renderer.RenderText(ctx, text, outPath)
			return err
		})
	default:
		err = o.stage(ctx, id, logger, StageRendering, func(ctx context.Context) error {
			var err error
			doc, err = o.renderer.RenderImages(ctx, frames, outPath)
			return err
		})
	}
	if err != nil {
		return nil, err
	}

	delivered = true
	return &Result{
		ID:       id,
		Document: doc,
		Frames:   len(frames),
		Interval: interval,
		Mode:     mode,
		Cleanup: func() {
			if err := ws.Cleanup(); err != nil {
				logger.Error("cannot remove scratch dir", "error", err)
			}
		},
	}, nil
}

// stage runs fn as one traced, timed step of the state machine.
func (o *Orchestrator) stage(ctx context.Context, id string, logger *slog.Logger, stage Stage, fn func(ctx context.Context) error) error {
	o.tracker.update(id, func(s *Status) { s.Stage = stage })
	logger.Info("conversion stage", "stage", stage)

	ctx, span := o.tracer.Start(ctx, "bookscan."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("stage failed", "stage", stage, "duration_ms", elapsed.Milliseconds(), "error", err)
		return err
	}
	logger.Debug("stage complete", "stage", stage, "duration_ms", elapsed.Milliseconds())
	return nil
}

// classify maps any failure onto the error taxonomy.
func (o *Orchestrator) classify(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout("Processing timed out", err)
	case errors.Is(err, context.Canceled):
		return ProcessingFailure("Conversion cancelled", err)
	case errors.Is(err, ErrPayloadTooLarge):
		return ResourceExhaustion("File too large", err)
	default:
		return ProcessingFailure("Conversion failed", err)
	}
}
