package video

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bookscan/bookscan-server/internal/metrics"
)

// MinInterval is the finest sampling interval; smaller positive intervals are
// raised to it so timestamps stay distinct.
const MinInterval = time.Millisecond

// Sampler produces fixed-interval frame sequences from a video source.
type Sampler struct {
	decoder Decoder
	workers int
	logger  *slog.Logger
}

// NewSampler creates a sampler that decodes up to workers timestamps at once.
func NewSampler(decoder Decoder, workers int, logger *slog.Logger) *Sampler {
	if workers < 1 {
		workers = 1
	}
	return &Sampler{decoder: decoder, workers: workers, logger: logger}
}

// Sample decodes frames at 0, i, 2i, ... while the timestamp is before the end
// of the video, stopping once cfg.MaxFrames frames are collected. Timestamps
// that fail to decode are skipped. If nothing at all decodes from a video with
// a positive duration, one more pass is made at twice the interval.
//
// An undecodable or zero-length source yields an empty sequence and a nil
// error. Only ErrDecoderUnavailable and context errors are returned.
func (s *Sampler) Sample(ctx context.Context, path string, cfg SamplingConfig) (FrameSequence, error) {
	h, err := s.decoder.Open(ctx, path)
	if err != nil {
		if errors.Is(err, ErrDecoderUnavailable) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("cannot open video, nothing to sample", "error", err)
		return FrameSequence{}, nil
	}
	defer h.Close()

	duration := h.Duration()
	if duration <= 0 || cfg.MaxFrames < 1 || cfg.Interval <= 0 {
		s.logger.Info("video has no usable duration", "duration_s", duration.Seconds())
		return FrameSequence{}, nil
	}
	interval := max(cfg.Interval, MinInterval.Seconds())

	frames, err := s.pass(ctx, h, duration, interval, cfg.MaxFrames)
	if err != nil {
		return nil, err
	}
	if len(frames) > 0 {
		return frames, nil
	}

	coarser := interval * 2
	metrics.SamplingRetriesTotal.Inc()
	s.logger.Info("first sampling pass produced no frames, retrying at a coarser interval",
		"interval_s", interval,
		"retry_interval_s", coarser,
	)
	return s.pass(ctx, h, duration, coarser, cfg.MaxFrames)
}

// pass runs one sampling sweep. Timestamps are decoded in windows of
// s.workers; results are committed in timestamp order so the capped output is
// the same as a sequential sweep.
func (s *Sampler) pass(ctx context.Context, h Handle, duration time.Duration, interval float64, maxFrames int) (FrameSequence, error) {
	frames := make(FrameSequence, 0, estimateCount(duration, interval, maxFrames))
	skipped := 0
	k := 0

	for len(frames) < maxFrames {
		window := make([]time.Duration, 0, s.workers)
		for len(window) < s.workers {
			ts := timestampAt(k, interval)
			if ts >= duration {
				break
			}
			window = append(window, ts)
			k++
		}
		if len(window) == 0 {
			break
		}

		images, errs := s.decodeWindow(ctx, h, window)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i, ts := range window {
			if len(frames) == maxFrames {
				break
			}
			if errs[i] != nil {
				skipped++
				metrics.FrameDecodeFailuresTotal.Inc()
				s.logger.Debug("skipping undecodable timestamp", "ts_s", ts.Seconds(), "error", errs[i])
				continue
			}
			frames = append(frames, Frame{
				Index:     len(frames),
				Timestamp: ts,
				Image:     images[i],
			})
		}
	}

	metrics.FramesSampledTotal.Add(float64(len(frames)))
	s.logger.Info("sampling pass complete",
		"interval_s", interval,
		"duration_s", duration.Seconds(),
		"frames", len(frames),
		"skipped", skipped,
	)
	return frames, nil
}

func (s *Sampler) decodeWindow(ctx context.Context, h Handle, window []time.Duration) ([]image.Image, []error) {
	images := make([]image.Image, len(window))
	errs := make([]error, len(window))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, ts := range window {
		g.Go(func() error {
			img, err := h.FrameAt(ctx, ts)
			images[i], errs[i] = img, err
			return nil
		})
	}
	g.Wait()
	return images, errs
}

// timestampAt is k*interval seconds.
func timestampAt(k int, interval float64) time.Duration {
	return time.Duration(float64(k) * interval * float64(time.Second))
}

// estimateCount is ceil(duration/interval) bounded by limit.
func estimateCount(duration time.Duration, interval float64, limit int) int {
	n := math.Ceil(duration.Seconds() / interval)
	if n > float64(limit) {
		return limit
	}
	return int(n)
}
