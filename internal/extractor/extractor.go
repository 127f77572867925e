package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/anomalyvision/internal/metrics"
	"github.com/bdougie/anomalyvision/internal/models"
)

const (
	DefaultFrames       = 16
	DefaultMaxDimension = 512
	defaultWorkers      = 4
)

// ErrNoFrames is returned when not a single frame could be decoded from the source
var ErrNoFrames = errors.New("could not extract any frames from the video")

// ProgressFunc receives a percentage in 0..100 after each captured frame
type ProgressFunc func(percent int)

// Options controls how many frames are sampled and how large they are
type Options struct {
	Frames       int
	MaxDimension int
	Workers      int
}

// Extractor samples evenly spaced stills from a video
type Extractor struct {
	decoder Decoder
	opts    Options
	logger  *slog.Logger
}

// New creates an extractor, filling unset options with defaults
func New(decoder Decoder, opts Options, logger *slog.Logger) *Extractor {
	if opts.Frames <= 0 {
		opts.Frames = DefaultFrames
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{decoder: decoder, opts: opts, logger: logger}
}

// Probe returns the video properties and the instants that would be sampled
func (e *Extractor) Probe(ctx context.Context, videoPath string) (VideoInfo, []float64, error) {
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return VideoInfo{}, nil, fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}
	info, err := e.decoder.Probe(ctx, videoPath)
	if err != nil {
		return VideoInfo{}, nil, err
	}
	return info, PlanInstants(info, e.opts.Frames), nil
}

// ExtractFrames decodes up to Options.Frames stills spread evenly over the
// video. Instants that fail to decode are skipped; ErrNoFrames is returned
// only when none succeed. The returned frames are ordered by timestamp.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, progress ProgressFunc) ([]models.ExtractedFrame, VideoInfo, error) {
	info, instants, err := e.Probe(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not probe video", "path", videoPath, "error", err)
		return nil, info, fmt.Errorf("%w: %v", ErrNoFrames, err)
	}
	if len(instants) == 0 {
		return nil, info, fmt.Errorf("%w: video has no duration", ErrNoFrames)
	}

	width, height := FitWithin(info.Width, info.Height, e.opts.MaxDimension)
	e.logger.Debug("extracting frames",
		"path", videoPath,
		"duration", info.Duration,
		"instants", len(instants),
		"width", width,
		"height", height,
	)

	slots := make([]*models.ExtractedFrame, len(instants))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, at := range instants {
		work := models.WorkItem{Index: i, Timestamp: at, Total: len(instants)}
		g.Go(func() error {
			data, err := e.decoder.FrameAt(gctx, videoPath, work.Timestamp, width, height)

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil || len(data) == 0 {
				// Cancellation is the only error that aborts the whole run
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.FramesSkippedTotal.Inc()
				e.logger.Debug("skipping frame", "index", work.Index+1, "total", work.Total, "at", work.Timestamp, "error", err)
				return nil
			}

			slots[work.Index] = &models.ExtractedFrame{
				Data:      data,
				MIMEType:  "image/jpeg",
				Timestamp: work.Timestamp,
			}
			if progress != nil {
				progress(percent(done, work.Total))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, info, err
	}

	frames := make([]models.ExtractedFrame, 0, len(slots))
	for _, f := range slots {
		if f != nil {
			frames = append(frames, *f)
		}
	}
	metrics.FramesSampledTotal.Add(float64(len(frames)))

	if len(frames) == 0 {
		return nil, info, ErrNoFrames
	}

	e.logger.Info("frames extracted", "count", len(frames), "planned", len(instants), "duration", info.Duration)
	return frames, info, nil
}

// PlanInstants spaces n sample points evenly over [0, duration). When the
// video holds fewer frames than n the plan shrinks to the frame count.
func PlanInstants(info VideoInfo, n int) []float64 {
	d := info.Duration
	if n < 1 || d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil
	}
	if info.FPS > 0 {
		if available := int(math.Floor(d * info.FPS)); available < n {
			n = max(available, 1)
		}
	}

	instants := make([]float64, n)
	for i := range instants {
		instants[i] = float64(i) * d / float64(n)
	}
	return instants
}

// FitWithin scales width x height so the larger side is at most maxDim,
// keeping the aspect ratio and even dimensions. Small sources are not
// upscaled. Unknown dimensions return 0, 0.
func FitWithin(width, height, maxDim int) (int, int) {
	if width <= 0 || height <= 0 || maxDim <= 0 {
		return 0, 0
	}
	if width <= maxDim && height <= maxDim {
		return even(width), even(height)
	}

	scale := float64(maxDim) / float64(max(width, height))
	return even(int(math.Round(float64(width) * scale))), even(int(math.Round(float64(height) * scale)))
}

func even(v int) int {
	if v%2 != 0 {
		v--
	}
	return max(v, 2)
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return min(done*100/total, 100)
}
