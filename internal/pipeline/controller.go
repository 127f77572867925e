package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bdougie/anomalyvision/internal/analyzer"
	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/metrics"
	"github.com/bdougie/anomalyvision/internal/models"
	"github.com/bdougie/anomalyvision/internal/normalize"
)

// Stage is the step a controller is currently in
type Stage string

const (
	StageIdle       Stage = "idle"
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
)

const (
	DefaultTickInterval = 500 * time.Millisecond
	DefaultTickStep     = 2
	DefaultTickCap      = 90
)

// Sampler extracts frames from a video, reporting progress as it goes
type Sampler interface {
	ExtractFrames(ctx context.Context, videoPath string, progress extractor.ProgressFunc) ([]models.ExtractedFrame, extractor.VideoInfo, error)
}

// Options tunes the synthetic progress shown while waiting for the analyzer
type Options struct {
	TickInterval time.Duration
	TickStep     int
	TickCap      int
}

// Snapshot is a copy of the controller state
type Snapshot struct {
	Run      uint64
	Stage    Stage
	Progress int
	Result   *models.AnalysisResult
	Frames   []models.ExtractedFrame
}

// Controller drives one video at a time through sampling and analysis.
//
// All state is guarded by mu. Each Submit or Reset starts a new generation;
// work belonging to an older generation is dropped when it reports back.
type Controller struct {
	sampler  Sampler
	analyzer analyzer.Analyzer
	opts     Options
	logger   *slog.Logger
	tracer   trace.Tracer
	events   *dispatcher

	mu         sync.Mutex
	run        uint64
	stage      Stage
	progress   int
	result     *models.AnalysisResult
	frames     []models.ExtractedFrame
	stopTicker context.CancelFunc
}

// New creates an idle controller
func New(sampler Sampler, a analyzer.Analyzer, opts Options, logger *slog.Logger) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.TickStep <= 0 {
		opts.TickStep = DefaultTickStep
	}
	if opts.TickCap <= 0 || opts.TickCap >= 100 {
		opts.TickCap = DefaultTickCap
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		sampler:  sampler,
		analyzer: a,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/bdougie/anomalyvision/internal/pipeline"),
		events:   newDispatcher(),
		stage:    StageIdle,
	}
}

// Subscribe registers an observer and returns a func that removes it
func (c *Controller) Subscribe(fn Observer) func() {
	return c.events.subscribe(fn)
}

// Close stops event delivery after flushing queued events
func (c *Controller) Close() {
	c.Reset()
	c.events.close()
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Run:      c.run,
		Stage:    c.stage,
		Progress: c.progress,
		Result:   c.result,
		Frames:   append([]models.ExtractedFrame(nil), c.frames...),
	}
}

// Submit starts processing videoPath and returns its run id immediately.
// A run still in flight is superseded and its late results are discarded.
func (c *Controller) Submit(ctx context.Context, videoPath string) uint64 {
	c.mu.Lock()
	c.run++
	run := c.run
	c.cancelTickerLocked()
	c.stage = StageExtracting
	c.progress = 0
	c.result = nil
	c.frames = nil
	c.emitLocked(Event{Run: run, Kind: EventStage, Stage: StageExtracting})
	c.mu.Unlock()

	c.logger.Info("run started", "run", run, "video", videoPath)
	go c.execute(ctx, run, videoPath)
	return run
}

// Analyze submits videoPath and blocks until the run completes, fails, is
// reset, or ctx is done.
func (c *Controller) Analyze(ctx context.Context, videoPath string) (models.AnalysisResult, error) {
	terminal := make(chan Event, 1)
	var (
		once  sync.Once
		runID uint64
		ready = make(chan struct{})
	)
	unsubscribe := c.Subscribe(func(e Event) {
		<-ready
		// An event from a newer generation means this run was reset or superseded
		if (e.Run == runID && e.Terminal()) || e.Run > runID {
			once.Do(func() { terminal <- e })
		}
	})
	defer unsubscribe()

	runID = c.Submit(ctx, videoPath)
	close(ready)

	select {
	case <-ctx.Done():
		return models.AnalysisResult{}, ctx.Err()
	case e := <-terminal:
		switch e.Kind {
		case EventCompleted:
			return *e.Result, nil
		case EventFailed:
			return models.AnalysisResult{}, e.Failure
		default:
			return models.AnalysisResult{}, ErrRunReset
		}
	}
}

// Reset returns to idle from any stage, discarding the result and frames
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run++
	c.cancelTickerLocked()
	c.stage = StageIdle
	c.progress = 0
	c.result = nil
	c.frames = nil
	c.emitLocked(Event{Run: c.run, Kind: EventReset, Stage: StageIdle})
}

func (c *Controller) execute(ctx context.Context, run uint64, videoPath string) {
	ctx, span := c.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("video.path", videoPath),
		attribute.Int64("run", int64(run)),
	))
	defer span.End()

	sampleCtx, sampleSpan := c.tracer.Start(ctx, "extract_frames")
	start := time.Now()
	frames, info, err := c.sampler.ExtractFrames(sampleCtx, videoPath, func(p int) {
		c.sampleProgress(run, p)
	})
	sampleSpan.SetAttributes(attribute.Int("frames", len(frames)))
	sampleSpan.End()
	metrics.StageDuration.WithLabelValues(string(StageExtracting)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		c.fail(run, samplingFailure(err))
		return
	}

	req, err := analyzer.BuildRequest(frames, info.Duration)
	if err != nil {
		c.fail(run, samplingFailure(err))
		return
	}

	if !c.beginAnalysis(run, frames) {
		return
	}

	analyzeCtx, analyzeSpan := c.tracer.Start(ctx, "analyze", trace.WithAttributes(
		attribute.String("backend", c.analyzer.Name()),
	))
	start = time.Now()
	reply, err := c.analyzer.Analyze(analyzeCtx, req)
	analyzeSpan.End()
	metrics.StageDuration.WithLabelValues(string(StageAnalyzing)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		c.fail(run, transportFailure(err))
		return
	}

	c.complete(run, normalize.Normalize(reply, info.Duration))
}

func (c *Controller) sampleProgress(run uint64, p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run != c.run || c.stage != StageExtracting {
		return
	}
	p = min(max(p, 0), 100)
	if p <= c.progress {
		return
	}
	c.progress = p
	c.emitLocked(Event{Run: run, Kind: EventProgress, Stage: StageExtracting, Progress: p})
}

func (c *Controller) beginAnalysis(run uint64, frames []models.ExtractedFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run != c.run {
		c.discardLocked(run)
		return false
	}

	c.frames = frames
	c.stage = StageAnalyzing
	c.progress = 0
	c.emitLocked(Event{Run: run, Kind: EventStage, Stage: StageAnalyzing})

	tickCtx, cancel := context.WithCancel(context.Background())
	c.stopTicker = cancel
	go c.tick(tickCtx, run)

	c.logger.Debug("analysis started", "run", run, "frames", len(frames), "backend", c.analyzer.Name())
	return true
}

// tick advances progress until cancelled. The context is checked under the
// lock, so a tick can never land after the terminal transition.
func (c *Controller) tick(ctx context.Context, run uint64) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if ctx.Err() != nil || run != c.run || c.stage != StageAnalyzing {
			c.mu.Unlock()
			return
		}
		next := min(c.progress+c.opts.TickStep, c.opts.TickCap)
		if next > c.progress {
			c.progress = next
			c.emitLocked(Event{Run: run, Kind: EventProgress, Stage: StageAnalyzing, Progress: next})
		}
		c.mu.Unlock()
	}
}

func (c *Controller) complete(run uint64, result models.AnalysisResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run != c.run {
		c.discardLocked(run)
		return
	}

	c.cancelTickerLocked()
	c.progress = 100
	c.emitLocked(Event{Run: run, Kind: EventProgress, Stage: StageAnalyzing, Progress: 100})

	c.result = &result
	c.stage = StageIdle
	c.progress = 0
	c.emitLocked(Event{Run: run, Kind: EventCompleted, Stage: StageIdle, Result: c.result})

	metrics.RunsTotal.WithLabelValues("completed").Inc()
	c.logger.Info("run completed",
		"run", run,
		"bad_event", result.BadEvent,
		"event_type", result.EventType,
		"confidence", result.Confidence,
	)
}

func (c *Controller) fail(run uint64, failure *Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if run != c.run {
		c.discardLocked(run)
		return
	}

	c.cancelTickerLocked()
	c.stage = StageIdle
	c.progress = 0
	c.result = nil
	c.emitLocked(Event{Run: run, Kind: EventFailed, Stage: StageIdle, Failure: failure})

	metrics.RunsTotal.WithLabelValues(string(failure.Kind) + "_failure").Inc()
	c.logger.Error("run failed", "run", run, "kind", failure.Kind, "error", failure.Err)
}

func (c *Controller) discardLocked(run uint64) {
	metrics.RunsTotal.WithLabelValues("discarded").Inc()
	c.logger.Debug("discarding stale run", "run", run, "current", c.run)
}

func (c *Controller) cancelTickerLocked() {
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
}

func (c *Controller) emitLocked(e Event) {
	c.events.push(e)
}

// ErrRunReset is returned by Analyze when the run is reset or superseded
var ErrRunReset = errors.New("run was reset before it finished")

// FailureKind classifies a failed run
type FailureKind string

const (
	FailureSampling  FailureKind = "sampling"
	FailureTransport FailureKind = "transport"
)

// Failure is reported once per failed run with a message fit for the user
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	if cause := f.Err.Error(); strings.HasPrefix(cause, f.Message) {
		return cause
	}
	return fmt.Sprintf("%s: %v", f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func samplingFailure(err error) *Failure {
	msg := extractor.ErrNoFrames.Error()
	if !errors.Is(err, extractor.ErrNoFrames) {
		msg = err.Error()
	}
	return &Failure{Kind: FailureSampling, Message: msg, Err: err}
}

func transportFailure(err error) *Failure {
	return &Failure{Kind: FailureTransport, Message: analyzer.ErrAnalysisFailed.Error(), Err: err}
}
