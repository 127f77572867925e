package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/metrics"
	"github.com/bdougie/anomalyvision/internal/models"
)

// Supported inference backends
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

var (
	// ErrAnalysisFailed covers every way the inference call can fail: transport,
	// non-success status, or a body that is not JSON.
	ErrAnalysisFailed = errors.New("analysis failed")

	ErrUnknownBackend = errors.New("unknown analyzer backend")
	ErrEmptyEndpoint  = errors.New("analysis endpoint is not configured")
)

// Analyzer sends one request to an inference service and returns its raw reply.
// Implementations make a single attempt and never retry.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error)
}

// Config selects and configures a backend
type Config struct {
	Backend       string
	Endpoint      string
	APIKey        string
	Model         string
	Timeout       time.Duration
	RatePerMinute float64
	OllamaHost    string
	OllamaPort    int
}

// New builds the configured backend, wrapped with pacing and metrics
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Analyzer, error) {
	var (
		a   Analyzer
		err error
	)
	switch cfg.Backend {
	case BackendHTTP, "":
		if cfg.Endpoint == "" {
			return nil, ErrEmptyEndpoint
		}
		a = NewHTTPClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout, logger)
	case BackendGemini:
		a, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model, logger)
	case BackendOllama:
		a, err = NewOllamaClient(ctx, cfg.OllamaHost, cfg.OllamaPort, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	return WithRateLimit(&instrumented{next: a}, cfg.RatePerMinute), nil
}

// BuildRequest packages sampled frames into an analysis request. It fails only
// when there are no frames.
func BuildRequest(frames []models.ExtractedFrame, duration float64) (models.AnalysisRequest, error) {
	if len(frames) == 0 {
		return models.AnalysisRequest{}, extractor.ErrNoFrames
	}

	req := models.AnalysisRequest{
		Frames:     make([]string, len(frames)),
		Timestamps: make([]float64, len(frames)),
		Duration:   duration,
	}
	for i, f := range frames {
		req.Frames[i] = f.DataURL()
		req.Timestamps[i] = f.Timestamp
	}
	return req, nil
}

// WithRateLimit paces calls to at most perMinute per minute. Waiting is not a
// retry: each call still reaches the backend once.
func WithRateLimit(a Analyzer, perMinute float64) Analyzer {
	if perMinute <= 0 {
		return a
	}
	return &paced{next: a, limiter: rate.NewLimiter(rate.Limit(perMinute/60), 1)}
}

type paced struct {
	next    Analyzer
	limiter *rate.Limiter
}

func (p *paced) Name() string { return p.next.Name() }

func (p *paced) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	return p.next.Analyze(ctx, req)
}

type instrumented struct {
	next Analyzer
}

func (m *instrumented) Name() string { return m.next.Name() }

func (m *instrumented) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	reply, err := m.next.Analyze(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.InferenceRequestsTotal.WithLabelValues(m.next.Name(), status).Inc()
	return reply, err
}
