package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/extractor"
	"github.com/bdougie/anomalyvision/internal/models"
)

type stubAnalyzer struct {
	calls int
	err   error
}

func (s *stubAnalyzer) Name() string { return "stub" }

func (s *stubAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return models.RawReply(`{}`), nil
}

func TestBuildRequest(t *testing.T) {
	frames := []models.ExtractedFrame{
		{Data: []byte("a"), MIMEType: "image/jpeg", Timestamp: 0},
		{Data: []byte("b"), MIMEType: "image/png", Timestamp: 1.875},
		{Data: []byte("c"), Timestamp: 3.75},
	}

	req, err := BuildRequest(frames, 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, req.Duration)
	assert.Equal(t, []float64{0, 1.875, 3.75}, req.Timestamps)
	assert.Equal(t, []string{
		"data:image/jpeg;base64,YQ==",
		"data:image/png;base64,Yg==",
		"data:image/jpeg;base64,Yw==",
	}, req.Frames)
}

func TestBuildRequestEmpty(t *testing.T) {
	_, err := BuildRequest(nil, 30)
	assert.ErrorIs(t, err, extractor.ErrNoFrames)
}

func TestNewBackends(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Backend: BackendHTTP}, nil)
	assert.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = New(ctx, Config{Backend: "carrier-pigeon"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(ctx, Config{Backend: BackendGemini}, nil)
	assert.ErrorContains(t, err, "API key")

	a, err := New(ctx, Config{Backend: BackendHTTP, Endpoint: "http://localhost:1/analyze", RatePerMinute: 6}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendHTTP, a.Name())
	assert.IsType(t, &paced{}, a)
}

func TestWithRateLimit(t *testing.T) {
	stub := &stubAnalyzer{}
	assert.Same(t, stub, WithRateLimit(stub, 0))

	a := WithRateLimit(stub, 1)
	_, err := a.Analyze(context.Background(), models.AnalysisRequest{})
	require.NoError(t, err)

	// The second call has to wait a minute for a token, the context gives up first
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, models.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Equal(t, 1, stub.calls)
}

func TestInstrumentedPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	a := &instrumented{next: &stubAnalyzer{err: boom}}
	assert.Equal(t, "stub", a.Name())

	_, err := a.Analyze(context.Background(), models.AnalysisRequest{})
	assert.ErrorIs(t, err, boom)
}
