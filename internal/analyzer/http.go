package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bdougie/anomalyvision/internal/models"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	maxReplyBytes      = 4 * 1024 * 1024
)

// HTTPClient posts {frames, timestamps, duration} to an analysis endpoint
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPClient creates a client for the given endpoint. A zero timeout uses the default.
func NewHTTPClient(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

func (c *HTTPClient) Name() string { return BackendHTTP }

// Analyze sends the request and returns the reply body once it is known to be JSON
func (c *HTTPClient) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrAnalysisFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrAnalysisFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrAnalysisFailed, err)
	}

	c.logger.Debug("analysis reply received",
		"status", resp.StatusCode,
		"bytes", len(data),
		"latency", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrAnalysisFailed, resp.StatusCode, truncate(data, 256))
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: reply is not valid JSON", ErrAnalysisFailed)
	}
	return models.RawReply(data), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
