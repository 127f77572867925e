package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"

	"github.com/bdougie/anomalyvision/internal/models"
)

const (
	defaultOllamaHost  = "http://localhost"
	defaultOllamaPort  = 11434
	defaultOllamaModel = "llama3.2-vision:11b"
)

// NewAgent initializes and returns a new vision agent backed by a local Ollama server
func NewAgent(ctx context.Context, logger *slog.Logger, host string, port int, model string) (*agent.DefaultAgent, error) {
	// Check if Ollama is running
	if err := pingOllama(ctx, host, port); err != nil {
		return nil, fmt.Errorf("ollama is not reachable at %s:%d: %w", host, port, err)
	}

	// Set up Ollama provider
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: host,
		Port:    port,
	}
	provider := ollama.NewProvider(opts)

	provider.UseModel(ctx, &types.Model{
		ID: model,
	})

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: systemPrompt,
	}

	return agent.NewAgent(agentConf), nil
}

func pingOllama(ctx context.Context, host string, port int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s:%d/api/tags", host, port), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// runFunc sends a prompt and one image to the model and returns its text reply
type runFunc func(ctx context.Context, prompt, imagePath string) (string, error)

// OllamaClient analyzes a contact sheet of the frames with a local vision model
type OllamaClient struct {
	run    runFunc
	logger *slog.Logger
}

// NewOllamaClient creates the agent and wraps it as an Analyzer
func NewOllamaClient(ctx context.Context, host string, port int, model string, logger *slog.Logger) (*OllamaClient, error) {
	if host == "" {
		host = defaultOllamaHost
	}
	if port == 0 {
		port = defaultOllamaPort
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	visionAgent, err := NewAgent(ctx, logger, host, port, model)
	if err != nil {
		return nil, err
	}

	run := func(ctx context.Context, prompt, imagePath string) (string, error) {
		response := visionAgent.Run(
			ctx,
			agent.WithInput(prompt),
			agent.WithImagePath(imagePath),
		)
		if response.Err != nil {
			return "", response.Err
		}
		if len(response.Messages) == 0 {
			return "", errors.New("no response messages received from model")
		}
		// The last message is the model's answer, earlier ones echo the prompt
		return response.Messages[len(response.Messages)-1].Content, nil
	}

	return &OllamaClient{run: run, logger: logger}, nil
}

func (c *OllamaClient) Name() string { return BackendOllama }

// Analyze tiles the frames, writes the sheet to a temp file and asks the model about it
func (c *OllamaClient) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	sheet, err := ContactSheet(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	dir, err := os.MkdirTemp("", "anomalyvision-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp dir: %v", ErrAnalysisFailed, err)
	}
	defer os.RemoveAll(dir)

	sheetPath := filepath.Join(dir, "frames.jpg")
	if err := os.WriteFile(sheetPath, sheet, 0644); err != nil {
		return nil, fmt.Errorf("%w: write contact sheet: %v", ErrAnalysisFailed, err)
	}

	prompt := BuildPrompt(req) + "\n\nThe frames are tiled into a single image, left to right and top to bottom, in the order of the offsets above."
	content, err := c.run(ctx, prompt, sheetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	c.logger.Debug("ollama reply", "chars", len(content))
	return ExtractJSON(content)
}
