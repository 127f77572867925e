package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/bdougie/anomalyvision/internal/models"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient analyzes frames with a Gemini vision model
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiClient connects to the Gemini API with the given key
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini backend requires an API key")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

func (c *GeminiClient) Name() string { return BackendGemini }

// Analyze sends the prompt followed by each frame, labelled with its offset
func (c *GeminiClient) Analyze(ctx context.Context, req models.AnalysisRequest) (models.RawReply, error) {
	parts, err := geminiParts(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, geminiConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	text := resp.Text()
	c.logger.Debug("gemini reply", "model", c.model, "chars", len(text))
	return ExtractJSON(text)
}

func geminiConfig() *genai.GenerateContentConfig {
	temperature := float32(0.2)
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       &temperature,
	}
}

func geminiParts(req models.AnalysisRequest) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, 2*len(req.Frames)+1)
	parts = append(parts, genai.NewPartFromText(BuildPrompt(req)))
	for i, frame := range req.Frames {
		mime, data, err := DecodeDataURL(frame)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		parts = append(parts,
			genai.NewPartFromText(fmt.Sprintf("Frame %d at %.1fs:", i+1, req.Timestamps[i])),
			genai.NewPartFromBytes(data, mime),
		)
	}
	return parts, nil
}
