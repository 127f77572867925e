package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/models"
)

func TestGeminiParts(t *testing.T) {
	frames := []models.ExtractedFrame{
		{Data: []byte("first"), MIMEType: "image/jpeg", Timestamp: 0},
		{Data: []byte("second"), MIMEType: "image/jpeg", Timestamp: 7.5},
		{Data: []byte("third"), MIMEType: "image/jpeg", Timestamp: 15},
	}
	req, err := BuildRequest(frames, 30)
	require.NoError(t, err)

	parts, err := geminiParts(req)
	require.NoError(t, err)
	require.Len(t, parts, 1+2*len(frames))

	assert.Equal(t, BuildPrompt(req), parts[0].Text)
	for i, frame := range frames {
		label, inline := parts[1+2*i], parts[2+2*i]
		assert.Contains(t, label.Text, "Frame")
		require.NotNil(t, inline.InlineData, "frame %d", i)
		assert.Equal(t, "image/jpeg", inline.InlineData.MIMEType)
		assert.Equal(t, frame.Data, inline.InlineData.Data)
	}
	assert.Equal(t, "Frame 2 at 7.5s:", parts[3].Text)
}

func TestGeminiPartsBadFrame(t *testing.T) {
	req := models.AnalysisRequest{
		Frames:     []string{"data:image/jpeg;base64,YQ==", "https://example.com/frame.jpg"},
		Timestamps: []float64{0, 1},
		Duration:   2,
	}
	_, err := geminiParts(req)
	assert.ErrorContains(t, err, "frame 2")
}

func TestGeminiConfig(t *testing.T) {
	cfg := geminiConfig()
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	require.NotEmpty(t, cfg.SystemInstruction.Parts)
	assert.Equal(t, systemPrompt, cfg.SystemInstruction.Parts[0].Text)
}
