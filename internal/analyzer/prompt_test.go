package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/anomalyvision/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(models.AnalysisRequest{
		Frames:     []string{"a", "b", "c"},
		Timestamps: []float64{0, 10, 20},
		Duration:   30,
	})

	assert.Contains(t, prompt, "30.0 seconds long")
	assert.Contains(t, prompt, "3 frames")
	assert.Contains(t, prompt, " 0.0, 10.0, 20.0.")
	for _, key := range []string{"summary", "bad_event", "reason", "confidence", "severity_score", "anomaly_start", "anomaly_end", "event_type"} {
		assert.Contains(t, prompt, `"`+key+`"`)
	}
}

func TestDecodeDataURL(t *testing.T) {
	frame := models.ExtractedFrame{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, MIMEType: "image/jpeg"}

	mime, data, err := DecodeDataURL(frame.DataURL())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, frame.Data, data)

	mime, _, err = DecodeDataURL("data:;base64,YQ==")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
}

func TestDecodeDataURLErrors(t *testing.T) {
	for _, url := range []string{
		"https://example.com/frame.jpg",
		"data:image/jpeg;base64",
		"data:image/jpeg,plain",
		"data:image/jpeg;base64,!!!",
	} {
		_, _, err := DecodeDataURL(url)
		assert.Error(t, err, url)
	}
}
