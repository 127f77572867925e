package analyzer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bdougie/anomalyvision/internal/models"
)

const systemPrompt = "You are a surveillance video analyst. You review still frames sampled from " +
	"a single video and decide whether a crime, violent act, accident or other suspicious event occurs. " +
	"Answer with one JSON object and nothing else."

const replyShape = `{
  "summary": "one or two sentences describing the scene",
  "bad_event": "Yes" or "No",
  "reason": "why the event is or is not suspicious",
  "confidence": number between 0 and 1,
  "severity_score": number between 0 and 10,
  "anomaly_start": seconds from the start of the video where the event begins, or null,
  "anomaly_end": seconds from the start of the video where the event ends, or null,
  "event_type": short label such as "Robbery", "Assault", "Vandalism", "Accident" or "none"
}`

// BuildPrompt describes the frame timeline and the reply format expected from
// a vision-language model.
func BuildPrompt(req models.AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The video is %.1f seconds long. ", req.Duration)
	fmt.Fprintf(&b, "You are given %d frames in chronological order, captured at these offsets (seconds):", len(req.Timestamps))
	for i, ts := range req.Timestamps {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, " %.1f", ts)
	}
	b.WriteString(".\n\nRespond with JSON in exactly this shape:\n")
	b.WriteString(replyShape)
	b.WriteString("\n\nUse the frame offsets to estimate anomaly_start and anomaly_end. If nothing suspicious happens set bad_event to \"No\", event_type to \"none\" and both offsets to null.")
	return b.String()
}

// DecodeDataURL splits a base64 data URL into its MIME type and payload
func DecodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	if mime == "" {
		mime = "image/jpeg"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mime, data, nil
}
