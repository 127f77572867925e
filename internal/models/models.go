package models

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// WorkItem represents a sample instant to be decoded
type WorkItem struct {
	Index     int
	Timestamp float64
	Total     int
}

// ExtractedFrame represents a still captured from the video at Timestamp seconds.
// Frames are produced by the extractor and must not be modified afterwards.
type ExtractedFrame struct {
	Data      []byte  `json:"-"`
	MIMEType  string  `json:"mime_type"`
	Timestamp float64 `json:"timestamp"`
}

// DataURL returns the frame encoded as a self-describing data URL
func (f ExtractedFrame) DataURL() string {
	mime := f.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// AnalysisRequest is the payload sent to the inference service.
// Frames and Timestamps are parallel and never empty.
type AnalysisRequest struct {
	Frames     []string  `json:"frames"`
	Timestamps []float64 `json:"timestamps"`
	Duration   float64   `json:"duration"`
}

// RawReply is the undecoded JSON document returned by the inference service
type RawReply []byte

// AnalysisResult represents the normalized outcome of analyzing a video
type AnalysisResult struct {
	Summary       string   `json:"summary"`
	BadEvent      bool     `json:"bad_event"`
	Reason        string   `json:"reason"`
	Confidence    float64  `json:"confidence"`
	SeverityScore *float64 `json:"severity_score,omitempty"`
	AnomalyStart  *float64 `json:"anomaly_start"`
	AnomalyEnd    *float64 `json:"anomaly_end"`
	EventType     string   `json:"event_type"`
	Duration      float64  `json:"duration"`
}

// Report is a stored analysis result for a single video
type Report struct {
	ID         uuid.UUID      `json:"id"`
	Video      string         `json:"video"`
	FrameCount int            `json:"frame_count"`
	Backend    string         `json:"backend"`
	Result     AnalysisResult `json:"result"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewReport wraps a result for storage
func NewReport(video, backend string, frameCount int, result AnalysisResult) Report {
	return Report{
		ID:         uuid.New(),
		Video:      video,
		FrameCount: frameCount,
		Backend:    backend,
		Result:     result,
		CreatedAt:  time.Now().UTC(),
	}
}
