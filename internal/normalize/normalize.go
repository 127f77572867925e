// Package normalize turns loosely structured inference replies into
// AnalysisResult values. The model is asked for a fixed JSON shape but is not
// bound to it, so every field falls back to a default instead of failing.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bdougie/anomalyvision/internal/models"
)

const (
	DefaultSummary    = "Unable to analyze."
	DefaultEventType  = "none"
	DefaultConfidence = 0.5

	maxSeverity = 10
)

// Normalize never fails: missing, wrong-typed or unparseable fields take their
// defaults. duration is supplied by the caller, never read from the reply.
func Normalize(raw models.RawReply, duration float64) models.AnalysisResult {
	result := models.AnalysisResult{
		Summary:    DefaultSummary,
		Confidence: DefaultConfidence,
		EventType:  DefaultEventType,
		Duration:   duration,
	}

	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return result
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return result
	}

	if s, ok := nonEmptyString(doc.Get("summary")); ok {
		result.Summary = s
	}
	result.BadEvent = IsBadEvent(doc.Get("bad_event"))
	if v := doc.Get("reason"); v.Type == gjson.String {
		result.Reason = v.Str
	}
	if v := doc.Get("confidence"); v.Type == gjson.Number {
		result.Confidence = clamp(v.Float(), 0, 1)
	}
	if v := doc.Get("severity_score"); v.Type == gjson.Number {
		score := clamp(v.Float(), 0, maxSeverity)
		result.SeverityScore = &score
	}
	result.AnomalyStart = offset(doc.Get("anomaly_start"))
	result.AnomalyEnd = offset(doc.Get("anomaly_end"))
	if s, ok := nonEmptyString(doc.Get("event_type")); ok {
		result.EventType = s
	}

	return result
}

// IsBadEvent reports whether the value is JSON true or the string "Yes"
func IsBadEvent(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		return v.Str == "Yes"
	default:
		return false
	}
}

func nonEmptyString(v gjson.Result) (string, bool) {
	if v.Type != gjson.String || v.Str == "" {
		return "", false
	}
	return v.Str, true
}

// offset accepts a number or a numeric string of seconds; anything negative
// or non-finite is treated as absent.
func offset(v gjson.Result) *float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
