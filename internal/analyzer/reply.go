package analyzer

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bdougie/anomalyvision/internal/models"
)

// ExtractJSON pulls the JSON object out of free model text. It accepts a bare
// object, a ```json fenced block, or the first balanced {...} in the text.
func ExtractJSON(text string) (models.RawReply, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") && gjson.Valid(text) {
		return models.RawReply(text), nil
	}

	if fenced, ok := fencedBlock(text); ok && gjson.Valid(fenced) {
		return models.RawReply(fenced), nil
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return models.RawReply(candidate), nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	return nil, fmt.Errorf("%w: no JSON object in model reply", ErrAnalysisFailed)
}

func fencedBlock(text string) (string, bool) {
	_, after, ok := strings.Cut(text, "```")
	if !ok {
		return "", false
	}
	// Drop the language tag on the opening fence
	if nl := strings.IndexByte(after, '\n'); nl >= 0 {
		after = after[nl+1:]
	}
	body, _, ok := strings.Cut(after, "```")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(body), true
}

// matchBrace returns the index of the brace closing the one at start,
// skipping braces inside string literals, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
