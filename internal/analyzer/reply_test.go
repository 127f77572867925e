package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare object", `{"summary":"ok"}`, `{"summary":"ok"}`},
		{"surrounding whitespace", "\n  {\"summary\":\"ok\"}\n", `{"summary":"ok"}`},
		{"fenced", "Here is the analysis:\n```json\n{\"bad_event\":\"Yes\"}\n```\nLet me know.", `{"bad_event":"Yes"}`},
		{"fenced without tag", "```\n{\"bad_event\":\"No\"}\n```", `{"bad_event":"No"}`},
		{"prose around object", `Sure! {"summary":"a {curly} story","confidence":0.4} Hope this helps.`, `{"summary":"a {curly} story","confidence":0.4}`},
		{"nested object", `Result: {"summary":"x","extra":{"k":1}} done`, `{"summary":"x","extra":{"k":1}}`},
		{"skips invalid candidate", `{oops} then {"summary":"second"}`, `{"summary":"second"}`},
		{"escaped quote", `{"reason":"he said \"stop\" }"}`, `{"reason":"he said \"stop\" }"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.text)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	for _, text := range []string{"", "I cannot help with that.", "{unclosed", "[1, 2, 3]"} {
		_, err := ExtractJSON(text)
		assert.ErrorIs(t, err, ErrAnalysisFailed, text)
	}
}
