// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// ErrNoJSONObject is wrapped by the parse failure when the text has no
// opening brace followed later by a closing brace.
var ErrNoJSONObject = errors.New("no JSON object delimiters found")

const maxRawInError = 500

// ExtractJSONObject returns the substring from the first '{' to the last '}'
// inclusive. Markdown fences and surrounding prose fall outside that span.
func ExtractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONObject
	}
	return response[start : end+1], nil
}

// ParseJSONObject runs the repair step on a model response and decodes the
// result into T. Every failure is an *schemas.ExtractionParseFailure; nothing
// is silently recovered.
func ParseJSONObject[T any](response string) (*T, error) {
	candidate, err := ExtractJSONObject(response)
	if err != nil {
		return nil, &schemas.ExtractionParseFailure{Raw: TruncateString(response, maxRawInError), Err: err}
	}

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, &schemas.ExtractionParseFailure{Raw: TruncateString(candidate, maxRawInError), Err: err}
	}
	return &result, nil
}

// TruncateString shortens s to maxLen runes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
