package invoker

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// extractJSON returns the JSON object in raw: the whole text when it parses,
// else the body of a fenced code block, else the outermost brace span.
func extractJSON(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if json.Valid([]byte(text)) {
		return text, true
	}

	if m := fencedJSON.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return m[1], true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		span := text[start : end+1]
		if json.Valid([]byte(span)) {
			return span, true
		}
	}
	return "", false
}
