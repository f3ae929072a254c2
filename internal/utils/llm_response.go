package utils

import (
	"encoding/json"
	"strings"
)

// ClassificationResponse is the structured form a model may answer with
type ClassificationResponse struct {
	Category string `json:"category"`
}

// ExtractCategory pulls the category out of a model response. A JSON object
// with a "category" field is preferred, including one embedded in prose;
// anything else is returned trimmed for sanitization downstream.
func ExtractCategory(responseText string) string {
	text := strings.TrimSpace(responseText)

	var resp ClassificationResponse
	if err := json.Unmarshal([]byte(text), &resp); err == nil && resp.Category != "" {
		return strings.TrimSpace(resp.Category)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err == nil && resp.Category != "" {
			return strings.TrimSpace(resp.Category)
		}
	}

	// Models sometimes answer on the first line and explain on the next
	if line, _, found := strings.Cut(text, "\n"); found {
		return strings.TrimSpace(line)
	}
	return text
}
