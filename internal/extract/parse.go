package extract

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// envelope is the JSON structure every provider is instructed to return.
type envelope struct {
	Extracted  map[string]string `json:"extracted"`
	Response   string            `json:"response"`
	IsComplete bool              `json:"is_complete"`
}

// parseEnvelope validates and parses a model's raw text output. Models
// occasionally wrap JSON in markdown code fences despite instructions, so
// fences are stripped before parsing.
func parseEnvelope(content string) (*envelope, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model response")
	}

	content = stripCodeFence(content)

	var env envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	if strings.TrimSpace(env.Response) == "" {
		return nil, fmt.Errorf("model response missing 'response' field")
	}
	if env.Extracted == nil {
		env.Extracted = map[string]string{}
	}
	return &env, nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
