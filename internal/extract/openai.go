package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// OpenAI calls an OpenAI-compatible chat-completions endpoint. DeepSeek
// exposes the same wire format, so both run through this provider with
// different base URLs and models.
type OpenAI struct {
	name      string
	model     string
	baseURL   string
	apiKey    string
	maxTokens int
	client    *http.Client
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(name, model, baseURL, apiKey string, client *http.Client) *OpenAI {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{
		name:      name,
		model:     model,
		baseURL:   baseURL,
		apiKey:    apiKey,
		maxTokens: 500,
		client:    client,
	}
}

// Name implements Provider.
func (p *OpenAI) Name() string { return p.name }

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	Temperature    float64      `json:"temperature"`
	MaxTokens      int          `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Extract implements Provider.
func (p *OpenAI) Extract(ctx context.Context, req Request) (*Result, error) {
	body := oaiRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   p.maxTokens,
	}
	body.ResponseFormat.Type = "json_object"

	body.Messages = append(body.Messages, oaiMessage{Role: "system", Content: systemPrompt()})
	if note := knownFieldsNote(req.Known); note != "" {
		body.Messages = append(body.Messages, oaiMessage{Role: "system", Content: note})
	}
	for _, m := range req.History {
		body.Messages = append(body.Messages, oaiMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Provider: p.name, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Provider: p.name, Transient: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:  p.name,
			Transient: transientStatus(resp.StatusCode),
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200)),
		}
	}

	var apiResp oaiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("no choices returned")}
	}

	env, err := parseEnvelope(apiResp.Choices[0].Message.Content)
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}
	return &Result{
		Reply:            env.Response,
		Extracted:        env.Extracted,
		ModelComplete:    env.IsComplete,
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
