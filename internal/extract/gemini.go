package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// Gemini calls the generateContent API. Gemini has no assistant role and no
// inline system message; history roles map assistant→model and the system
// prompt rides in systemInstruction.
type Gemini struct {
	name    string
	model   string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(name, model, baseURL, apiKey string, client *http.Client) *Gemini {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gemini{
		name:    name,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}
}

// Name implements Provider.
func (p *Gemini) Name() string { return p.name }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction geminiContent   `json:"systemInstruction"`
	GenerationConfig  struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Extract implements Provider.
func (p *Gemini) Extract(ctx context.Context, req Request) (*Result, error) {
	var body geminiRequest
	body.SystemInstruction = geminiContent{Parts: []geminiPart{{Text: systemPrompt()}}}
	body.GenerationConfig.Temperature = req.Temperature
	body.GenerationConfig.MaxOutputTokens = 500
	body.GenerationConfig.ResponseMimeType = "application/json"

	if note := knownFieldsNote(req.Known); note != "" {
		body.Contents = append(body.Contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: note}},
		})
	}
	for _, m := range req.History {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}
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

	var apiResp geminiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return nil, &Error{Provider: p.name, Err: fmt.Errorf("no candidates returned")}
	}

	env, err := parseEnvelope(apiResp.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, &Error{Provider: p.name, Err: err}
	}
	return &Result{
		Reply:            env.Response,
		Extracted:        env.Extracted,
		ModelComplete:    env.IsComplete,
		PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}
