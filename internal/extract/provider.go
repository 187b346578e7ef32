// Package extract calls LLM providers to turn free-text answers into profile
// field values, with weighted primary selection and ordered fallback across
// providers.
package extract

import (
	"context"
	"errors"
	"fmt"
)

// ChatMessage is one turn of conversation context sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request carries everything a provider needs for one extraction call.
type Request struct {
	History     []ChatMessage
	Known       map[string]string // already-collected fields, so providers don't re-ask
	Temperature float64
}

// Result is a successful extraction: the assistant reply plus any field
// values pulled out of the user's latest message.
type Result struct {
	Reply            string
	Extracted        map[string]string
	ModelComplete    bool // the model's own completion claim; the engine decides for real
	PromptTokens     int
	CompletionTokens int
}

// Provider is a single extraction backend.
type Provider interface {
	Name() string
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Error wraps a provider failure. Transient and permanent failures both
// trigger fallback; the split only changes logging detail.
type Error struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("provider %s: %s failure: %v", e.Provider, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient provider failure (timeout,
// 5xx, rate limit).
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// transientStatus classifies HTTP status codes for fallback logging.
func transientStatus(code int) bool {
	return code == 429 || code >= 500
}
