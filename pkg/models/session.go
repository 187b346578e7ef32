// Package models contains domain models for the onboarding service.
package models

import (
	"time"
)

// SessionStatus represents the lifecycle state of an onboarding session.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusAbandoned  SessionStatus = "abandoned"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusAbandoned
}

// Session tracks one onboarding attempt from start to terminal status.
type Session struct {
	SessionID    string        `json:"session_id"`
	UserID       string        `json:"user_id"`
	Status       SessionStatus `json:"status"`
	Profile      Profile       `json:"profile"`
	MessageCount int           `json:"message_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// MessageRole distinguishes who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one append-only conversation entry. The first message of every
// session is the assistant's opening prompt.
type Message struct {
	MessageID string      `json:"message_id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`

	// Assistant messages only.
	ExtractedFields Profile           `json:"extracted_fields,omitempty"`
	ProviderMeta    *ProviderMetadata `json:"provider_meta,omitempty"`
}

// ProviderMetadata records which extraction provider produced an assistant
// reply and at what cost.
type ProviderMetadata struct {
	Provider         string `json:"provider"`
	LatencyMS        int64  `json:"latency_ms"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Attempts         int    `json:"attempts"`
	Degraded         bool   `json:"degraded,omitempty"`
}

// ProfileRecord is the denormalized copy of a completed profile, created
// exactly once when a session completes.
type ProfileRecord struct {
	RecordID  string    `json:"record_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Fields    Profile   `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
}
