// Package session owns the onboarding session lifecycle: it drives the next
// prompt, merges extracted fields, detects completion, and persists every
// exchange through the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pouncehq/onboard/internal/extract"
	"github.com/pouncehq/onboard/internal/profile"
	"github.com/pouncehq/onboard/internal/schema"
	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/pkg/models"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = store.ErrNotFound

// ErrInvalidState is returned when an operation targets a session that has
// already completed or been abandoned.
var ErrInvalidState = errors.New("session: already in a terminal state")

// Caller abstracts the provider fallback caller for the engine.
type Caller interface {
	Call(ctx context.Context, req extract.Request) *extract.Outcome
}

// Engine is the session state machine. All mutation of a session happens
// under its per-session lock; the field schema is immutable and shared.
type Engine struct {
	store  store.Store
	caller Caller
	window *extract.Window
	locks  *keyedMutex

	now   func() time.Time
	newID func() string
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(st store.Store, caller Caller, window *extract.Window) *Engine {
	if window == nil {
		window = extract.NewWindow(0)
	}
	return &Engine{
		store:  st,
		caller: caller,
		window: window,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// StartResult is returned by Start.
type StartResult struct {
	SessionID string
	Prompt    string
}

// AnswerResult is returned by SubmitAnswer.
type AnswerResult struct {
	Reply             string
	IsComplete        bool
	Degraded          bool
	Profile           models.Profile // set only on completion
	CompletionMessage string         // set only on completion
}

// View is the read-only session state returned by Get.
type View struct {
	Session  *models.Session
	Messages []*models.Message
}

// Start creates a new in-progress session for userID and returns the opening
// prompt, which is always the first schema field's question.
func (e *Engine) Start(ctx context.Context, userID string) (*StartResult, error) {
	now := e.now().UTC()
	sess := &models.Session{
		SessionID: e.newID(),
		UserID:    userID,
		Status:    models.SessionStatusInProgress,
		Profile:   models.Profile{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	first := schema.First()
	opening := &models.Message{
		MessageID: e.newID(),
		SessionID: sess.SessionID,
		Role:      models.RoleAssistant,
		Content:   first.Prompt,
		CreatedAt: now,
	}
	if err := e.store.AppendMessage(ctx, opening); err != nil {
		return nil, fmt.Errorf("append opening prompt: %w", err)
	}

	log.Info().
		Str("sessionId", sess.SessionID).
		Str("userId", userID).
		Msg("Session started")

	return &StartResult{SessionID: sess.SessionID, Prompt: first.Prompt}, nil
}

// SubmitAnswer processes one user answer: it records the answer, runs
// extraction with provider fallback, merges any extracted fields, and either
// completes the session or asks for the next missing field.
//
// Answers for one session are strictly serialized; a concurrent submission
// observes the previous one's merged profile. A degraded extraction is not an
// error: the session stays in progress and the apology reply is returned.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID, answer string) (*AnswerResult, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, sess.Status)
	}

	past, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	userMsg := &models.Message{
		MessageID: e.newID(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   answer,
		CreatedAt: e.now().UTC(),
	}

	history := make([]extract.ChatMessage, 0, len(past)+1)
	for _, m := range past {
		history = append(history, extract.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	history = append(history, extract.ChatMessage{Role: string(models.RoleUser), Content: answer})

	// The provider call and the persistence of its outcome run detached from
	// the request context: a client disconnect must not abort an extraction
	// mid-write and leave the transcript out of sync with the profile.
	callCtx := context.WithoutCancel(ctx)

	out := e.caller.Call(callCtx, extract.Request{
		History: e.window.Bound(history),
		Known:   sess.Profile,
	})

	if out.Degraded {
		return e.recordDegraded(callCtx, sess, userMsg, out)
	}

	merged := profile.Merge(sess.Profile, out.Extracted)
	if len(merged.ReAsked) > 0 {
		log.Warn().
			Str("sessionId", sessionID).
			Strs("fields", merged.ReAsked).
			Msg("Provider re-extracted already-collected fields, keeping first values")
	}

	if profile.IsComplete(sess.Profile) {
		return e.recordCompletion(callCtx, sess, userMsg, out, merged)
	}
	return e.recordNextPrompt(callCtx, sess, userMsg, out, merged)
}

// recordDegraded persists the failed exchange. The session stays in progress
// so the user can simply answer again.
func (e *Engine) recordDegraded(ctx context.Context, sess *models.Session, userMsg *models.Message, out *extract.Outcome) (*AnswerResult, error) {
	meta := out.Meta
	apology := &models.Message{
		MessageID:    e.newID(),
		SessionID:    sess.SessionID,
		Role:         models.RoleAssistant,
		Content:      out.Reply,
		CreatedAt:    e.now().UTC(),
		ProviderMeta: &meta,
	}

	sess.MessageCount++
	sess.UpdatedAt = e.now().UTC()
	if err := e.store.RecordExchange(ctx, sess, []*models.Message{userMsg, apology}, nil); err != nil {
		return nil, fmt.Errorf("record degraded exchange: %w", err)
	}
	return &AnswerResult{Reply: out.Reply, Degraded: true}, nil
}

func (e *Engine) recordCompletion(ctx context.Context, sess *models.Session, userMsg *models.Message, out *extract.Outcome, merged profile.MergeResult) (*AnswerResult, error) {
	now := e.now().UTC()

	reply := schema.CompletionMessage
	if out.ModelComplete && out.Reply != "" {
		reply = out.Reply
	}

	meta := out.Meta
	final := &models.Message{
		MessageID:       e.newID(),
		SessionID:       sess.SessionID,
		Role:            models.RoleAssistant,
		Content:         reply,
		CreatedAt:       now,
		ExtractedFields: extractedProfile(merged, sess.Profile),
		ProviderMeta:    &meta,
	}

	sess.Status = models.SessionStatusCompleted
	sess.CompletedAt = &now
	sess.MessageCount++
	sess.UpdatedAt = now

	rec := &models.ProfileRecord{
		RecordID:  e.newID(),
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Fields:    sess.Profile.Clone(),
		CreatedAt: now,
	}
	if err := e.store.RecordExchange(ctx, sess, []*models.Message{userMsg, final}, rec); err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	log.Info().
		Str("sessionId", sess.SessionID).
		Int("exchanges", sess.MessageCount).
		Msg("Session completed")

	return &AnswerResult{
		Reply:             reply,
		IsComplete:        true,
		Profile:           sess.Profile.Clone(),
		CompletionMessage: schema.CompletionAnimation,
	}, nil
}

func (e *Engine) recordNextPrompt(ctx context.Context, sess *models.Session, userMsg *models.Message, out *extract.Outcome, merged profile.MergeResult) (*AnswerResult, error) {
	next, _ := schema.NextMissing(sess.Profile)
	reply := out.Reply
	if reply == "" {
		reply = next.Prompt
	}

	meta := out.Meta
	prompt := &models.Message{
		MessageID:       e.newID(),
		SessionID:       sess.SessionID,
		Role:            models.RoleAssistant,
		Content:         reply,
		CreatedAt:       e.now().UTC(),
		ExtractedFields: extractedProfile(merged, sess.Profile),
		ProviderMeta:    &meta,
	}

	sess.MessageCount++
	sess.UpdatedAt = e.now().UTC()
	if err := e.store.RecordExchange(ctx, sess, []*models.Message{userMsg, prompt}, nil); err != nil {
		return nil, fmt.Errorf("record exchange: %w", err)
	}

	log.Debug().
		Str("sessionId", sess.SessionID).
		Strs("newFields", merged.NewlySet).
		Str("nextField", next.Key).
		Msg("Exchange recorded")

	return &AnswerResult{Reply: reply}, nil
}

// Get returns the full session state and message history.
func (e *Engine) Get(ctx context.Context, sessionID string) (*View, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &View{Session: sess, Messages: msgs}, nil
}

// Abandon moves an in-progress session to the abandoned terminal state.
// Inactivity detection is the caller's concern; the engine only exposes the
// transition.
func (e *Engine) Abandon(ctx context.Context, sessionID string) error {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrInvalidState, sess.Status)
	}

	sess.Status = models.SessionStatusAbandoned
	sess.UpdatedAt = e.now().UTC()
	if err := e.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("abandon session: %w", err)
	}

	log.Info().Str("sessionId", sessionID).Msg("Session abandoned")
	return nil
}

// extractedProfile returns the newly merged values for message audit, or nil
// when this exchange set nothing.
func extractedProfile(merged profile.MergeResult, p models.Profile) models.Profile {
	if len(merged.NewlySet) == 0 {
		return nil
	}
	out := make(models.Profile, len(merged.NewlySet))
	for _, k := range merged.NewlySet {
		out[k] = p[k]
	}
	return out
}
