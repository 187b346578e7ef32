package extract

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// DefaultHistoryTokenBudget bounds the conversation context sent to
// providers. Onboarding transcripts are short, but a user who rambles for
// many turns must not blow past provider context limits.
const DefaultHistoryTokenBudget = 4000

// Window bounds conversation history by token count, keeping the most recent
// messages.
type Window struct {
	codec  tokenizer.Codec
	budget int
}

// NewWindow creates a Window with the given token budget (<=0 uses the
// default). Token counts use the cl100k encoding; if the tokenizer is
// unavailable a bytes/4 estimate is used instead.
func NewWindow(budget int) *Window {
	if budget <= 0 {
		budget = DefaultHistoryTokenBudget
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, estimating token counts")
		codec = nil
	}
	return &Window{codec: codec, budget: budget}
}

// Bound returns the longest suffix of history that fits the token budget.
// The last two messages (the current prompt/answer exchange) are always kept
// so one oversized answer cannot empty the context.
func (w *Window) Bound(history []ChatMessage) []ChatMessage {
	if len(history) <= 2 {
		return history
	}

	total := 0
	cut := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += w.count(history[i].Content) + 4 // small per-message overhead
		if total > w.budget && i < len(history)-2 {
			break
		}
		cut = i
	}
	if cut == 0 {
		return history
	}
	return history[cut:]
}

func (w *Window) count(text string) int {
	if w.codec != nil {
		if n, err := w.codec.Count(text); err == nil {
			return n
		}
	}
	return len(text)/4 + 1
}
