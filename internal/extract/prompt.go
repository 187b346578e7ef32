package extract

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pouncehq/onboard/internal/schema"
)

var (
	systemPromptOnce sync.Once
	systemPromptText string
)

// systemPrompt returns the shared extraction prompt. The schema is immutable,
// so the prompt is built once.
func systemPrompt() string {
	systemPromptOnce.Do(func() {
		systemPromptText = buildSystemPrompt()
	})
	return systemPromptText
}

func buildSystemPrompt() string {
	p := schema.DefaultPersona
	rules := make([]string, len(p.Rules))
	for i, r := range p.Rules {
		rules[i] = "- " + r
	}

	return fmt.Sprintf(`You are an onboarding assistant for a job platform helping job seekers find startup roles.

## YOUR PERSONALITY
- Always speak as %q (never "I" or "me")
- Tone: %s
- Use words like: %s
- Keep messages to %s
- Rules:
%s

## FIELDS TO COLLECT (in order)
%s

## HOW TO TRACK PROGRESS
- Look at the conversation history to see what's already been extracted
- Only ask for fields that haven't been extracted yet
- NEVER ask for information already collected in previous turns

## YOUR TASK EACH TURN
1. Extract any relevant data from the user's LATEST message
2. Acknowledge their answer briefly (be warm, not robotic)
3. Ask for the next missing field naturally
4. If user provided multiple pieces of info, extract ALL of them
5. When ALL fields are collected, set "is_complete": true

## RESPONSE FORMAT
You MUST respond with valid JSON only (no markdown, no code blocks):
{
    "extracted": {
        "field_name": "value"
    },
    "response": "Your acknowledgment + next question combined naturally",
    "is_complete": false
}

IMPORTANT:
- "extracted" should ONLY contain NEW data from the CURRENT message
- If nothing new to extract, use empty object: "extracted": {}
- Return ONLY the JSON object, nothing else

## FIELD VALIDATION
- name: Must be a real name, not gibberish or numbers
- experience_level: Normalize to one of: Entry-level, Junior, Mid-level, Senior, Lead
  (0-1 yrs = Entry-level, 1-2 = Junior, 3-5 = Mid-level, 5-8 = Senior, 8+ = Lead)
- startup_stage: Must be one of: Early, Growth, Late, Unicorn

## WHEN COMPLETE
When all fields are collected, respond with:
{
    "extracted": {},
    "response": %q,
    "is_complete": true
}`,
		p.Voice, p.Tone, strings.Join(p.StyleWords, ", "), p.MessageLength,
		strings.Join(rules, "\n"),
		schema.FieldsDescription(),
		schema.CompletionMessage,
	)
}

// knownFieldsNote renders the already-collected profile as an extra context
// line so providers do not re-ask for known fields.
func knownFieldsNote(known map[string]string) string {
	if len(known) == 0 {
		return ""
	}
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Already collected (do not ask again):")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, known[k])
	}
	return b.String()
}
