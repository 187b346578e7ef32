// Package schema holds the static onboarding field definitions: which fields
// get collected, in what order, and how answers are validated. The schema is
// immutable and safe to share across goroutines.
package schema

import (
	"fmt"
	"strings"

	"github.com/pouncehq/onboard/pkg/models"
)

// Field keys, in collection order.
const (
	FieldName             = "name"
	FieldRole             = "role"
	FieldExperienceLevel  = "experience_level"
	FieldLocation         = "location"
	FieldStartupStage     = "startup_stage"
	FieldExtraPreferences = "extra_preferences"
)

// Field describes a single profile field to collect.
type Field struct {
	Key           string
	Description   string
	Prompt        string   // static question, used when the model supplies no reply
	Required      bool
	AllowedValues []string // closed set; empty means free text
	Examples      []string // feed the provider system prompt
}

// fields defines the strict total order in which missing required fields are
// asked for.
var fields = []Field{
	{
		Key:         FieldName,
		Description: "User's full name",
		Prompt:      "Hey, what do we call you?",
		Required:    true,
		Examples:    []string{"Rahul", "Sarah Chen", "John Doe"},
	},
	{
		Key:         FieldRole,
		Description: "Target job role(s) the user is looking for",
		Prompt:      "Nice! What kind of role are you hunting for?",
		Required:    true,
		Examples:    []string{"Software Engineer", "Backend Developer", "Product Manager", "UX Designer", "Data Scientist"},
	},
	{
		Key:           FieldExperienceLevel,
		Description:   "Years of experience or seniority level",
		Prompt:        "Got it. How many years of experience are you bringing?",
		Required:      true,
		AllowedValues: []string{"Entry-level", "Junior", "Mid-level", "Senior", "Lead"},
	},
	{
		Key:         FieldLocation,
		Description: "Where the user wants to work (city, state, or remote)",
		Prompt:      "Cool. Where do you want to work? City or remote both work.",
		Required:    true,
		Examples:    []string{"San Francisco", "New York", "Remote", "Bangalore", "London"},
	},
	{
		Key:           FieldStartupStage,
		Description:   "Preferred stage of startup",
		Prompt:        "What stage of startup sounds good: Early, Growth, Late, or Unicorn?",
		Required:      true,
		AllowedValues: []string{"Early", "Growth", "Late", "Unicorn"},
	},
	{
		Key:         FieldExtraPreferences,
		Description: "Any additional preferences like industry, benefits, company culture, specific companies",
		Prompt:      "Anything else we should know? Industry, culture, dream companies?",
		Required:    false,
	},
}

var fieldIndex = func() map[string]*Field {
	idx := make(map[string]*Field, len(fields))
	for i := range fields {
		idx[fields[i].Key] = &fields[i]
	}
	return idx
}()

// Fields returns all field definitions in collection order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Lookup returns the field definition for key, if it exists.
func Lookup(key string) (Field, bool) {
	f, ok := fieldIndex[key]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// First returns the first field in collection order. Its prompt is the only
// hardcoded opening question of a session.
func First() Field {
	return fields[0]
}

// NextMissing returns the lowest-ordered required field absent from the
// profile, or false when every required field is present.
func NextMissing(p models.Profile) (Field, bool) {
	for _, f := range fields {
		if !f.Required {
			continue
		}
		if !p.Has(f.Key) {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks a candidate value for a field key. Closed-set fields accept
// only their allowed values; free-text fields accept any non-empty string.
// Unknown keys never validate.
func Validate(key, value string) bool {
	f, ok := fieldIndex[key]
	if !ok {
		return false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	if len(f.AllowedValues) == 0 {
		return true
	}
	for _, v := range f.AllowedValues {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Canonical maps a value to its canonical casing for closed-set fields, so
// "senior" stores as "Senior". Free-text values pass through trimmed.
func Canonical(key, value string) string {
	value = strings.TrimSpace(value)
	f, ok := fieldIndex[key]
	if !ok || len(f.AllowedValues) == 0 {
		return value
	}
	for _, v := range f.AllowedValues {
		if strings.EqualFold(v, value) {
			return v
		}
	}
	return value
}

// FieldsDescription renders the field list as a prompt block for the
// extraction providers.
func FieldsDescription() string {
	var b strings.Builder
	for _, f := range fields {
		req := "Required"
		if !f.Required {
			req = "Optional"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", f.Key, req, f.Description)
		if len(f.Examples) > 0 {
			fmt.Fprintf(&b, "  Examples: %s\n", strings.Join(f.Examples, ", "))
		}
		if len(f.AllowedValues) > 0 {
			fmt.Fprintf(&b, "  Allowed values: %s\n", strings.Join(f.AllowedValues, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
