package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pouncehq/onboard/pkg/models"
)

func TestFieldsOrderAndRequirements(t *testing.T) {
	fs := Fields()
	require.Len(t, fs, 6)

	keys := make([]string, len(fs))
	for i, f := range fs {
		keys[i] = f.Key
	}
	assert.Equal(t, []string{
		FieldName, FieldRole, FieldExperienceLevel,
		FieldLocation, FieldStartupStage, FieldExtraPreferences,
	}, keys)

	for _, f := range fs[:5] {
		assert.True(t, f.Required, "%s must be required", f.Key)
	}
	assert.False(t, fs[5].Required, "extra_preferences is optional")
}

func TestFirstIsName(t *testing.T) {
	assert.Equal(t, FieldName, First().Key)
	assert.NotEmpty(t, First().Prompt)
}

func TestLookup(t *testing.T) {
	f, ok := Lookup(FieldStartupStage)
	require.True(t, ok)
	assert.Equal(t, []string{"Early", "Growth", "Late", "Unicorn"}, f.AllowedValues)

	_, ok = Lookup("favorite_color")
	assert.False(t, ok)
}

func TestNextMissing(t *testing.T) {
	tests := []struct {
		name    string
		profile models.Profile
		want    string
		missing bool
	}{
		{"empty profile", models.Profile{}, FieldName, true},
		{"name set", models.Profile{FieldName: "Ann"}, FieldRole, true},
		{
			"gap in the middle",
			models.Profile{FieldName: "Ann", FieldRole: "PM", FieldLocation: "Remote"},
			FieldExperienceLevel, true,
		},
		{
			"all required set, optional absent",
			models.Profile{
				FieldName: "Ann", FieldRole: "PM", FieldExperienceLevel: "Senior",
				FieldLocation: "Remote", FieldStartupStage: "Early",
			},
			"", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, missing := NextMissing(tt.profile)
			assert.Equal(t, tt.missing, missing)
			if tt.missing {
				assert.Equal(t, tt.want, f.Key)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  bool
	}{
		{FieldName, "Ann", true},
		{FieldName, "   ", false},
		{FieldExperienceLevel, "Senior", true},
		{FieldExperienceLevel, "senior", true},
		{FieldExperienceLevel, "Principal", false},
		{FieldStartupStage, "unicorn", true},
		{FieldStartupStage, "Seed", false},
		{FieldLocation, "Remote", true},
		{"favorite_color", "blue", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Validate(tt.key, tt.value), "%s=%q", tt.key, tt.value)
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "Senior", Canonical(FieldExperienceLevel, "senior"))
	assert.Equal(t, "Unicorn", Canonical(FieldStartupStage, " UNICORN "))
	assert.Equal(t, "Remote", Canonical(FieldLocation, "  Remote  "))
	assert.Equal(t, "whatever", Canonical("favorite_color", "whatever"))
}

func TestFieldsDescription(t *testing.T) {
	desc := FieldsDescription()
	for _, f := range Fields() {
		assert.Contains(t, desc, f.Key)
	}
	assert.Contains(t, desc, "Allowed values: Early, Growth, Late, Unicorn")
	assert.False(t, strings.HasSuffix(desc, "\n"))
}
