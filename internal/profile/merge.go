// Package profile merges extracted field values into a session's partial
// profile and decides completion.
package profile

import (
	"github.com/pouncehq/onboard/internal/schema"
	"github.com/pouncehq/onboard/pkg/models"
)

// MergeResult classifies the keys of one extraction for observability.
// NewlySet and ReAsked are disjoint.
type MergeResult struct {
	NewlySet []string
	ReAsked  []string
}

// Merge applies extracted values to the profile in place.
//
// A key already present in the profile is classified as re-asked and the
// existing value is kept: the first answer wins, so a later noisy extraction
// cannot clobber a confirmed field. Keys unknown to the schema and values
// that fail validation are dropped. Merge is idempotent for a repeated
// identical extraction.
func Merge(p models.Profile, extracted map[string]string) MergeResult {
	var res MergeResult
	for _, f := range schema.Fields() {
		raw, ok := extracted[f.Key]
		if !ok {
			continue
		}
		if p.Has(f.Key) {
			res.ReAsked = append(res.ReAsked, f.Key)
			continue
		}
		if !schema.Validate(f.Key, raw) {
			continue
		}
		p[f.Key] = schema.Canonical(f.Key, raw)
		res.NewlySet = append(res.NewlySet, f.Key)
	}
	return res
}

// IsComplete reports whether every required field is present. Equivalent to
// schema.NextMissing returning no field.
func IsComplete(p models.Profile) bool {
	_, missing := schema.NextMissing(p)
	return !missing
}
