package models

// Profile is the partial mapping of field key to collected value. It grows
// monotonically over a session's lifetime; a field is never removed once set.
type Profile map[string]string

// Clone returns an independent copy. A nil profile clones to an empty one so
// callers can mutate the result without nil checks.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Has reports whether the field key carries a non-empty value.
func (p Profile) Has(key string) bool {
	v, ok := p[key]
	return ok && v != ""
}
