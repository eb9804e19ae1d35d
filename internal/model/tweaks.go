package model

// TweakCheck is the result of one read-only system-state diagnostic: whether
// a named Windows setting known to affect game performance is currently
// enabled. Checks never mutate anything they inspect.
type TweakCheck struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TweakReport is the full set of diagnostic checks taken together, attached
// to a Snapshot's informational fields.
type TweakReport struct {
	Checks []TweakCheck `json:"checks"`
}

// Find returns the check with the given name, if present.
func (r TweakReport) Find(name string) (TweakCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return TweakCheck{}, false
}
