package model

// Filter is a relay query filter. Tags keys are tag names without the
// leading '#', e.g. "a", "d".
type Filter struct {
	IDs     []string            `json:"ids,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Tags    map[string][]string `json:"tags,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// WithTag returns a copy of f that also matches tag name against values.
func (f Filter) WithTag(name string, values ...string) Filter {
	tags := make(map[string][]string, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = v
	}
	tags[name] = values
	f.Tags = tags
	return f
}

// EventsBySlug matches event records with the given d-tag, optionally
// restricted to one host.
func EventsBySlug(slug, host string) Filter {
	f := Filter{Kinds: []int{EventKind}}.WithTag("d", slug)
	if host != "" {
		f.Authors = []string{host}
	}
	return f
}

// CheckInsByRef matches check-ins carrying the exact composite reference.
func CheckInsByRef(ref string) Filter {
	return Filter{Kinds: []int{CheckInKind}}.WithTag("a", ref)
}
