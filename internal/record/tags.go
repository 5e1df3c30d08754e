package record

import (
	"strconv"
	"strings"
)

// Tag keys used by RollCall records.
const (
	TagSlug        = "d"
	TagTitle       = "title"
	TagName        = "name"
	TagDescription = "description"
	TagStart       = "start"
	TagEnd         = "end"
	TagLocation    = "location"
	TagOrganizer   = "organizer"
	TagImage       = "image"
	TagWebsite     = "website"
	TagCategory    = "category"
	TagCredential  = "credential"
	TagReqFields   = "req_fields"
	TagEventRef    = "a"
	TagEmail       = "email"
	TagTopic       = "t"
	TagImportedID  = "flockstr_id"
	TagEventLink   = "e"
)

// rule says how repeated occurrences of a tag key are treated.
type rule int

const (
	// single keys take the first occurrence, even if it carries no value.
	single rule = iota
	// multi keys collect every non-empty value in order.
	multi
)

var (
	eventRules = map[string]rule{
		TagSlug: single, TagTitle: single, TagDescription: single,
		TagStart: single, TagEnd: single, TagLocation: single,
		TagOrganizer: single, TagImage: single, TagWebsite: single,
		TagCategory: single, TagCredential: single, TagReqFields: single,
		TagImportedID: single, TagTopic: multi,
	}
	checkInRules = map[string]rule{
		TagEventRef: single, TagStart: single, TagName: single,
		TagEmail: single, TagLocation: single,
	}
	calendarRules = map[string]rule{
		TagSlug: single, TagTitle: single, TagName: single,
		TagDescription: single, TagStart: single, TagEnd: single,
		TagLocation: single, TagOrganizer: single, TagImage: single,
		TagWebsite: single, TagCategory: single, TagTopic: multi,
	}
)

// tagSet is the decoded view of a record's tags under a rule table.
// Keys outside the table are ignored.
type tagSet struct {
	one  map[string]string
	many map[string][]string
}

func index(tags [][]string, rules map[string]rule) tagSet {
	ts := tagSet{
		one:  make(map[string]string),
		many: make(map[string][]string),
	}
	for _, t := range tags {
		if len(t) == 0 {
			continue
		}
		key := t[0]
		r, ok := rules[key]
		if !ok {
			continue
		}
		val := ""
		if len(t) > 1 {
			val = t[1]
		}
		switch r {
		case single:
			if _, seen := ts.one[key]; !seen {
				ts.one[key] = val
			}
		case multi:
			if val != "" {
				ts.many[key] = append(ts.many[key], val)
			}
		}
	}
	return ts
}

func (ts tagSet) get(key string) string {
	return ts.one[key]
}

func (ts tagSet) all(key string) []string {
	out := ts.many[key]
	if out == nil {
		return []string{}
	}
	return out
}

// getOr returns the tag value, or def when the tag is absent or empty.
func (ts tagSet) getOr(key, def string) string {
	if v := ts.one[key]; v != "" {
		return v
	}
	return def
}

// parseInt parses the leading integer of s, tolerating surrounding
// whitespace and trailing garbage ("1700000000abc" -> 1700000000).
// It reports false when s has no leading digits or overflows.
func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// intOr parses s with parseInt, falling back to def.
func intOr(s string, def int64) int64 {
	if n, ok := parseInt(s); ok {
		return n
	}
	return def
}

// splitList splits a comma-joined tag value, dropping blanks.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
