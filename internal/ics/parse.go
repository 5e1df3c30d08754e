// Package ics turns subscribed ICS feeds into importable calendar records
// and renders events as iCalendar for "add to calendar" links.
package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "rollcall/internal/log"
)

// ParsedEvent is one VEVENT before recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID     string
	Seq     int
	Stamp   time.Time
	Summary string

	Description string
	Location    string
	Organizer   string
	URL         string
	Categories  []string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// IsOverride reports whether ev replaces one instance of a recurring event.
func (ev ParsedEvent) IsOverride() bool {
	return ev.RecurrenceID != nil
}

// ParseICS parses a feed body. VEVENTs that cannot be parsed are logged
// and skipped.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []ParsedEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Warn("skipping vevent", "id", src.ID, "cause", err)
			continue
		}
		out = append(out, ev)
	}
	appLog.Debug("ics parsed", "id", src.ID, "events", len(out))
	return out, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	ev := ParsedEvent{Source: src}

	ev.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertySequence)); err == nil {
		ev.Seq = n
	}
	if t, err := parseICSTime(propValue(ve, "DTSTAMP")); err == nil {
		ev.Stamp = t
	}

	ev.Summary = propValue(ve, ical.ComponentPropertySummary)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.Organizer = organizerName(ve)
	ev.URL = propValue(ve, "URL")
	for _, p := range ve.GetProperties("CATEGORIES") {
		ev.Categories = append(ev.Categories, splitCSV(p.Value)...)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, err
	}
	ev.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		ev.End = end
	} else {
		ev.End = start
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		ev.AllDay = !strings.Contains(p.Value, "T") || paramIs(p.ICalParameters, "VALUE", "DATE")
	}
	if ev.AllDay && !ev.End.After(ev.Start) {
		ev.End = ev.Start.AddDate(0, 0, 1)
	}

	ev.RRule = propValue(ve, ical.ComponentPropertyRrule)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, v := range splitCSV(p.Value) {
			if t, err := parseICSTimeIn(v, start.Location()); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if v := propValue(ve, "RECURRENCE-ID"); v != "" {
		if t, err := parseICSTimeIn(v, start.Location()); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

// organizerName prefers the CN parameter over the mailto address.
func organizerName(ve *ical.VEvent) string {
	p := ve.GetProperty(ical.ComponentPropertyOrganizer)
	if p == nil {
		return ""
	}
	if cn := p.ICalParameters["CN"]; len(cn) > 0 && cn[0] != "" {
		return cn[0]
	}
	v := p.Value
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	return v
}

func paramIs(params map[string][]string, key, want string) bool {
	vs := params[key]
	return len(vs) > 0 && strings.EqualFold(vs[0], want)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseICSTime(v string) (time.Time, error) {
	return parseICSTimeIn(v, time.UTC)
}

// parseICSTimeIn parses DATE, floating DATE-TIME (in loc) and UTC
// DATE-TIME values.
func parseICSTimeIn(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
