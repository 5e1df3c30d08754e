package derive

import (
	"sort"
	"strconv"

	"rollcall/internal/model"
	"rollcall/internal/ref"
)

// CalendarKey is the duplicate key of a calendar record: its d-tag when
// present, otherwise owner, start and title together.
func CalendarKey(r model.CalendarImportRecord) string {
	if r.DTag != "" {
		return "d:" + r.DTag
	}
	return r.OwnerPubKey + "|" + strconv.FormatInt(r.StartTime, 10) + "|" + r.Title
}

// DedupeCalendarImports keeps the first record seen for each CalendarKey,
// preserving order.
func DedupeCalendarImports(records []model.CalendarImportRecord) []model.CalendarImportRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]model.CalendarImportRecord, 0, len(records))
	for _, r := range records {
		key := CalendarKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UpcomingCalendar keeps records starting strictly after now, removes
// duplicates and sorts by start time.
func UpcomingCalendar(records []model.CalendarImportRecord, now int64) []model.CalendarImportRecord {
	upcoming := make([]model.CalendarImportRecord, 0, len(records))
	for _, r := range records {
		if r.StartTime > now {
			upcoming = append(upcoming, r)
		}
	}
	out := DedupeCalendarImports(upcoming)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// HasCheckedIn reports whether any check-in was published by attendee.
func HasCheckedIn(checkIns []model.CheckInRecord, attendee string) bool {
	for _, ci := range checkIns {
		if ci.AttendeePubKey == attendee {
			return true
		}
	}
	return false
}

// LatestEvents keeps one record per (host, slug): the one with the greatest
// CreatedAt, the first seen on ties. Output keeps first-seen positions.
func LatestEvents(events []model.EventRecord) []model.EventRecord {
	pos := make(map[string]int, len(events))
	out := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		key := ref.BuildFor(ev)
		i, ok := pos[key]
		if !ok {
			pos[key] = len(out)
			out = append(out, ev)
			continue
		}
		if ev.CreatedAt > out[i].CreatedAt {
			out[i] = ev
		}
	}
	return out
}

// UniqueCheckIns keeps one check-in per (attendee, event reference): the
// earliest CheckInTime, the first seen on ties. Output keeps first-seen
// positions. Check-ins are keyed by their raw reference so unparsable
// references are still grouped consistently.
func UniqueCheckIns(checkIns []model.CheckInRecord) []model.CheckInRecord {
	pos := make(map[string]int, len(checkIns))
	out := make([]model.CheckInRecord, 0, len(checkIns))
	for _, ci := range checkIns {
		key := ci.AttendeePubKey + "|" + ci.RawRef
		i, ok := pos[key]
		if !ok {
			pos[key] = len(out)
			out = append(out, ci)
			continue
		}
		if ci.CheckInTime < out[i].CheckInTime {
			out[i] = ci
		}
	}
	return out
}

// SortCheckInsRecent orders check-ins most recent first, in place.
func SortCheckInsRecent(checkIns []model.CheckInRecord) {
	sort.SliceStable(checkIns, func(i, j int) bool {
		return checkIns[i].CheckInTime > checkIns[j].CheckInTime
	})
}
