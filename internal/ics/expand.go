package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "rollcall/internal/log"
	"rollcall/internal/model"
)

const defaultMaxPerEvent = 500

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	RangeStart time.Time
	RangeEnd   time.Time
	// MaxPerEvent caps the instances produced by one recurring event.
	MaxPerEvent int
}

// ExpandImports expands parsed events into one calendar import record per
// instance overlapping the configured range. Overrides (RECURRENCE-ID)
// replace the instance they point at; EXDATEs remove instances.
func ExpandImports(events []ParsedEvent, cfg ExpandConfig) ([]model.CalendarImportRecord, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: range end before range start")
	}
	if cfg.MaxPerEvent <= 0 {
		cfg.MaxPerEvent = defaultMaxPerEvent
	}

	base := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := base[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		base[ev.UID] = append(base[ev.UID], ev)
	}

	var out []model.CalendarImportRecord
	for _, uid := range uids {
		for _, ev := range base[uid] {
			out = append(out, expandEvent(ev, overrides[uid], cfg)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.CalendarImportRecord {
	if ev.RRule == "" {
		if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			return nil
		}
		return []model.CalendarImportRecord{instance(ev, overrides, ev.Start, ev.End)}
	}

	opt, err := rrule.StrToROption(ev.RRule)
	if err != nil {
		appLog.Warn("invalid RRULE", "uid", ev.UID, "rrule", ev.RRule, "cause", err)
		return nil
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Warn("invalid RRULE", "uid", ev.UID, "rrule", ev.RRule, "cause", err)
		return nil
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(cfg.RangeStart.In(loc).Add(-dur), cfg.RangeEnd.In(loc), true)
	if len(starts) > cfg.MaxPerEvent {
		appLog.Warn("recurrence truncated", "uid", ev.UID, "cap", cfg.MaxPerEvent)
		starts = starts[:cfg.MaxPerEvent]
	}

	out := make([]model.CalendarImportRecord, 0, len(starts))
	for _, start := range starts {
		out = append(out, instance(ev, overrides, start, start.Add(dur)))
	}
	return out
}

// instance builds the record for one occurrence of ev starting at start,
// applying a matching override. The d-tag stays keyed by the original
// start so a moved instance keeps its identity.
func instance(ev ParsedEvent, overrides []ParsedEvent, start, end time.Time) model.CalendarImportRecord {
	key := start.UTC().Format("20060102T150405Z")
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			ev, start, end = ov, ov.Start, ov.End
			break
		}
	}

	kind := model.CalendarTimeKind
	if ev.AllDay {
		kind = model.CalendarDateKind
	}
	dTag := ev.UID + "@" + key

	rec := model.CalendarImportRecord{
		ID:          recordID(ev.Source.ID, dTag),
		OwnerPubKey: ev.Source.Owner,
		Kind:        kind,
		DTag:        dTag,
		Title:       ev.Summary,
		Description: ev.Description,
		StartTime:   start.Unix(),
		EndTime:     end.Unix(),
		Location:    ev.Location,
		Organizer:   ev.Organizer,
		WebsiteURL:  ev.URL,
		Topics:      ev.Categories,
	}
	if !ev.Stamp.IsZero() {
		rec.CreatedAt = ev.Stamp.Unix()
	}
	if len(ev.Categories) > 0 {
		rec.Category = ev.Categories[0]
	}
	if rec.Organizer == "" {
		rec.Organizer = ev.Source.Name
	}
	return rec
}

// recordID derives a stable 64-hex identifier so feed entries can be
// addressed like relay records.
func recordID(feedID, dTag string) string {
	sum := sha256.Sum256([]byte(feedID + "|" + dTag))
	return hex.EncodeToString(sum[:])
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
