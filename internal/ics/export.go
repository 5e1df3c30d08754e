package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"rollcall/internal/model"
)

// ExportEvents renders events as a VCALENDAR with one VEVENT each, UID
// "<slug>@<host>". Events without a start time are left out; a missing
// end is rendered as a one hour event.
func ExportEvents(events []model.EventRecord, prodID string) string {
	cal := ical.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		if ev.StartTime == 0 {
			continue
		}
		start := time.Unix(ev.StartTime, 0).UTC()
		end := start.Add(time.Hour)
		if ev.EndTime > ev.StartTime {
			end = time.Unix(ev.EndTime, 0).UTC()
		}

		ve := cal.AddEvent(ev.Slug + "@" + ev.HostPubKey)
		ve.SetDtStampTime(time.Unix(ev.CreatedAt, 0).UTC())
		ve.SetStartAt(start)
		ve.SetEndAt(end)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.WebsiteURL != "" {
			ve.SetURL(ev.WebsiteURL)
		}
		if len(ev.Topics) > 0 {
			ve.AddProperty("CATEGORIES", strings.Join(ev.Topics, ","))
		}
	}
	return cal.Serialize()
}
