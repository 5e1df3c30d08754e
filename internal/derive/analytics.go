package derive

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"rollcall/internal/model"
)

// Analytics summarizes attendance for one event.
//
// Counts other than TotalRecords are computed over UniqueCheckIns, so a
// retried check-in from the same attendee is reported in Duplicates rather
// than counted twice.
type Analytics struct {
	Status       Status  `json:"status"`
	TotalRecords int     `json:"total_records"`
	CheckIns     int     `json:"check_ins"`
	Duplicates   int     `json:"duplicates"`
	Early        int     `json:"early"`
	OnTime       int     `json:"on_time"`
	Late         int     `json:"late"`
	Expected     int     `json:"expected"`
	Rate         float64 `json:"rate"`
}

// Summarize computes Analytics for ev at now.
func Summarize(ev model.EventRecord, checkIns []model.CheckInRecord, expected int, now int64) Analytics {
	unique := UniqueCheckIns(checkIns)
	a := Analytics{
		Status:       EventStatus(ev, now),
		TotalRecords: len(checkIns),
		CheckIns:     len(unique),
		Duplicates:   len(checkIns) - len(unique),
		Expected:     expected,
		Rate:         CheckInRate(len(unique), expected),
	}
	for _, ci := range unique {
		switch TimingBucket(ci.CheckInTime, ev.StartTime) {
		case TimingEarly:
			a.Early++
		case TimingOnTime:
			a.OnTime++
		case TimingLate:
			a.Late++
		}
	}
	return a
}

// DayCount is the number of unique check-ins on one local calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailyCounts buckets unique check-ins by local day for every day from
// from through to, inclusive, including days with no check-ins.
func DailyCounts(checkIns []model.CheckInRecord, from, to time.Time, loc *time.Location) ([]DayCount, error) {
	if loc == nil {
		loc = time.UTC
	}
	from = startOfDay(from.In(loc))
	to = startOfDay(to.In(loc))

	days, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: from,
		Until:   to,
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, ci := range UniqueCheckIns(checkIns) {
		day := time.Unix(ci.CheckInTime, 0).In(loc).Format(time.DateOnly)
		counts[day]++
	}

	out := make([]DayCount, 0)
	for _, d := range days.All() {
		key := d.Format(time.DateOnly)
		out = append(out, DayCount{Date: key, Count: counts[key]})
	}
	return out, nil
}

// CheckInsSince keeps check-ins at or after now minus the given number of days.
func CheckInsSince(checkIns []model.CheckInRecord, days int, now int64) []model.CheckInRecord {
	cutoff := now - int64(days)*86400
	out := make([]model.CheckInRecord, 0, len(checkIns))
	for _, ci := range checkIns {
		if ci.CheckInTime >= cutoff {
			out = append(out, ci)
		}
	}
	return out
}

// MissingRequired lists the labels of required check-in fields that are
// blank in values: Email and Name for the standard fields, then required
// custom fields by name.
func MissingRequired(ev model.EventRecord, values map[string]string) []string {
	blank := func(key string) bool { return strings.TrimSpace(values[key]) == "" }

	var missing []string
	if ev.RequiresField("email") && blank("email") {
		missing = append(missing, "Email")
	}
	if ev.RequiresField("name") && blank("name") {
		missing = append(missing, "Name")
	}
	for _, f := range ev.CustomFields {
		if f.Required && blank(f.Name) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
