package derive

import (
	"strings"
	"time"

	"rollcall/internal/model"
)

// Date range filter values.
const (
	RangeToday     = "today"
	RangeTomorrow  = "tomorrow"
	RangeThisWeek  = "this-week"
	RangeThisMonth = "this-month"
	RangeNextMonth = "next-month"
)

// Filters narrows an event listing. Zero values match everything.
type Filters struct {
	Search    string
	Category  string
	Location  string
	Topics    []string
	DateRange string
	// WeekStart is the first day of a "this-week" range.
	WeekStart time.Weekday
}

// FilterEvents returns the events matching f, in order. Date ranges are
// evaluated in loc relative to now.
func FilterEvents(events []model.EventRecord, f Filters, now time.Time, loc *time.Location) []model.EventRecord {
	if loc == nil {
		loc = time.UTC
	}
	from, to, ranged := dateWindow(f, now.In(loc))

	search := strings.ToLower(strings.TrimSpace(f.Search))
	location := strings.ToLower(strings.TrimSpace(f.Location))

	out := make([]model.EventRecord, 0, len(events))
	for _, ev := range events {
		if search != "" && !strings.Contains(searchText(ev), search) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(ev.Category, f.Category) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(ev.Location), location) {
			continue
		}
		if !hasAllTopics(ev.Topics, f.Topics) {
			continue
		}
		if ranged && (ev.StartTime < from.Unix() || ev.StartTime >= to.Unix()) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func searchText(ev model.EventRecord) string {
	return strings.ToLower(ev.Title + " " + ev.Description + " " + strings.Join(ev.Topics, " "))
}

func hasAllTopics(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ValidDateRange reports whether s is empty or one of the known ranges.
func ValidDateRange(s string) bool {
	switch s {
	case "", RangeToday, RangeTomorrow, RangeThisWeek, RangeThisMonth, RangeNextMonth:
		return true
	}
	return false
}

// dateWindow returns the half-open [from, to) window for f.DateRange.
func dateWindow(f Filters, now time.Time) (time.Time, time.Time, bool) {
	today := startOfDay(now)
	switch f.DateRange {
	case RangeToday:
		return today, today.AddDate(0, 0, 1), true
	case RangeTomorrow:
		return today.AddDate(0, 0, 1), today.AddDate(0, 0, 2), true
	case RangeThisWeek:
		offset := (int(today.Weekday()) - int(f.WeekStart) + 7) % 7
		start := today.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), true
	case RangeThisMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0), true
	case RangeNextMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
		return first, first.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
