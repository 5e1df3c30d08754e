package ref

import "rollcall/internal/model"

// Attendance pairs an event with the check-ins that reference it.
type Attendance struct {
	Event    model.EventRecord
	CheckIns []model.CheckInRecord
}

// GroupByEvent buckets check-ins by their composite reference string.
// Check-ins without a valid reference are left out.
func GroupByEvent(checkIns []model.CheckInRecord) map[string][]model.CheckInRecord {
	out := make(map[string][]model.CheckInRecord)
	for _, ci := range checkIns {
		r, err := Resolve(ci)
		if err != nil {
			continue
		}
		key := String(r)
		out[key] = append(out[key], ci)
	}
	return out
}

// Attach associates check-ins with their parent events by (host, slug),
// preserving the order of events. Check-ins whose reference is missing,
// malformed or points at none of the events are returned as orphans.
func Attach(events []model.EventRecord, checkIns []model.CheckInRecord) ([]Attendance, []model.CheckInRecord) {
	byRef := make(map[string]int, len(events))
	out := make([]Attendance, 0, len(events))
	for _, ev := range events {
		key := BuildFor(ev)
		if _, dup := byRef[key]; dup {
			continue
		}
		byRef[key] = len(out)
		out = append(out, Attendance{Event: ev, CheckIns: []model.CheckInRecord{}})
	}

	var orphans []model.CheckInRecord
	for _, ci := range checkIns {
		r, err := Resolve(ci)
		if err != nil {
			orphans = append(orphans, ci)
			continue
		}
		i, ok := byRef[String(r)]
		if !ok {
			orphans = append(orphans, ci)
			continue
		}
		out[i].CheckIns = append(out[i].CheckIns, ci)
	}
	return out, orphans
}
