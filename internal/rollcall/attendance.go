package rollcall

import (
	"context"

	"rollcall/internal/derive"
	"rollcall/internal/model"
	"rollcall/internal/record"
	"rollcall/internal/ref"
)

// HistoryEntry is one of an attendee's check-ins with its parent event,
// if the event could be found.
type HistoryEntry struct {
	CheckIn model.CheckInRecord `json:"check_in"`
	Event   *model.EventRecord  `json:"event,omitempty"`
}

// AttendeeHistory lists an attendee's check-ins (up to 100), most recent
// first, each joined with its parent event. When days is positive only
// check-ins from the last days days are kept.
func (s *Service) AttendeeHistory(ctx context.Context, attendee string, days int) ([]HistoryEntry, error) {
	if attendee == "" {
		return nil, ErrMissingAttendee
	}

	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, model.Filter{
		Kinds:   []int{model.CheckInKind},
		Authors: []string{attendee},
		Limit:   100,
	})
	if err != nil {
		return nil, err
	}
	checkIns := record.DecodeCheckIns(recs)
	if days > 0 {
		checkIns = derive.CheckInsSince(checkIns, days, s.now().Unix())
	}
	derive.SortCheckInsRecent(checkIns)

	events, err := s.eventsFor(ctx, checkIns)
	if err != nil {
		return nil, err
	}

	attended, _ := ref.Attach(events, checkIns)
	parent := make(map[string]*model.EventRecord, len(checkIns))
	for i := range attended {
		for _, ci := range attended[i].CheckIns {
			parent[ci.ID] = &attended[i].Event
		}
	}

	out := make([]HistoryEntry, 0, len(checkIns))
	for _, ci := range checkIns {
		out = append(out, HistoryEntry{CheckIn: ci, Event: parent[ci.ID]})
	}
	return out, nil
}

// eventsFor fetches the latest parent event of every reference in checkIns.
func (s *Service) eventsFor(ctx context.Context, checkIns []model.CheckInRecord) ([]model.EventRecord, error) {
	groups := ref.GroupByEvent(checkIns)
	if len(groups) == 0 {
		return nil, nil
	}

	filters := make([]model.Filter, 0, len(groups))
	for key := range groups {
		r, _ := ref.Parse(key)
		filters = append(filters, model.EventsBySlug(r.Slug, r.HostPubKey))
	}

	recs, err := s.queryWithin(ctx, s.opts.DetailsTimeout, filters...)
	if err != nil {
		return nil, err
	}
	return derive.LatestEvents(record.DecodeEvents(recs)), nil
}
