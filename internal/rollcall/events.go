package rollcall

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rollcall/internal/derive"
	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/record"
	"rollcall/internal/ref"
)

// FindEvent looks up an event by slug, optionally restricted to a host.
// A lookup that finds nothing is retried per Options before returning
// ErrNotFound, since freshly published events may not be indexed yet.
// When several records match, the most recently created one wins.
func (s *Service) FindEvent(ctx context.Context, slug, host string) (model.EventRecord, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return model.EventRecord{}, fmt.Errorf("empty event code: %w", ErrNotFound)
	}

	recs, err := s.queryWithRetry(ctx, "event "+slug, model.EventsBySlug(slug, host))
	if err != nil {
		return model.EventRecord{}, err
	}

	events := derive.LatestEvents(record.DecodeEvents(recs))
	// Several hosts may share a slug; prefer the newest overall.
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt > events[j].CreatedAt })
	if len(events) > 1 && host == "" {
		appLog.Warn("event code matches several hosts", "slug", slug, "hosts", len(events))
	}
	return events[0], nil
}

// HostEvents lists an organizer's events, newest start first.
func (s *Service) HostEvents(ctx context.Context, host string) ([]model.EventRecord, error) {
	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, model.Filter{
		Kinds:   []int{model.EventKind},
		Authors: []string{host},
		Limit:   50,
	})
	if err != nil {
		return nil, err
	}
	events := derive.LatestEvents(record.DecodeEvents(recs))
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartTime > events[j].StartTime })
	return events, nil
}

// EventCheckIns returns every check-in referencing ev, most recent first.
// Duplicates are kept; see derive.UniqueCheckIns.
func (s *Service) EventCheckIns(ctx context.Context, ev model.EventRecord) ([]model.CheckInRecord, error) {
	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, model.CheckInsByRef(ref.BuildFor(ev)))
	if err != nil {
		return nil, err
	}
	checkIns := record.DecodeCheckIns(recs)
	derive.SortCheckInsRecent(checkIns)
	return checkIns, nil
}

// HasCheckedIn reports whether attendee already published a check-in for ev.
func (s *Service) HasCheckedIn(ctx context.Context, ev model.EventRecord, attendee string) (bool, error) {
	f := model.CheckInsByRef(ref.BuildFor(ev))
	f.Authors = []string{attendee}
	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, f)
	if err != nil {
		return false, err
	}
	return derive.HasCheckedIn(record.DecodeCheckIns(recs), attendee), nil
}

// Analytics summarizes attendance of ev against expected attendees.
func (s *Service) Analytics(ctx context.Context, ev model.EventRecord, expected int) (derive.Analytics, []model.CheckInRecord, error) {
	checkIns, err := s.EventCheckIns(ctx, ev)
	if err != nil {
		return derive.Analytics{}, nil, err
	}
	return derive.Summarize(ev, checkIns, expected, s.now().Unix()), checkIns, nil
}
