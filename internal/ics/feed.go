package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "rollcall/internal/log"
	"rollcall/internal/model"
)

// Feeds serves the entries of subscribed feeds as calendar import records.
// Expanded entries are reused until Refresh or until they are older than
// the configured TTL.
type Feeds struct {
	fetcher *Fetcher
	sources []Source
	horizon time.Duration
	ttl     time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	entries   []model.CalendarImportRecord
	fetchedAt time.Time
}

// NewFeeds returns Feeds over sources, expanding instances from now until
// now+horizon.
func NewFeeds(fetcher *Fetcher, sources []Source, horizon, ttl time.Duration) *Feeds {
	return &Feeds{
		fetcher: fetcher,
		sources: sources,
		horizon: horizon,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Entries returns the cached entries, refreshing them first when stale.
func (f *Feeds) Entries(ctx context.Context) ([]model.CalendarImportRecord, error) {
	f.mu.RLock()
	fresh := !f.fetchedAt.IsZero() && f.now().Sub(f.fetchedAt) < f.ttl
	entries := f.entries
	f.mu.RUnlock()
	if fresh {
		return entries, nil
	}
	return f.Refresh(ctx)
}

// Refresh fetches, parses and expands every feed. Feeds that fail are
// skipped; an error is returned only when every feed failed.
func (f *Feeds) Refresh(ctx context.Context) ([]model.CalendarImportRecord, error) {
	if len(f.sources) == 0 {
		return nil, nil
	}
	now := f.now()
	results, errs := f.fetcher.FetchAll(ctx, f.sources)
	if len(results) == 0 {
		return nil, errors.Join(errs...)
	}

	var parsed []ParsedEvent
	for _, res := range results {
		evs, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, evs...)
	}

	entries, err := ExpandImports(parsed, ExpandConfig{RangeStart: now, RangeEnd: now.Add(f.horizon)})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.entries = entries
	f.fetchedAt = now
	f.mu.Unlock()

	appLog.Info("ics feeds refreshed", "feeds", len(results), "failed", len(errs), "entries", len(entries))
	return entries, nil
}
