package rollcall

import (
	"context"
	"fmt"

	"rollcall/internal/derive"
	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/record"
)

// ImportedSlugPrefix prefixes the slug of every imported event.
const ImportedSlugPrefix = "imported-"

var importedTopics = []string{"imported", "flockstr-compatible"}

// CalendarImports lists upcoming third-party calendar records from relays
// and every registered source, deduplicated and sorted by start time.
// A failing source is logged and skipped.
func (s *Service) CalendarImports(ctx context.Context) ([]model.CalendarImportRecord, error) {
	recs, err := s.queryWithin(ctx, s.opts.CalendarTimeout, model.Filter{
		Kinds: model.CalendarKinds,
		Limit: 100,
	})
	if err != nil {
		return nil, err
	}
	all := record.DecodeCalendarImports(recs)

	for _, src := range s.sources {
		entries, err := src.Entries(ctx)
		if err != nil {
			appLog.Error("calendar source failed", err)
			continue
		}
		all = append(all, entries...)
	}
	return derive.UpcomingCalendar(all, s.now().Unix()), nil
}

// FindCalendarRecord looks up a calendar record by id, first among
// registered sources and then on relays.
func (s *Service) FindCalendarRecord(ctx context.Context, id string) (model.CalendarImportRecord, error) {
	for _, src := range s.sources {
		entries, err := src.Entries(ctx)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.ID == id {
				return e, nil
			}
		}
	}

	recs, err := s.queryWithin(ctx, s.opts.CalendarTimeout, model.Filter{
		IDs:   []string{id},
		Kinds: model.CalendarKinds,
		Limit: 1,
	})
	if err != nil {
		return model.CalendarImportRecord{}, err
	}
	if len(recs) == 0 {
		return model.CalendarImportRecord{}, fmt.Errorf("calendar record %s: %w", id, ErrNotFound)
	}
	return record.DecodeCalendarImport(recs[0]), nil
}

// ImportedEvent maps a calendar record to the event its owner would
// publish when importing it.
func ImportedEvent(src model.CalendarImportRecord, owner string) model.EventRecord {
	title := src.Title
	if title == "" {
		title = model.DefaultEventTitle
	}
	topics := append(append([]string{}, src.Topics...), importedTopics...)
	return model.EventRecord{
		HostPubKey:     owner,
		Slug:           ImportedSlugPrefix + src.ID,
		Title:          title,
		Description:    src.Description,
		Location:       src.Location,
		Organizer:      src.Organizer,
		ImageURL:       src.ImageURL,
		WebsiteURL:     src.WebsiteURL,
		Category:       src.Category,
		Credential:     model.CredentialNone,
		Topics:         topics,
		StartTime:      src.StartTime,
		EndTime:        src.EndTime,
		RequiredFields: []string{"name", "email"},
		CustomFields:   []model.CustomField{},
		ImportedFrom:   src.ID,
	}
}

// ImportResult is the outcome of Import. When AlreadyImported is set the
// other fields are zero.
type ImportResult struct {
	AlreadyImported bool              `json:"already_imported"`
	Event           model.EventRecord `json:"event"`
	Template        model.RawRecord   `json:"template"`
	Published       bool              `json:"published"`
}

// Import copies src into an event owned by owner. A record imported before
// is reported through ImportResult.AlreadyImported rather than an error.
// The template is published when the configured publisher signs as owner;
// otherwise it is returned for the owner to sign.
func (s *Service) Import(ctx context.Context, src model.CalendarImportRecord, owner string) (ImportResult, error) {
	if owner == "" || owner != src.OwnerPubKey {
		return ImportResult{}, ErrNotOwner
	}

	exists, err := s.importExists(ctx, src.ID)
	if err != nil {
		appLog.Error("import existence check failed, continuing", err, "source", src.ID)
	} else if exists {
		appLog.Info("calendar record already imported", "source", src.ID)
		return ImportResult{AlreadyImported: true}, nil
	}

	ev := ImportedEvent(src, owner)
	ev.CreatedAt = s.now().Unix()
	res := ImportResult{Event: ev, Template: record.EncodeEvent(ev)}

	if !s.canPublish(owner) {
		return res, nil
	}

	signed, err := s.publish(ctx, res.Template)
	if err != nil {
		return ImportResult{}, fmt.Errorf("publish imported event: %w", err)
	}
	res.Template = signed
	res.Event.ID = signed.ID
	res.Published = true
	appLog.Info("calendar record imported", "source", src.ID, "slug", ev.Slug, "id", signed.ID)
	return res, nil
}

func (s *Service) importExists(ctx context.Context, sourceID string) (bool, error) {
	f := model.Filter{Kinds: []int{model.EventKind}, Limit: 1}.WithTag(record.TagImportedID, sourceID)
	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, f)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}
