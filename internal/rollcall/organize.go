package rollcall

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"rollcall/internal/derive"
	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/record"
)

const (
	minTitleLen = 3
	minSlugLen  = 3

	defaultEventLength = 3600
)

// EventResult is the outcome of PrepareEvent. Proposal is the community
// post announcing the event, when one was requested. Edited is set when the
// host already published an event with the same slug.
type EventResult struct {
	Event     model.EventRecord `json:"event"`
	Template  model.RawRecord   `json:"template"`
	Proposal  *model.RawRecord  `json:"proposal,omitempty"`
	Edited    bool              `json:"edited"`
	Published bool              `json:"published"`
}

// PrepareEvent validates an organizer's event and returns its kind 31110
// template. An empty slug gets a random 8 character code; an existing slug
// of the same host is an edit, stamped so that it supersedes the previous
// record. When communityID is set a proposal post is prepared as well.
//
// Templates are published when the configured publisher signs as the host.
func (s *Service) PrepareEvent(ctx context.Context, ev model.EventRecord, communityID string) (EventResult, error) {
	now := s.now().Unix()
	ev = normalizeEvent(ev, now)
	if ev.Slug == "" {
		ev.Slug = s.newSlug()
	}
	if err := validateEvent(ev); err != nil {
		return EventResult{}, err
	}

	ev.ID = ""
	ev.CreatedAt = now
	res := EventResult{}

	prev, err := s.hostEvent(ctx, ev.HostPubKey, ev.Slug)
	switch {
	case err != nil:
		appLog.Error("existing event lookup failed, continuing", err, "slug", ev.Slug)
	case prev != nil:
		res.Edited = true
		if prev.CreatedAt >= ev.CreatedAt {
			ev.CreatedAt = prev.CreatedAt + 1
		}
	}

	res.Event = ev
	res.Template = record.EncodeEvent(ev)
	if communityID = strings.TrimSpace(communityID); communityID != "" {
		p := record.EncodeEventProposal(ev, communityID, s.eventLink(ev.Slug), s.opts.Location)
		res.Proposal = &p
	}

	if !s.canPublish(ev.HostPubKey) {
		appLog.Info("event prepared", "slug", ev.Slug, "host", ev.HostPubKey, "edited", res.Edited)
		return res, nil
	}

	signed, err := s.publish(ctx, res.Template)
	if err != nil {
		return EventResult{}, fmt.Errorf("publish event: %w", err)
	}
	res.Template = signed
	res.Event.ID = signed.ID
	res.Published = true

	if res.Proposal != nil {
		if p, err := s.publish(ctx, *res.Proposal); err != nil {
			appLog.Error("community proposal failed", err, "slug", ev.Slug, "community", communityID)
		} else {
			res.Proposal = &p
		}
	}
	appLog.Info("event published", "slug", ev.Slug, "id", signed.ID, "edited", res.Edited)
	return res, nil
}

// hostEvent returns host's latest event with slug, or nil if there is none.
func (s *Service) hostEvent(ctx context.Context, host, slug string) (*model.EventRecord, error) {
	recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, model.EventsBySlug(slug, host))
	if err != nil {
		return nil, err
	}
	events := derive.LatestEvents(record.DecodeEvents(recs))
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (s *Service) eventLink(slug string) string {
	if s.opts.FrontendURL == "" {
		return ""
	}
	base, err := url.Parse(strings.TrimRight(s.opts.FrontendURL, "/"))
	if err != nil {
		return ""
	}
	return base.JoinPath("events", "check-in", slug).String()
}

func normalizeEvent(ev model.EventRecord, now int64) model.EventRecord {
	ev.HostPubKey = strings.TrimSpace(ev.HostPubKey)
	ev.Slug = strings.TrimSpace(ev.Slug)
	ev.Title = strings.TrimSpace(ev.Title)
	ev.WebsiteURL = strings.TrimSpace(ev.WebsiteURL)
	if ev.Credential == "" {
		ev.Credential = model.CredentialNone
	}
	if ev.StartTime == 0 {
		ev.StartTime = now
	}
	if ev.EndTime == 0 {
		ev.EndTime = ev.StartTime + defaultEventLength
	}

	ev.CustomFields = append([]model.CustomField(nil), ev.CustomFields...)
	ev.RequiredFields = append([]string(nil), ev.RequiredFields...)
	// Required custom fields are listed in req_fields alongside name and email.
	for i, f := range ev.CustomFields {
		ev.CustomFields[i].Name = strings.TrimSpace(f.Name)
		if f.Required && ev.CustomFields[i].Name != "" && !ev.RequiresField(ev.CustomFields[i].Name) {
			ev.RequiredFields = append(ev.RequiredFields, ev.CustomFields[i].Name)
		}
	}
	return ev
}

func validateEvent(ev model.EventRecord) error {
	switch {
	case ev.HostPubKey == "":
		return fmt.Errorf("%w: host pubkey is required", ErrInvalidEvent)
	case utf8.RuneCountInString(ev.Title) < minTitleLen:
		return fmt.Errorf("%w: title must be at least %d characters", ErrInvalidEvent, minTitleLen)
	case utf8.RuneCountInString(ev.Slug) < minSlugLen:
		return fmt.Errorf("%w: event code must be at least %d characters", ErrInvalidEvent, minSlugLen)
	case strings.Contains(ev.Slug, ":"):
		return fmt.Errorf("%w: event code must not contain ':'", ErrInvalidEvent)
	case ev.EndTime < ev.StartTime:
		return fmt.Errorf("%w: end must not be before start", ErrInvalidEvent)
	}
	if ev.WebsiteURL != "" {
		u, err := url.Parse(ev.WebsiteURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: website must be a valid URL", ErrInvalidEvent)
		}
	}
	for _, f := range ev.CustomFields {
		if f.Name == "" {
			return fmt.Errorf("%w: custom field name is required", ErrInvalidEvent)
		}
	}
	return nil
}
