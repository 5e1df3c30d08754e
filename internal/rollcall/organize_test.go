package rollcall

import (
	"context"
	"errors"
	"strings"
	"testing"

	"rollcall/internal/model"
	"rollcall/internal/record"
)

func draft() model.EventRecord {
	return model.EventRecord{
		HostPubKey: host, Slug: "meetup", Title: "Go Meetup",
		StartTime: now.Unix() + 3600, EndTime: now.Unix() + 7200,
		WebsiteURL:     "https://go.dev/meetup",
		RequiredFields: []string{"email"},
		CustomFields:   []model.CustomField{{Name: "company", Required: true}, {Name: "role"}},
	}
}

func TestPrepareEventValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.EventRecord)
	}{
		{"no host", func(e *model.EventRecord) { e.HostPubKey = "" }},
		{"short title", func(e *model.EventRecord) { e.Title = " Go " }},
		{"short slug", func(e *model.EventRecord) { e.Slug = "ab" }},
		{"slug with colon", func(e *model.EventRecord) { e.Slug = "go:meetup" }},
		{"website not a url", func(e *model.EventRecord) { e.WebsiteURL = "go.dev" }},
		{"end before start", func(e *model.EventRecord) { e.EndTime = e.StartTime - 1 }},
		{"unnamed custom field", func(e *model.EventRecord) { e.CustomFields = append(e.CustomFields, model.CustomField{Name: " "}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRelay{pubKey: host}
			svc, _ := newTestService(fr)
			ev := draft()
			tt.mutate(&ev)

			_, err := svc.PrepareEvent(context.Background(), ev, "")
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("want ErrInvalidEvent, got %v", err)
			}
			if len(fr.published) != 0 || fr.calls != 0 {
				t.Fatalf("invalid event reached the relay: %d queries, %d published", fr.calls, len(fr.published))
			}
		})
	}
}

func TestPrepareEventDefaults(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{})
	svc.newSlug = func() string { return "k3x9a0bz" }

	ev := draft()
	ev.Slug = ""
	ev.StartTime, ev.EndTime = 0, 0
	res, err := svc.PrepareEvent(context.Background(), ev, "")
	if err != nil {
		t.Fatalf("PrepareEvent: %v", err)
	}
	if res.Edited || res.Published || res.Proposal != nil {
		t.Fatalf("result = %+v", res)
	}

	got := record.DecodeEvent(res.Template)
	if got.Slug != "k3x9a0bz" || got.HostPubKey != host || got.CreatedAt != now.Unix() {
		t.Fatalf("event = %+v", got)
	}
	if got.StartTime != now.Unix() || got.EndTime != now.Unix()+3600 {
		t.Fatalf("times = %d..%d", got.StartTime, got.EndTime)
	}
	if !got.RequiresField("email") || !got.RequiresField("company") || got.RequiresField("role") {
		t.Fatalf("required fields = %v", got.RequiredFields)
	}
	if len(ev.RequiredFields) != 1 {
		t.Fatalf("caller's required fields modified: %v", ev.RequiredFields)
	}
}

func TestRandomSlug(t *testing.T) {
	a, b := randomSlug(), randomSlug()
	if len(a) != 8 || len(b) != 8 || a == b {
		t.Fatalf("slugs %q %q", a, b)
	}
}

func TestPrepareEventEditSupersedes(t *testing.T) {
	// The earlier record carries a timestamp ahead of the service clock.
	fr := &fakeRelay{
		pubKey:  host,
		records: []model.RawRecord{eventRaw("e1", "meetup", now.Unix()+5, 1000, 2000)},
	}
	svc, _ := newTestService(fr)

	ev := draft()
	ev.Title = "Go Meetup v2"
	res, err := svc.PrepareEvent(context.Background(), ev, "")
	if err != nil {
		t.Fatalf("PrepareEvent: %v", err)
	}
	if !res.Edited || !res.Published || res.Event.CreatedAt != now.Unix()+6 {
		t.Fatalf("result = %+v", res)
	}
	if len(fr.published) != 1 {
		t.Fatalf("published %d records", len(fr.published))
	}

	fr.records = append(fr.records, fr.published[0])
	got, err := svc.FindEvent(context.Background(), "meetup", host)
	if err != nil {
		t.Fatalf("FindEvent: %v", err)
	}
	if got.Title != "Go Meetup v2" || got.ID != res.Event.ID {
		t.Fatalf("latest event = %+v", got)
	}
}

func TestPrepareEventProposal(t *testing.T) {
	fr := &fakeRelay{pubKey: host}
	svc, _ := newTestService(fr)
	svc.opts.FrontendURL = "https://rollcall.example/"

	res, err := svc.PrepareEvent(context.Background(), draft(), "34550:mod:gophers")
	if err != nil {
		t.Fatalf("PrepareEvent: %v", err)
	}
	if res.Edited || !res.Published || res.Proposal == nil {
		t.Fatalf("result = %+v", res)
	}
	if len(fr.published) != 2 || fr.published[1].Kind != model.NoteKind {
		t.Fatalf("published = %+v", fr.published)
	}
	p := res.Proposal
	if p.Tags[0][1] != "34550:mod:gophers" || p.Tags[3][1] != "31110:"+host+":meetup" {
		t.Fatalf("proposal tags = %v", p.Tags)
	}
	if !strings.Contains(p.Content, "https://rollcall.example/events/check-in/meetup") {
		t.Fatalf("proposal content = %s", p.Content)
	}
}

func TestPrepareEventLookupFailsOpen(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{err: errors.New("relay down")})

	res, err := svc.PrepareEvent(context.Background(), draft(), "")
	if err != nil {
		t.Fatalf("PrepareEvent: %v", err)
	}
	if res.Edited || res.Template.Kind != model.EventKind {
		t.Fatalf("result = %+v", res)
	}
}
