package rollcall

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/record"
	"rollcall/internal/relay"
)

const (
	host     = "hosthex"
	attendee = "attendeehex"
)

// fakeRelay is an in-memory QueryPort and Publisher.
type fakeRelay struct {
	records []model.RawRecord
	err     error
	calls   int

	pubKey    string
	published []model.RawRecord
}

func (f *fakeRelay) Query(_ context.Context, filters ...model.Filter) ([]model.RawRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.RawRecord
	for _, rec := range f.records {
		for _, flt := range filters {
			if matches(flt, rec) {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRelay) Publish(_ context.Context, rec model.RawRecord) (model.RawRecord, error) {
	rec.ID = "signed-" + rec.Tags[0][1]
	rec.Sig = "sig"
	f.published = append(f.published, rec)
	return rec, nil
}

func (f *fakeRelay) PubKey() string { return f.pubKey }

func matches(f model.Filter, rec model.RawRecord) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, rec.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, rec.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, rec.PubKey) {
		return false
	}
	for name, values := range f.Tags {
		found := false
		for _, t := range rec.Tags {
			if len(t) >= 2 && t[0] == name && contains(values, t[1]) {
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

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

type fakeSource struct {
	entries []model.CalendarImportRecord
	err     error
}

func (s fakeSource) Entries(context.Context) ([]model.CalendarImportRecord, error) {
	return s.entries, s.err
}

var now = time.Unix(1_700_000_000, 0)

func newTestService(fr *fakeRelay) (*Service, *[]time.Duration) {
	appLog.SetOutput(io.Discard)
	var pub relay.Publisher
	if fr.pubKey != "" {
		pub = fr
	}
	svc := New(fr, pub, DefaultOptions())
	svc.now = func() time.Time { return now }
	var slept []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return svc, &slept
}

func eventRaw(id, slug string, createdAt, start, end int64, extra ...[]string) model.RawRecord {
	ev := model.EventRecord{
		ID: id, HostPubKey: host, Slug: slug, CreatedAt: createdAt,
		Title: "Meetup " + id, StartTime: start, EndTime: end,
	}
	raw := record.EncodeEvent(ev)
	raw.Tags = append(raw.Tags, extra...)
	return raw
}

func checkInRaw(id, who, slug string, at int64) model.RawRecord {
	return model.RawRecord{
		ID: id, PubKey: who, CreatedAt: at, Kind: model.CheckInKind,
		Tags: [][]string{{"a", "31110:" + host + ":" + slug}},
	}
}

func TestFindEventLatestWins(t *testing.T) {
	fr := &fakeRelay{records: []model.RawRecord{
		eventRaw("old", "meetup", 100, 10, 20),
		eventRaw("new", "meetup", 200, 10, 20),
		eventRaw("other", "other", 300, 10, 20),
	}}
	svc, slept := newTestService(fr)

	ev, err := svc.FindEvent(context.Background(), "meetup", host)
	if err != nil {
		t.Fatalf("FindEvent: %v", err)
	}
	if ev.ID != "new" {
		t.Fatalf("want newest record, got %q", ev.ID)
	}
	if fr.calls != 1 || len(*slept) != 0 {
		t.Fatalf("unexpected retry: calls=%d slept=%v", fr.calls, *slept)
	}
}

func TestFindEventRetriesOnceThenNotFound(t *testing.T) {
	fr := &fakeRelay{}
	svc, slept := newTestService(fr)

	_, err := svc.FindEvent(context.Background(), "missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if fr.calls != 2 {
		t.Fatalf("want 2 queries (1 retry), got %d", fr.calls)
	}
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Fatalf("want one 2s delay, got %v", *slept)
	}
}

func TestFindEventQueryErrorNotRetried(t *testing.T) {
	fr := &fakeRelay{err: errors.New("boom")}
	svc, _ := newTestService(fr)

	_, err := svc.FindEvent(context.Background(), "meetup", "")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("want relay error, got %v", err)
	}
	if fr.calls != 1 {
		t.Fatalf("want 1 query, got %d", fr.calls)
	}
}

func TestFindEventRetryCountConfigurable(t *testing.T) {
	fr := &fakeRelay{}
	svc, slept := newTestService(fr)
	svc.opts.RetryCount = 0

	if _, err := svc.FindEvent(context.Background(), "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if fr.calls != 1 || len(*slept) != 0 {
		t.Fatalf("calls=%d slept=%v", fr.calls, *slept)
	}
}

func TestHostEventsSortedByStart(t *testing.T) {
	fr := &fakeRelay{records: []model.RawRecord{
		eventRaw("a", "first", 100, 1000, 0),
		eventRaw("b", "second", 100, 3000, 0),
		eventRaw("c", "third", 100, 2000, 0),
	}}
	svc, _ := newTestService(fr)

	events, err := svc.HostEvents(context.Background(), host)
	if err != nil {
		t.Fatalf("HostEvents: %v", err)
	}
	var got []string
	for _, ev := range events {
		got = append(got, ev.Slug)
	}
	want := []string{"second", "third", "first"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestEventCheckInsAndAnalytics(t *testing.T) {
	start := now.Unix() - 3600
	ev := record.DecodeEvent(eventRaw("e1", "meetup", 100, start, now.Unix()+3600))
	fr := &fakeRelay{records: []model.RawRecord{
		checkInRaw("c1", "alice", "meetup", start-60),
		checkInRaw("c2", "bob", "meetup", start+60),
		checkInRaw("c3", "bob", "meetup", start+120),
		checkInRaw("c4", "carol", "other", start),
	}}
	svc, _ := newTestService(fr)

	checkIns, err := svc.EventCheckIns(context.Background(), ev)
	if err != nil {
		t.Fatalf("EventCheckIns: %v", err)
	}
	if len(checkIns) != 3 || checkIns[0].ID != "c3" {
		t.Fatalf("got %d check-ins, first %q", len(checkIns), checkIns[0].ID)
	}

	a, _, err := svc.Analytics(context.Background(), ev, 4)
	if err != nil {
		t.Fatalf("Analytics: %v", err)
	}
	if a.CheckIns != 2 || a.Duplicates != 1 || a.Early != 1 || a.OnTime != 1 {
		t.Fatalf("analytics = %+v", a)
	}
	if a.Rate != 50 {
		t.Fatalf("rate = %v, want 50", a.Rate)
	}
}

func TestPrepareCheckIn(t *testing.T) {
	ev := model.EventRecord{
		HostPubKey: host, Slug: "meetup",
		StartTime: now.Unix() - 60, EndTime: now.Unix() + 3600,
		RequiredFields: []string{"name", "email"},
		CustomFields:   []model.CustomField{{Name: "company", Required: true}, {Name: "role"}},
	}

	tests := []struct {
		name    string
		records []model.RawRecord
		ev      func(model.EventRecord) model.EventRecord
		sub     Submission
		wantErr error
	}{
		{
			name: "ok",
			sub: Submission{Attendee: attendee, Name: "Ann", Email: "ann@x.io",
				Fields: map[string]string{"company": "Acme", "unknown": "dropped"}},
		},
		{
			name:    "no attendee",
			sub:     Submission{Name: "Ann"},
			wantErr: ErrMissingAttendee,
		},
		{
			name: "ended",
			ev: func(e model.EventRecord) model.EventRecord {
				e.EndTime = now.Unix() - 1
				return e
			},
			sub:     Submission{Attendee: attendee, Name: "Ann", Email: "a@x"},
			wantErr: ErrEventEnded,
		},
		{
			name:    "already checked in",
			records: []model.RawRecord{checkInRaw("c1", attendee, "meetup", 1)},
			sub: Submission{Attendee: attendee, Name: "Ann", Email: "a@x",
				Fields: map[string]string{"company": "Acme"}},
			wantErr: ErrAlreadyCheckedIn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(&fakeRelay{records: tt.records})
			e := ev
			if tt.ev != nil {
				e = tt.ev(e)
			}
			res, err := svc.PrepareCheckIn(context.Background(), e, tt.sub)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("PrepareCheckIn: %v", err)
			}
			if res.Share != nil {
				t.Fatalf("unexpected share %+v", res.Share)
			}
			ci := record.DecodeCheckIn(res.Template)
			if ci.RawRef != "31110:"+host+":meetup" || ci.AttendeePubKey != attendee {
				t.Fatalf("check-in = %+v", ci)
			}
			if ci.CheckInTime != now.Unix() {
				t.Fatalf("check-in time = %d", ci.CheckInTime)
			}
			if ci.CustomData["company"] != "Acme" || ci.CustomData["unknown"] != nil {
				t.Fatalf("custom data = %v", ci.CustomData)
			}
		})
	}
}

func TestPrepareCheckInMissingFields(t *testing.T) {
	ev := model.EventRecord{
		HostPubKey: host, Slug: "meetup",
		RequiredFields: []string{"name", "email"},
		CustomFields:   []model.CustomField{{Name: "company", Required: true}},
	}
	svc, _ := newTestService(&fakeRelay{})

	_, err := svc.PrepareCheckIn(context.Background(), ev, Submission{Attendee: attendee, Name: "Ann"})
	var mf *MissingFieldsError
	if !errors.As(err, &mf) {
		t.Fatalf("want MissingFieldsError, got %v", err)
	}
	if len(mf.Fields) != 2 || mf.Fields[0] != "Email" || mf.Fields[1] != "company" {
		t.Fatalf("fields = %v", mf.Fields)
	}
}

func TestPrepareCheckInPreCheckFailsOpen(t *testing.T) {
	ev := model.EventRecord{HostPubKey: host, Slug: "meetup"}
	svc, _ := newTestService(&fakeRelay{err: errors.New("relay down")})

	if _, err := svc.PrepareCheckIn(context.Background(), ev, Submission{Attendee: attendee}); err != nil {
		t.Fatalf("want check-in to proceed, got %v", err)
	}
}

func TestPrepareCheckInShare(t *testing.T) {
	ev := model.EventRecord{
		HostPubKey: host, Slug: "meetup", Title: "Go Meetup", Location: "Room 1",
		StartTime: now.Unix() - 60, EndTime: now.Unix() + 3600,
	}
	svc, _ := newTestService(&fakeRelay{})

	res, err := svc.PrepareCheckIn(context.Background(), ev, Submission{
		Attendee: attendee, Name: "Ann", Email: "ann@x.io", CommunityID: " 34550:mod:gophers ",
	})
	if err != nil {
		t.Fatalf("PrepareCheckIn: %v", err)
	}
	share := res.Share
	if share == nil {
		t.Fatal("want a share note")
	}
	if share.Kind != model.NoteKind || share.PubKey != attendee || share.CreatedAt != now.Unix() {
		t.Fatalf("share = %+v", share)
	}
	want := [][]string{
		{"a", "34550:mod:gophers"},
		{"t", "event-attendance"},
		{"t", "rollcall"},
		{"t", "checkin"},
		{"e", "31110:" + host + ":meetup"},
	}
	if !reflect.DeepEqual(share.Tags, want) {
		t.Fatalf("tags = %v", share.Tags)
	}
	for _, line := range []string{
		"✅ **Just checked in to: Go Meetup**",
		"📍 **Location**: Room 1",
		"👤 **Organizer**: TBD",
		"👋 **Name**: Ann",
		"📧 **Email**: ann@x.io",
	} {
		if !strings.Contains(share.Content, line) {
			t.Errorf("share content missing %q", line)
		}
	}
}

func TestAttendeeHistory(t *testing.T) {
	fr := &fakeRelay{records: []model.RawRecord{
		eventRaw("e1", "meetup", 100, 1000, 2000),
		checkInRaw("c1", attendee, "meetup", 50),
		checkInRaw("c2", attendee, "gone", 80),
		{ID: "c3", PubKey: attendee, CreatedAt: 90, Kind: model.CheckInKind, Tags: [][]string{{"a", "bogus"}}},
	}}
	svc, _ := newTestService(fr)

	rows, err := svc.AttendeeHistory(context.Background(), attendee, 0)
	if err != nil {
		t.Fatalf("AttendeeHistory: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want 3 rows, got %d", len(rows))
	}
	if rows[0].CheckIn.ID != "c3" || rows[0].Event != nil {
		t.Fatalf("row 0 = %+v", rows[0])
	}
	if rows[1].CheckIn.ID != "c2" || rows[1].Event != nil {
		t.Fatalf("row 1 = %+v", rows[1])
	}
	if rows[2].Event == nil || rows[2].Event.ID != "e1" {
		t.Fatalf("row 2 event = %+v", rows[2].Event)
	}
}

func TestAttendeeHistoryDays(t *testing.T) {
	fr := &fakeRelay{records: []model.RawRecord{
		eventRaw("e1", "meetup", 100, 1000, 2000),
		checkInRaw("old", attendee, "meetup", now.Unix()-3*86400),
		checkInRaw("new", attendee, "meetup", now.Unix()-3600),
	}}
	svc, _ := newTestService(fr)

	rows, err := svc.AttendeeHistory(context.Background(), attendee, 2)
	if err != nil {
		t.Fatalf("AttendeeHistory: %v", err)
	}
	if len(rows) != 1 || rows[0].CheckIn.ID != "new" || rows[0].Event == nil || rows[0].Event.ID != "e1" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestCalendarImportsMergesSources(t *testing.T) {
	future := now.Unix() + 86400
	fr := &fakeRelay{records: []model.RawRecord{
		{ID: "r1", PubKey: "o", Kind: model.CalendarTimeKind, CreatedAt: 1,
			Tags: [][]string{{"d", "x"}, {"title", "Relay"}, {"start", "1700086400"}}},
		{ID: "r2", PubKey: "o", Kind: model.CalendarTimeKind, CreatedAt: 1,
			Tags: [][]string{{"d", "x"}, {"title", "Dup"}, {"start", "1700086400"}}},
		{ID: "past", PubKey: "o", Kind: model.CalendarTimeKind, CreatedAt: 1,
			Tags: [][]string{{"title", "Past"}, {"start", "1"}}},
	}}
	svc, _ := newTestService(fr)
	svc.AddCalendarSource(fakeSource{entries: []model.CalendarImportRecord{
		{ID: "ics1", OwnerPubKey: "o", DTag: "uid@1", Title: "Feed", StartTime: future - 100},
	}})
	svc.AddCalendarSource(fakeSource{err: errors.New("feed down")})

	got, err := svc.CalendarImports(context.Background())
	if err != nil {
		t.Fatalf("CalendarImports: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ics1" || got[1].ID != "r1" {
		t.Fatalf("got %+v", got)
	}
}

func TestImport(t *testing.T) {
	src := model.CalendarImportRecord{
		ID: "src1", OwnerPubKey: host, Title: "Conf",
		StartTime: 1000, EndTime: 2000, Topics: []string{"go"},
	}

	t.Run("not owner", func(t *testing.T) {
		svc, _ := newTestService(&fakeRelay{})
		if _, err := svc.Import(context.Background(), src, "someone"); !errors.Is(err, ErrNotOwner) {
			t.Fatalf("want ErrNotOwner, got %v", err)
		}
	})

	t.Run("template", func(t *testing.T) {
		svc, _ := newTestService(&fakeRelay{})
		res, err := svc.Import(context.Background(), src, host)
		if err != nil {
			t.Fatalf("Import: %v", err)
		}
		if res.AlreadyImported || res.Published {
			t.Fatalf("result = %+v", res)
		}
		ev := record.DecodeEvent(res.Template)
		if ev.Slug != "imported-src1" || ev.ImportedFrom != "src1" || ev.EndTime != 2000 {
			t.Fatalf("event = %+v", ev)
		}
		if !ev.RequiresField("name") || !ev.RequiresField("email") {
			t.Fatalf("required fields = %v", ev.RequiredFields)
		}
		want := []string{"go", "imported", "flockstr-compatible"}
		if len(ev.Topics) != 3 || ev.Topics[1] != want[1] || ev.Topics[2] != want[2] {
			t.Fatalf("topics = %v", ev.Topics)
		}
	})

	t.Run("published", func(t *testing.T) {
		fr := &fakeRelay{pubKey: host}
		svc, _ := newTestService(fr)
		res, err := svc.Import(context.Background(), src, host)
		if err != nil {
			t.Fatalf("Import: %v", err)
		}
		if !res.Published || len(fr.published) != 1 || res.Event.ID == "" {
			t.Fatalf("result = %+v", res)
		}
	})

	t.Run("already imported", func(t *testing.T) {
		fr := &fakeRelay{records: []model.RawRecord{
			eventRaw("prev", "imported-src1", 100, 1000, 2000, []string{"flockstr_id", "src1"}),
		}}
		svc, _ := newTestService(fr)
		res, err := svc.Import(context.Background(), src, host)
		if err != nil {
			t.Fatalf("Import: %v", err)
		}
		if !res.AlreadyImported {
			t.Fatalf("want AlreadyImported, got %+v", res)
		}
	})

	t.Run("existence check fails open", func(t *testing.T) {
		svc, _ := newTestService(&fakeRelay{err: errors.New("down")})
		res, err := svc.Import(context.Background(), src, host)
		if err != nil || res.AlreadyImported {
			t.Fatalf("res=%+v err=%v", res, err)
		}
	})
}

func TestFindCalendarRecord(t *testing.T) {
	fr := &fakeRelay{records: []model.RawRecord{
		{ID: "r1", PubKey: "o", Kind: model.CalendarDateKind, Tags: [][]string{{"title", "Relay"}, {"start", "2024-01-02"}}},
	}}
	svc, _ := newTestService(fr)
	svc.AddCalendarSource(fakeSource{entries: []model.CalendarImportRecord{{ID: "ics1"}}})

	if r, err := svc.FindCalendarRecord(context.Background(), "ics1"); err != nil || r.ID != "ics1" {
		t.Fatalf("source lookup: %+v %v", r, err)
	}
	if r, err := svc.FindCalendarRecord(context.Background(), "r1"); err != nil || r.Title != "Relay" {
		t.Fatalf("relay lookup: %+v %v", r, err)
	}
	if _, err := svc.FindCalendarRecord(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
