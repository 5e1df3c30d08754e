package relay

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"rollcall/internal/model"
)

type fakeConn struct {
	mu        sync.Mutex
	events    []*nostr.Event
	queryErr  error
	filters   []nostr.Filter
	published []nostr.Event
}

func (f *fakeConn) QuerySync(_ context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	return f.events, f.queryErr
}

func (f *fakeConn) Publish(_ context.Context, ev nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return f.queryErr
}

func (f *fakeConn) Close() error { return nil }

func testClient(t *testing.T, conns map[string]*fakeConn, secretKey string) *Client {
	t.Helper()
	urls := make([]string, 0, len(conns))
	for u := range conns {
		urls = append(urls, u)
	}
	c, err := NewClient(urls, secretKey)
	if err != nil {
		t.Fatal(err)
	}
	c.dial = func(_ context.Context, url string) (conn, error) {
		fc, ok := conns[url]
		if !ok {
			return nil, errors.New("unknown relay")
		}
		return fc, nil
	}
	return c
}

func TestQueryMergesRelays(t *testing.T) {
	shared := &nostr.Event{ID: "shared", CreatedAt: 20, Kind: model.EventKind}
	conns := map[string]*fakeConn{
		"wss://one": {events: []*nostr.Event{shared, {ID: "old", CreatedAt: 10}}},
		"wss://two": {events: []*nostr.Event{shared, {ID: "new", CreatedAt: 30, Tags: nostr.Tags{{"d", "x"}}}}},
		"wss://bad": {queryErr: errors.New("boom")},
	}
	c := testClient(t, conns, "")

	f := model.EventsBySlug("x", "host")
	got, err := c.Query(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"new", "shared", "old"}) {
		t.Errorf("ids = %v", ids)
	}
	if !reflect.DeepEqual(got[0].Tags, [][]string{{"d", "x"}}) {
		t.Errorf("tags = %v", got[0].Tags)
	}

	sent := conns["wss://one"].filters[0]
	if !reflect.DeepEqual(sent.Kinds, []int{model.EventKind}) || !reflect.DeepEqual(sent.Authors, []string{"host"}) {
		t.Errorf("filter = %+v", sent)
	}
	if !reflect.DeepEqual(sent.Tags["d"], []string{"x"}) {
		t.Errorf("filter tags = %v", sent.Tags)
	}
}

func TestQueryAllRelaysFail(t *testing.T) {
	c := testClient(t, map[string]*fakeConn{"wss://bad": {queryErr: errors.New("boom")}}, "")
	if _, err := c.Query(context.Background(), model.Filter{}); err == nil {
		t.Fatal("expected error")
	}

	empty, _ := NewClient(nil, "")
	if _, err := empty.Query(context.Background()); !errors.Is(err, ErrNoRelays) {
		t.Errorf("err = %v", err)
	}
}

func TestPublishSignsUnsignedRecords(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	conns := map[string]*fakeConn{"wss://one": {}}
	c := testClient(t, conns, sk)
	if c.PubKey() == "" {
		t.Fatal("PubKey empty")
	}

	rec := model.RawRecord{Kind: model.CheckInKind, Tags: [][]string{{"a", "31110:h:s"}}, CreatedAt: 1700000000}
	out, err := c.Publish(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if out.Sig == "" || out.ID == "" || out.PubKey != c.PubKey() {
		t.Errorf("published = %+v", out)
	}
	if len(conns["wss://one"].published) != 1 {
		t.Fatalf("relay got %d records", len(conns["wss://one"].published))
	}
	if ok, err := conns["wss://one"].published[0].CheckSignature(); !ok || err != nil {
		t.Errorf("signature invalid: %v", err)
	}
}

func TestPublishWithoutKey(t *testing.T) {
	c := testClient(t, map[string]*fakeConn{"wss://one": {}}, "")
	if _, err := c.Publish(context.Background(), model.RawRecord{Kind: 1}); err == nil {
		t.Fatal("expected error for unsigned record without key")
	}
}

func TestNewClientRejectsBadKey(t *testing.T) {
	if _, err := NewClient([]string{"wss://one"}, "not-hex"); err == nil {
		t.Fatal("expected error")
	}
}
