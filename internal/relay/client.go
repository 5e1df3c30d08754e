package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	appLog "rollcall/internal/log"
	"rollcall/internal/model"
)

// ErrNoRelays is returned when a Client has no relay URLs configured.
var ErrNoRelays = errors.New("relay: no relays configured")

// conn is the part of a relay connection the client uses.
type conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, ev nostr.Event) error
	Close() error
}

type dialFunc func(ctx context.Context, url string) (conn, error)

// nostrConn adapts *nostr.Relay to conn.
type nostrConn struct {
	r *nostr.Relay
}

func (c nostrConn) QuerySync(ctx context.Context, f nostr.Filter) ([]*nostr.Event, error) {
	return c.r.QuerySync(ctx, f)
}

func (c nostrConn) Publish(ctx context.Context, ev nostr.Event) error {
	return c.r.Publish(ctx, ev)
}

func (c nostrConn) Close() error {
	return c.r.Close()
}

func dialNostr(ctx context.Context, url string) (conn, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return nostrConn{r: r}, nil
}

// Client queries and publishes to a fixed set of relays. A connection is
// opened per call; queries fan out to every relay and the results are
// merged by record id.
type Client struct {
	urls      []string
	secretKey string
	pubKey    string
	dial      dialFunc
}

// NewClient builds a Client for urls. secretKey is a hex private key used
// to sign unsigned records on Publish; it may be empty.
func NewClient(urls []string, secretKey string) (*Client, error) {
	c := &Client{
		urls:      urls,
		secretKey: secretKey,
		dial:      dialNostr,
	}
	if secretKey != "" {
		pk, err := nostr.GetPublicKey(secretKey)
		if err != nil {
			return nil, fmt.Errorf("relay: invalid secret key: %w", err)
		}
		c.pubKey = pk
	}
	return c, nil
}

// PubKey returns the signing identity, or "" without a secret key.
func (c *Client) PubKey() string {
	return c.pubKey
}

// Query runs filters against every relay. Per-relay failures are logged;
// an error is returned only if every relay failed.
func (c *Client) Query(ctx context.Context, filters ...model.Filter) ([]model.RawRecord, error) {
	if len(c.urls) == 0 {
		return nil, ErrNoRelays
	}

	nf := make([]nostr.Filter, 0, len(filters))
	for _, f := range filters {
		nf = append(nf, toNostrFilter(f))
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		events []*nostr.Event
		errs   []error
	)
	for _, url := range c.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			got, err := c.queryOne(ctx, url, nf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appLog.Error("relay query failed", err, "relay", url)
				errs = append(errs, err)
				return
			}
			events = append(events, got...)
		}(url)
	}
	wg.Wait()

	if len(errs) == len(c.urls) {
		return nil, fmt.Errorf("relay: all %d relays failed: %w", len(errs), errors.Join(errs...))
	}

	out := mergeEvents(events)
	appLog.Debug("relay query completed", "filters", len(filters), "records", len(out), "failed_relays", len(errs))
	return out, nil
}

func (c *Client) queryOne(ctx context.Context, url string, filters []nostr.Filter) ([]*nostr.Event, error) {
	r, err := c.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []*nostr.Event
	for _, f := range filters {
		evs, err := r.QuerySync(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

// Publish signs rec when it has no signature and sends it to every relay.
// It succeeds if at least one relay accepted the record.
func (c *Client) Publish(ctx context.Context, rec model.RawRecord) (model.RawRecord, error) {
	if len(c.urls) == 0 {
		return rec, ErrNoRelays
	}

	ev := toNostrEvent(rec)
	if ev.Sig == "" {
		if c.secretKey == "" {
			return rec, errors.New("relay: record is unsigned and no secret key is configured")
		}
		if ev.CreatedAt == 0 {
			ev.CreatedAt = nostr.Now()
		}
		if err := ev.Sign(c.secretKey); err != nil {
			return rec, fmt.Errorf("relay: sign: %w", err)
		}
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		accepted int
		errs     []error
	)
	for _, url := range c.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			err := c.publishOne(ctx, url, ev)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appLog.Error("relay publish failed", err, "relay", url, "id", ev.ID)
				errs = append(errs, err)
				return
			}
			accepted++
		}(url)
	}
	wg.Wait()

	if accepted == 0 {
		return rec, fmt.Errorf("relay: publish rejected by all relays: %w", errors.Join(errs...))
	}
	appLog.Info("relay publish completed", "id", ev.ID, "kind", ev.Kind, "accepted", accepted)
	return fromNostrEvent(&ev), nil
}

func (c *Client) publishOne(ctx context.Context, url string, ev nostr.Event) error {
	r, err := c.dial(ctx, url)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Publish(ctx, ev)
}

func toNostrFilter(f model.Filter) nostr.Filter {
	nf := nostr.Filter{
		IDs:     f.IDs,
		Kinds:   f.Kinds,
		Authors: f.Authors,
		Limit:   f.Limit,
	}
	if len(f.Tags) > 0 {
		nf.Tags = make(nostr.TagMap, len(f.Tags))
		for k, v := range f.Tags {
			nf.Tags[k] = v
		}
	}
	return nf
}

func toNostrEvent(rec model.RawRecord) nostr.Event {
	tags := make(nostr.Tags, 0, len(rec.Tags))
	for _, t := range rec.Tags {
		tags = append(tags, nostr.Tag(t))
	}
	return nostr.Event{
		ID:        rec.ID,
		PubKey:    rec.PubKey,
		CreatedAt: nostr.Timestamp(rec.CreatedAt),
		Kind:      rec.Kind,
		Tags:      tags,
		Content:   rec.Content,
		Sig:       rec.Sig,
	}
}

func fromNostrEvent(ev *nostr.Event) model.RawRecord {
	tags := make([][]string, 0, len(ev.Tags))
	for _, t := range ev.Tags {
		tags = append(tags, []string(t))
	}
	return model.RawRecord{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: int64(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      tags,
		Content:   ev.Content,
		Sig:       ev.Sig,
	}
}

// mergeEvents drops repeated ids and orders records newest first.
func mergeEvents(events []*nostr.Event) []model.RawRecord {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.RawRecord, 0, len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, fromNostrEvent(ev))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}
