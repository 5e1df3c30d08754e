// Package rollcall is the boundary between relay queries and the record
// core: it builds filters, decodes what comes back and applies the lookup
// retry policy before handing typed records to callers.
package rollcall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/relay"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCheckedIn = errors.New("already checked in")
	ErrEventEnded       = errors.New("event has ended")
	ErrNotOwner         = errors.New("only the event owner can import it")
	ErrMissingAttendee  = errors.New("attendee pubkey is required")
	ErrInvalidEvent     = errors.New("invalid event")
)

// MissingFieldsError lists required check-in fields left blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Options configures timeouts per call site and the lookup retry policy.
type Options struct {
	LookupTimeout   time.Duration
	CalendarTimeout time.Duration
	DetailsTimeout  time.Duration
	PublishTimeout  time.Duration

	// RetryCount extra lookups are made after RetryDelay when an event
	// lookup returns nothing, before giving up with ErrNotFound.
	RetryCount int
	RetryDelay time.Duration

	// FrontendURL is the public web app base, linked from event proposals.
	FrontendURL string

	// Location renders dates in community posts; nil means UTC.
	Location *time.Location
}

// DefaultOptions mirrors the timeouts of the RollCall web client.
func DefaultOptions() Options {
	return Options{
		LookupTimeout:   5 * time.Second,
		CalendarTimeout: 10 * time.Second,
		DetailsTimeout:  8 * time.Second,
		PublishTimeout:  5 * time.Second,
		RetryCount:      model.LookupRetryCount,
		RetryDelay:      model.LookupRetryDelay,
	}
}

// CalendarSource supplies calendar records that do not live on relays,
// such as ICS feed entries.
type CalendarSource interface {
	Entries(ctx context.Context) ([]model.CalendarImportRecord, error)
}

// Service answers RollCall queries against a relay collaborator.
type Service struct {
	query   relay.QueryPort
	pub     relay.Publisher
	sources []CalendarSource
	opts    Options

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	newSlug func() string
}

// New builds a Service. pub may be nil, in which case records are only
// prepared for the caller to sign and publish.
func New(query relay.QueryPort, pub relay.Publisher, opts Options) *Service {
	return &Service{
		query: query,
		pub:   pub,
		opts:  opts,
		now:     time.Now,
		sleep:   sleepCtx,
		newSlug: randomSlug,
	}
}

// AddCalendarSource registers an extra source of importable calendar records.
func (s *Service) AddCalendarSource(src CalendarSource) {
	s.sources = append(s.sources, src)
}

// Now is the service clock, exposed so callers derive with the same time.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) queryWithin(ctx context.Context, timeout time.Duration, filters ...model.Filter) ([]model.RawRecord, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	recs, err := s.query.Query(ctx, filters...)
	if err != nil {
		return nil, fmt.Errorf("relay query: %w", err)
	}
	return recs, nil
}

// queryWithRetry repeats an empty lookup up to RetryCount times. Query
// errors are returned immediately.
func (s *Service) queryWithRetry(ctx context.Context, what string, filters ...model.Filter) ([]model.RawRecord, error) {
	for attempt := 0; ; attempt++ {
		recs, err := s.queryWithin(ctx, s.opts.LookupTimeout, filters...)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			return recs, nil
		}
		if attempt >= s.opts.RetryCount {
			return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		appLog.Info("lookup returned nothing, retrying", "what", what, "attempt", attempt+1, "delay", s.opts.RetryDelay)
		if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// canPublish reports whether the configured publisher signs as author.
func (s *Service) canPublish(author string) bool {
	return s.pub != nil && author != "" && s.pub.PubKey() == author
}

// publish signs and sends tmpl within PublishTimeout.
func (s *Service) publish(ctx context.Context, tmpl model.RawRecord) (model.RawRecord, error) {
	if s.opts.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PublishTimeout)
		defer cancel()
	}
	return s.pub.Publish(ctx, tmpl)
}

// randomSlug returns an 8 character event code.
func randomSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
