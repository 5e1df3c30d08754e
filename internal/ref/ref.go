package ref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rollcall/internal/model"
)

var (
	// ErrMalformedRef matches any *MalformedRefError.
	ErrMalformedRef = errors.New("malformed event reference")
	// ErrMissingRef is returned when a check-in carries no reference at all.
	ErrMissingRef = errors.New("missing event reference")
)

// MalformedRefError describes a reference string that is not
// "31110:<host>:<slug>".
type MalformedRefError struct {
	Value  string
	Reason string
}

func (e *MalformedRefError) Error() string {
	return fmt.Sprintf("malformed event reference %q: %s", e.Value, e.Reason)
}

func (e *MalformedRefError) Is(target error) bool {
	return target == ErrMalformedRef
}

// Build composes the reference string relays are queried with. Parse is
// its exact inverse.
func Build(host, slug string) string {
	return strconv.Itoa(model.EventKind) + ":" + host + ":" + slug
}

// BuildFor composes the reference string for an event.
func BuildFor(ev model.EventRecord) string {
	return Build(ev.HostPubKey, ev.Slug)
}

// Parse decomposes a reference string.
func Parse(s string) (model.EventRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return model.EventRef{}, &MalformedRefError{Value: s, Reason: fmt.Sprintf("want 3 parts, got %d", len(parts))}
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil || kind != model.EventKind {
		return model.EventRef{}, &MalformedRefError{Value: s, Reason: "unexpected kind " + strconv.Quote(parts[0])}
	}
	return model.EventRef{Kind: kind, HostPubKey: parts[1], Slug: parts[2]}, nil
}

// Resolve returns the parsed reference of a check-in, distinguishing a
// missing reference (ErrMissingRef) from an unparsable one (ErrMalformedRef).
func Resolve(ci model.CheckInRecord) (model.EventRef, error) {
	if ci.RawRef == "" {
		return model.EventRef{}, ErrMissingRef
	}
	return Parse(ci.RawRef)
}

// String formats r back into its composite form.
func String(r model.EventRef) string {
	return Build(r.HostPubKey, r.Slug)
}
