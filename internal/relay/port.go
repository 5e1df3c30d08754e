package relay

import (
	"context"

	"rollcall/internal/model"
)

// QueryPort answers relay queries. Implementations own timeouts and
// network errors; an empty result with a nil error means nothing matched.
type QueryPort interface {
	Query(ctx context.Context, filters ...model.Filter) ([]model.RawRecord, error)
}

// Publisher publishes a record, signing it first when it is unsigned, and
// returns the record as published.
type Publisher interface {
	Publish(ctx context.Context, rec model.RawRecord) (model.RawRecord, error)
	// PubKey is the identity records are signed with, empty if none.
	PubKey() string
}
