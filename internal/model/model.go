package model

import "time"

// Record kinds and timing constants shared with the deployed RollCall clients.
// These must match exactly for interop.
const (
	EventKind        = 31110
	CheckInKind      = 1110
	CalendarDateKind = 31922
	CalendarTimeKind = 31923

	// NoteKind is a plain text note, used for community posts.
	NoteKind = 1

	// GraceWindowSeconds is how long after an event starts a check-in still
	// counts as on time.
	GraceWindowSeconds = 1800

	LookupRetryCount = 1
	LookupRetryDelay = 2000 * time.Millisecond

	DefaultEventTitle = "Untitled Event"
)

// CalendarKinds lists the third-party calendar record kinds eligible for import.
var CalendarKinds = []int{CalendarDateKind, CalendarTimeKind}

// RawRecord is a protocol-level record as delivered by a relay.
type RawRecord struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig,omitempty"`
}

// Credential is the kind of credential an event awards its attendees.
type Credential string

const (
	CredentialNone        Credential = "none"
	CredentialCertificate Credential = "certificate"
	CredentialCredit      Credential = "credit"
	CredentialBadge       Credential = "badge"
)

// ParseCredential maps a tag value to a Credential, defaulting to none.
func ParseCredential(s string) Credential {
	switch c := Credential(s); c {
	case CredentialCertificate, CredentialCredit, CredentialBadge:
		return c
	default:
		return CredentialNone
	}
}

// CustomField is an organizer-defined check-in form field.
type CustomField struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// EventRecord is an organizer-published event (kind 31110).
//
// The pair (HostPubKey, Slug) is the natural key. Edits are published as a
// new record with the same slug; see derive.LatestEvents.
type EventRecord struct {
	ID         string `json:"id"`
	HostPubKey string `json:"host_pubkey"`
	Slug       string `json:"slug"`
	CreatedAt  int64  `json:"created_at"`

	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location,omitempty"`
	Organizer   string     `json:"organizer,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	WebsiteURL  string     `json:"website_url,omitempty"`
	Category    string     `json:"category,omitempty"`
	Credential  Credential `json:"credential"`
	Topics      []string   `json:"topics"`

	// Unix seconds; 0 when unknown.
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`

	RequiredFields []string      `json:"required_fields"`
	CustomFields   []CustomField `json:"custom_fields"`

	// ImportedFrom is the source calendar record id for imported events.
	ImportedFrom string `json:"imported_from,omitempty"`
}

// RequiresField reports whether name is listed in the event's required fields.
func (e EventRecord) RequiresField(name string) bool {
	for _, f := range e.RequiredFields {
		if f == name {
			return true
		}
	}
	return false
}

// EventRef points at an event record by (kind, host, slug).
type EventRef struct {
	Kind       int    `json:"kind"`
	HostPubKey string `json:"host_pubkey"`
	Slug       string `json:"slug"`
}

// CheckInRecord is an attendee-published check-in (kind 1110).
type CheckInRecord struct {
	ID             string `json:"id"`
	AttendeePubKey string `json:"attendee_pubkey"`
	CreatedAt      int64  `json:"created_at"`

	// RawRef is the composite reference string as published; EventRef is
	// its parsed form and is zero when RawRef is missing or malformed.
	RawRef   string   `json:"event_ref"`
	EventRef EventRef `json:"-"`

	CheckInTime int64 `json:"check_in_time"`

	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Location string `json:"location,omitempty"`

	CustomData map[string]any `json:"custom_data"`
}

// CalendarImportRecord is a third-party calendar entry (kinds 31922/31923)
// that an owner may import as an EventRecord.
type CalendarImportRecord struct {
	ID          string   `json:"id"`
	OwnerPubKey string   `json:"owner_pubkey"`
	Kind        int      `json:"kind"`
	DTag        string   `json:"d_tag,omitempty"`
	CreatedAt   int64    `json:"created_at"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartTime   int64    `json:"start_time"`
	EndTime     int64    `json:"end_time,omitempty"`
	Location    string   `json:"location,omitempty"`
	Organizer   string   `json:"organizer,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	WebsiteURL  string   `json:"website_url,omitempty"`
	Category    string   `json:"category,omitempty"`
	Topics      []string `json:"topics"`
}
