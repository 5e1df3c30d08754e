package record

import (
	"bytes"
	"encoding/json"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/ref"
)

// DecodeEvent converts a raw kind 31110 record into an EventRecord.
//
// Missing or malformed tags take their documented defaults and a corrupt
// content payload only empties CustomFields; decoding never fails.
func DecodeEvent(raw model.RawRecord) model.EventRecord {
	ts := index(raw.Tags, eventRules)

	ev := model.EventRecord{
		ID:             raw.ID,
		HostPubKey:     raw.PubKey,
		CreatedAt:      raw.CreatedAt,
		Slug:           ts.get(TagSlug),
		Title:          ts.getOr(TagTitle, model.DefaultEventTitle),
		Description:    ts.get(TagDescription),
		Location:       ts.get(TagLocation),
		Organizer:      ts.get(TagOrganizer),
		ImageURL:       ts.get(TagImage),
		WebsiteURL:     ts.get(TagWebsite),
		Category:       ts.get(TagCategory),
		Credential:     model.ParseCredential(ts.get(TagCredential)),
		Topics:         ts.all(TagTopic),
		StartTime:      intOr(ts.get(TagStart), 0),
		EndTime:        intOr(ts.get(TagEnd), 0),
		RequiredFields: splitList(ts.get(TagReqFields)),
		ImportedFrom:   ts.get(TagImportedID),
	}

	fields, origin := decodeEventContent(raw.Content)
	ev.CustomFields = fields
	if ev.ImportedFrom == "" {
		ev.ImportedFrom = origin
	}
	return ev
}

// importedContent is the content shape of events imported from a calendar.
type importedContent struct {
	OriginalEventID string          `json:"originalEventId"`
	ImportedFrom    any             `json:"importedFrom"`
	CustomFields    json.RawMessage `json:"customFields"`
}

// decodeEventContent extracts custom fields from either content shape: a
// bare array of fields, or an object carrying an importedFrom marker. It
// also returns the original record id for the object shape.
func decodeEventContent(content string) ([]model.CustomField, string) {
	body := bytes.TrimSpace([]byte(content))
	if len(body) == 0 {
		return []model.CustomField{}, ""
	}

	switch body[0] {
	case '[':
		return decodeFieldList(body), ""
	case '{':
		var ic importedContent
		if err := json.Unmarshal(body, &ic); err != nil || !truthy(ic.ImportedFrom) {
			return []model.CustomField{}, ""
		}
		return decodeFieldList(ic.CustomFields), ic.OriginalEventID
	default:
		return []model.CustomField{}, ""
	}
}

// decodeFieldList decodes a JSON array of {name, required}, skipping
// elements that are not objects with a non-empty string name.
func decodeFieldList(body []byte) []model.CustomField {
	out := []model.CustomField{}
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return out
	}
	for _, item := range items {
		var f struct {
			Name     string `json:"name"`
			Required any    `json:"required"`
		}
		if err := json.Unmarshal(item, &f); err != nil || f.Name == "" {
			continue
		}
		out = append(out, model.CustomField{Name: f.Name, Required: truthy(f.Required)})
	}
	return out
}

// truthy mirrors how the publishing clients treat loosely typed JSON flags.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

// DecodeCheckIn converts a raw kind 1110 record into a CheckInRecord.
//
// CheckInTime falls back to the record's CreatedAt when the start tag is
// missing or not numeric. A malformed reference leaves EventRef zero while
// RawRef keeps the published value; see ref.Resolve.
func DecodeCheckIn(raw model.RawRecord) model.CheckInRecord {
	ts := index(raw.Tags, checkInRules)

	ci := model.CheckInRecord{
		ID:             raw.ID,
		AttendeePubKey: raw.PubKey,
		CreatedAt:      raw.CreatedAt,
		RawRef:         ts.get(TagEventRef),
		CheckInTime:    intOr(ts.get(TagStart), raw.CreatedAt),
		Name:           ts.get(TagName),
		Email:          ts.get(TagEmail),
		Location:       ts.get(TagLocation),
		CustomData:     decodeObject(raw.Content),
	}
	if r, err := ref.Parse(ci.RawRef); err == nil {
		ci.EventRef = r
	}
	return ci
}

// decodeObject decodes content as a JSON object, yielding an empty map for
// anything else.
func decodeObject(content string) map[string]any {
	out := map[string]any{}
	body := bytes.TrimSpace([]byte(content))
	if len(body) == 0 || body[0] != '{' {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil || m == nil {
		return out
	}
	return m
}

// DecodeCalendarImport converts a raw kind 31922/31923 record.
//
// Date-based records (31922) carry ISO dates in start/end; they are read as
// UTC midnight. The legacy "name" tag is used when "title" is absent.
func DecodeCalendarImport(raw model.RawRecord) model.CalendarImportRecord {
	ts := index(raw.Tags, calendarRules)

	title := ts.get(TagTitle)
	if title == "" {
		title = ts.getOr(TagName, model.DefaultEventTitle)
	}

	return model.CalendarImportRecord{
		ID:          raw.ID,
		OwnerPubKey: raw.PubKey,
		Kind:        raw.Kind,
		DTag:        ts.get(TagSlug),
		CreatedAt:   raw.CreatedAt,
		Title:       title,
		Description: ts.get(TagDescription),
		StartTime:   calendarTime(raw.Kind, ts.get(TagStart)),
		EndTime:     calendarTime(raw.Kind, ts.get(TagEnd)),
		Location:    ts.get(TagLocation),
		Organizer:   ts.get(TagOrganizer),
		ImageURL:    ts.get(TagImage),
		WebsiteURL:  ts.get(TagWebsite),
		Category:    ts.get(TagCategory),
		Topics:      ts.all(TagTopic),
	}
}

func calendarTime(kind int, v string) int64 {
	if kind == model.CalendarDateKind {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t.Unix()
		}
	}
	return intOr(v, 0)
}

// DecodeEvents decodes every record in order.
func DecodeEvents(raws []model.RawRecord) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, DecodeEvent(r))
	}
	return out
}

// DecodeCheckIns decodes every record in order.
func DecodeCheckIns(raws []model.RawRecord) []model.CheckInRecord {
	out := make([]model.CheckInRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, DecodeCheckIn(r))
	}
	return out
}

// DecodeCalendarImports decodes every record in order.
func DecodeCalendarImports(raws []model.RawRecord) []model.CalendarImportRecord {
	out := make([]model.CalendarImportRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, DecodeCalendarImport(r))
	}
	return out
}
