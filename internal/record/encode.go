package record

import (
	"encoding/json"
	"strconv"
	"strings"

	"rollcall/internal/model"
)

// ImportSource is the importedFrom marker written into imported events.
const ImportSource = "flockstr"

// EncodeEvent builds the unsigned kind 31110 record for ev. Optional tags
// are written only when set.
func EncodeEvent(ev model.EventRecord) model.RawRecord {
	tags := [][]string{
		{TagSlug, ev.Slug},
		{TagTitle, ev.Title},
	}
	add := func(key, val string) {
		if val != "" {
			tags = append(tags, []string{key, val})
		}
	}

	add(TagDescription, ev.Description)
	tags = append(tags, []string{TagStart, strconv.FormatInt(ev.StartTime, 10)})
	if ev.EndTime != 0 {
		tags = append(tags, []string{TagEnd, strconv.FormatInt(ev.EndTime, 10)})
	}
	add(TagLocation, ev.Location)
	add(TagOrganizer, ev.Organizer)
	add(TagImage, ev.ImageURL)
	add(TagWebsite, ev.WebsiteURL)
	add(TagCategory, ev.Category)
	if ev.Credential != "" && ev.Credential != model.CredentialNone {
		add(TagCredential, string(ev.Credential))
	}
	add(TagReqFields, strings.Join(ev.RequiredFields, ","))
	add(TagImportedID, ev.ImportedFrom)
	for _, topic := range ev.Topics {
		add(TagTopic, topic)
	}

	return model.RawRecord{
		ID:        ev.ID,
		PubKey:    ev.HostPubKey,
		CreatedAt: ev.CreatedAt,
		Kind:      model.EventKind,
		Tags:      tags,
		Content:   encodeEventContent(ev),
	}
}

func encodeEventContent(ev model.EventRecord) string {
	fields := ev.CustomFields
	if fields == nil {
		fields = []model.CustomField{}
	}

	var v any = fields
	if ev.ImportedFrom != "" {
		v = struct {
			OriginalEventID string              `json:"originalEventId"`
			ImportedFrom    string              `json:"importedFrom"`
			CustomFields    []model.CustomField `json:"customFields"`
		}{ev.ImportedFrom, ImportSource, fields}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// EncodeCheckIn builds the unsigned kind 1110 record for ci. Content is
// the JSON custom data, or empty when there is none.
func EncodeCheckIn(ci model.CheckInRecord) model.RawRecord {
	tags := [][]string{
		{TagEventRef, ci.RawRef},
		{TagStart, strconv.FormatInt(ci.CheckInTime, 10)},
	}
	if ci.Name != "" {
		tags = append(tags, []string{TagName, ci.Name})
	}
	if ci.Email != "" {
		tags = append(tags, []string{TagEmail, ci.Email})
	}
	if ci.Location != "" {
		tags = append(tags, []string{TagLocation, ci.Location})
	}

	content := ""
	if len(ci.CustomData) > 0 {
		if b, err := json.Marshal(ci.CustomData); err == nil {
			content = string(b)
		}
	}

	return model.RawRecord{
		ID:        ci.ID,
		PubKey:    ci.AttendeePubKey,
		CreatedAt: ci.CreatedAt,
		Kind:      model.CheckInKind,
		Tags:      tags,
		Content:   content,
	}
}
