package record

import (
	"fmt"
	"strings"
	"time"

	"rollcall/internal/model"
	"rollcall/internal/ref"
)

// Topic tags carried by community posts.
const (
	TopicRollCall   = "rollcall"
	TopicAttendance = "event-attendance"
	TopicCheckIn    = "checkin"
	TopicProposal   = "event-proposal"
)

// EncodeAttendanceShare builds the unsigned kind 1 note announcing ci to the
// community communityID. ev is the event checked in to.
func EncodeAttendanceShare(ev model.EventRecord, ci model.CheckInRecord, communityID string) model.RawRecord {
	var name, email string
	if ci.Name != "" {
		name = "👋 **Name**: " + ci.Name
	}
	if ci.Email != "" {
		email = "📧 **Email**: " + ci.Email
	}

	body := fmt.Sprintf(`✅ **Just checked in to: %[1]s**

📅 **Event**: %[1]s
📍 **Location**: %[2]s
👤 **Organizer**: %[3]s

%[4]s
%[5]s

🎉 Excited to attend this event!

#rollcall #event-attendance #checkin`, ev.Title, orTBD(ev.Location), orTBD(ev.Organizer), name, email)

	return model.RawRecord{
		PubKey:    ci.AttendeePubKey,
		CreatedAt: ci.CreatedAt,
		Kind:      model.NoteKind,
		Tags: [][]string{
			{TagEventRef, communityID},
			{TagTopic, TopicAttendance},
			{TagTopic, TopicRollCall},
			{TagTopic, TopicCheckIn},
			{TagEventLink, ref.BuildFor(ev)},
		},
		Content: body,
	}
}

// EncodeEventProposal builds the unsigned kind 1 note proposing ev to the
// community communityID. link is the public check-in page of the event and
// may be empty. The start date is rendered in loc.
func EncodeEventProposal(ev model.EventRecord, communityID, link string, loc *time.Location) model.RawRecord {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎉 **Event Proposal: %s**\n\n", ev.Title)
	fmt.Fprintf(&b, "📅 **Date**: %s\n", time.Unix(ev.StartTime, 0).In(loc).Format("January 2, 2006"))
	fmt.Fprintf(&b, "📍 **Location**: %s\n", orTBD(ev.Location))
	fmt.Fprintf(&b, "👤 **Organizer**: %s\n\n", orTBD(ev.Organizer))
	if ev.Description != "" {
		fmt.Fprintf(&b, "📝 **Description**: %s\n", ev.Description)
	}
	b.WriteString("\n")
	if link != "" {
		fmt.Fprintf(&b, "🔗 **Event Link**: %s\n\n", link)
	}
	b.WriteString("This event has been created in RollCall and is ready for check-ins!\n\n")
	b.WriteString("#event-proposal #rollcall")

	return model.RawRecord{
		PubKey:    ev.HostPubKey,
		CreatedAt: ev.CreatedAt,
		Kind:      model.NoteKind,
		Tags: [][]string{
			{TagEventRef, communityID},
			{TagTopic, TopicProposal},
			{TagTopic, TopicRollCall},
			{TagEventLink, ref.BuildFor(ev)},
		},
		Content: b.String(),
	}
}

func orTBD(s string) string {
	if s == "" {
		return "TBD"
	}
	return s
}
