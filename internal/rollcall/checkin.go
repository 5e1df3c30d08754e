package rollcall

import (
	"context"
	"strings"

	"rollcall/internal/derive"
	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/record"
	"rollcall/internal/ref"
)

// Submission is what an attendee fills in on the check-in form.
type Submission struct {
	Attendee string            `json:"attendee"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Location string            `json:"location"`
	Fields   map[string]string `json:"fields"`

	// CommunityID, when set, asks for a note sharing the check-in with
	// that community.
	CommunityID string `json:"community_id"`
}

// CheckInResult holds the unsigned records an attendee signs to check in.
type CheckInResult struct {
	Template model.RawRecord  `json:"template"`
	Share    *model.RawRecord `json:"share,omitempty"`
}

// PrepareCheckIn validates sub against ev and returns the unsigned kind
// 1110 record for the attendee to sign, plus the kind 1 community share
// when sub.CommunityID is set.
//
// The duplicate check is a pre-check only: two concurrent submissions can
// both pass it. If the pre-check query itself fails the check-in proceeds.
func (s *Service) PrepareCheckIn(ctx context.Context, ev model.EventRecord, sub Submission) (CheckInResult, error) {
	if strings.TrimSpace(sub.Attendee) == "" {
		return CheckInResult{}, ErrMissingAttendee
	}

	now := s.now().Unix()
	if ev.EndTime != 0 && now > ev.EndTime {
		return CheckInResult{}, ErrEventEnded
	}

	values := map[string]string{"name": sub.Name, "email": sub.Email}
	for k, v := range sub.Fields {
		if k != "name" && k != "email" {
			values[k] = v
		}
	}
	if missing := derive.MissingRequired(ev, values); len(missing) > 0 {
		return CheckInResult{}, &MissingFieldsError{Fields: missing}
	}

	done, err := s.HasCheckedIn(ctx, ev, sub.Attendee)
	if err != nil {
		appLog.Error("check-in pre-check failed, continuing", err, "slug", ev.Slug, "attendee", sub.Attendee)
	} else if done {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}

	// Only the event's own custom fields are carried in the content.
	custom := make(map[string]any)
	for _, f := range ev.CustomFields {
		if v := strings.TrimSpace(sub.Fields[f.Name]); v != "" {
			custom[f.Name] = v
		}
	}

	rawRef := ref.BuildFor(ev)
	parsed, _ := ref.Parse(rawRef)
	ci := model.CheckInRecord{
		AttendeePubKey: sub.Attendee,
		CreatedAt:      now,
		RawRef:         rawRef,
		EventRef:       parsed,
		CheckInTime:    now,
		Name:           strings.TrimSpace(sub.Name),
		Email:          strings.TrimSpace(sub.Email),
		Location:       strings.TrimSpace(sub.Location),
		CustomData:     custom,
	}

	appLog.Info("check-in prepared", "slug", ev.Slug, "host", ev.HostPubKey, "attendee", sub.Attendee)
	res := CheckInResult{Template: record.EncodeCheckIn(ci)}
	if community := strings.TrimSpace(sub.CommunityID); community != "" {
		share := record.EncodeAttendanceShare(ev, ci, community)
		res.Share = &share
	}
	return res, nil
}
