// Package derive computes presentation-ready facts from decoded records.
//
// Every function here is pure: the reference time is always passed in and
// malformed values (negative timestamps, zero end times) are propagated as-is.
package derive

import "rollcall/internal/model"

// Status is the lifecycle state of an event relative to a reference time.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// EventStatus reports Upcoming before StartTime, Ended after EndTime and
// Active otherwise; both boundaries count as Active.
func EventStatus(ev model.EventRecord, now int64) Status {
	switch {
	case now < ev.StartTime:
		return StatusUpcoming
	case now > ev.EndTime:
		return StatusEnded
	default:
		return StatusActive
	}
}

// Timing classifies a check-in against its event's start.
type Timing string

const (
	TimingEarly  Timing = "early"
	TimingOnTime Timing = "on_time"
	TimingLate   Timing = "late"
)

// TimingBucket is Early before eventStart, OnTime within the inclusive
// grace window after it, and Late afterwards.
func TimingBucket(checkInTime, eventStart int64) Timing {
	switch {
	case checkInTime < eventStart:
		return TimingEarly
	case checkInTime <= eventStart+model.GraceWindowSeconds:
		return TimingOnTime
	default:
		return TimingLate
	}
}

// CheckInRate is total/expected as a percentage, or 0 when nothing is
// expected. Over-attendance yields values above 100.
func CheckInRate(total, expected int) float64 {
	if expected <= 0 {
		return 0
	}
	return 100 * float64(total) / float64(expected)
}
