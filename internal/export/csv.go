// Package export writes attendance lists for organizers.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"rollcall/internal/model"
)

// ErrNoAttendees is returned when there is nothing to export.
var ErrNoAttendees = errors.New("no attendees to export")

// WriteAttendance writes the full attendance sheet: timestamp, public key,
// name, email, then one column per custom field in first-seen order. Every
// cell, header included, is quoted.
func WriteAttendance(w io.Writer, checkIns []model.CheckInRecord) error {
	if len(checkIns) == 0 {
		return ErrNoAttendees
	}

	fields := customColumns(checkIns)
	bw := bufio.NewWriter(w)

	header := append([]string{"Timestamp", "Public Key", "Name", "Email"}, fields...)
	writeQuoted(bw, header)

	for _, ci := range checkIns {
		row := []string{
			time.Unix(ci.CheckInTime, 0).UTC().Format(time.RFC3339),
			ci.AttendeePubKey,
			ci.Name,
			ci.Email,
		}
		for _, f := range fields {
			if v, ok := ci.CustomData[f]; ok && v != nil {
				row = append(row, fmt.Sprint(v))
			} else {
				row = append(row, "")
			}
		}
		bw.WriteByte('\n')
		writeQuoted(bw, row)
	}
	return bw.Flush()
}

func writeQuoted(bw *bufio.Writer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString(`"` + strings.ReplaceAll(cell, `"`, `""`) + `"`)
	}
}

// customColumns lists custom data keys in the order they first appear.
// Keys of a single check-in are taken alphabetically.
func customColumns(checkIns []model.CheckInRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ci := range checkIns {
		keys := make([]string, 0, len(ci.CustomData))
		for k := range ci.CustomData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// WriteSummary writes the short attendance list: name, email, local
// check-in time and location.
func WriteSummary(w io.Writer, checkIns []model.CheckInRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "Email", "Check-in Time", "Location"}); err != nil {
		return err
	}
	for _, ci := range checkIns {
		name := ci.Name
		if name == "" {
			name = "Anonymous"
		}
		err := cw.Write([]string{
			name,
			ci.Email,
			time.Unix(ci.CheckInTime, 0).In(loc).Format(time.DateTime),
			ci.Location,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName is the download name of the full attendance sheet.
func FileName(title string) string {
	return whitespace.ReplaceAllString(title, "_") + "_attendance.csv"
}

// SummaryFileName is the download name of the summary list.
func SummaryFileName(slug string, now time.Time) string {
	return "attendance-" + slug + "-" + now.UTC().Format(time.DateOnly) + ".csv"
}
