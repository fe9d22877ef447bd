package nwis

import (
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the timestamp layout of the NWIS JSON services: ISO-8601
// with milliseconds and a numeric UTC offset, e.g. 2023-06-01T12:15:00.000-05:00.
const DateTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// localLayouts are the offset-less forms the services also emit (daily values
// carry no offset). Each is matched by exact length.
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDateTime parses an NWIS timestamp. DateTimeLayout is tried first, then
// RFC 3339 with any (or no) fractional seconds, then the offset-less layouts.
// The offset of the input is kept on the returned time; offset-less inputs are
// read as UTC.
func ParseDateTime(s string) (time.Time, error) {
	return ParseDateTimeIn(s, time.UTC)
}

// ParseDateTimeIn is ParseDateTime with offset-less inputs read in loc.
func ParseDateTimeIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(DateTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &DateParseError{Value: s}
}

// FormatDateTime renders t in DateTimeLayout, the inverse of ParseDateTime.
func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// zoneFromOffset converts a "-05:00" style offset into a fixed zone named
// abbr. ok is false when offset is empty or malformed.
func zoneFromOffset(offset, abbr string) (loc *time.Location, ok bool) {
	offset = strings.TrimSpace(offset)
	if len(offset) != 6 || offset[3] != ':' || (offset[0] != '+' && offset[0] != '-') {
		return nil, false
	}
	hours, errH := strconv.Atoi(offset[1:3])
	mins, errM := strconv.Atoi(offset[4:6])
	if errH != nil || errM != nil || hours > 14 || mins > 59 {
		return nil, false
	}
	secs := hours*3600 + mins*60
	if offset[0] == '-' {
		secs = -secs
	}
	if abbr == "" {
		abbr = offset
	}
	return time.FixedZone(abbr, secs), true
}
