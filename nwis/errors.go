package nwis

import (
	"errors"
	"fmt"
)

// ErrInvalidMajorFilter is returned when a query is built without exactly one
// site-selection filter.
var ErrInvalidMajorFilter = errors.New("major filter must have exactly one of: sites, stateCd, huc, bBox, countyCd")

// ErrUnsupportedService is returned when a data query targets a service other
// than daily or instantaneous values.
var ErrUnsupportedService = errors.New("unsupported NWIS service")

// TransportError reports that the service could not be reached or the response
// body could not be read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nwis transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-2xx response. Body holds the (decompressed)
// response body, truncated to a diagnostic length.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("nwis returned status %d for %s", e.StatusCode, e.URL)
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

// DecodeError reports a body that could not be decompressed or decoded.
// Format is one of "gzip", "json" or "rdb".
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MalformedResponseError reports a well-formed document that lacks a field the
// projection depends on. Index is the time-series position, or -1 when the
// missing field is at document level.
type MalformedResponseError struct {
	Index int
	Field string
}

func (e *MalformedResponseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed response: missing %s", e.Field)
	}
	return fmt.Sprintf("malformed response: time series %d missing %s", e.Index, e.Field)
}

// DateParseError reports a timestamp that matches none of the NWIS layouts.
type DateParseError struct {
	Value string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("parse NWIS date %q: unrecognized layout", e.Value)
}
