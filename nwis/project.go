package nwis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Warnings attached to points whose value could not be used.
const (
	WarnNonNumeric = "non-numeric value"
	WarnNoData     = "no-data sentinel"
)

// Record is the core projection of one time series: a single site and
// variable with its ordered points. One site and parameter may appear in
// several records that differ by Statistic.
type Record struct {
	Site          string            `json:"site"`
	SiteName      string            `json:"site_name"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Unit          string            `json:"unit"`
	ParameterCode string            `json:"parameter_code,omitempty"`
	Statistic     string            `json:"statistic,omitempty"`
	SeriesName    string            `json:"series_name,omitempty"`
	Location      *Location         `json:"location,omitempty"`
	TimeZone      string            `json:"time_zone,omitempty"`
	Qualifiers    map[string]string `json:"qualifiers,omitempty"`
	Data          []Point           `json:"data"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	SRS       string  `json:"srs,omitempty"`
}

// Point is one observation. Value is nil when the raw literal was not a usable
// number; RawValue always holds what the service sent.
type Point struct {
	DateTime    time.Time `json:"date_time"`
	RawDateTime string    `json:"raw_date_time"`
	Value       *float64  `json:"value"`
	RawValue    string    `json:"raw_value"`
	Valid       bool      `json:"valid"`
	Qualifiers  []string  `json:"qualifiers"`
	Warning     string    `json:"warning,omitempty"`
}

// Project flattens resp into one Record per time series, in response order.
// Only the first value set of each series is read.
//
// A series missing sourceInfo, variable or values fails the whole projection
// with a *MalformedResponseError. An unparseable timestamp also fails it, with
// the *DateParseError wrapped. Non-numeric values and the variable's no-data
// sentinel do not fail; the point is kept with Valid false.
func Project(resp *TimeSeriesResponse) ([]Record, error) {
	if resp == nil || resp.Value == nil {
		return nil, &MalformedResponseError{Index: -1, Field: "value"}
	}
	if resp.Value.TimeSeries == nil {
		return nil, &MalformedResponseError{Index: -1, Field: "value.timeSeries"}
	}

	records := make([]Record, 0, len(resp.Value.TimeSeries))
	for i := range resp.Value.TimeSeries {
		rec, err := projectSeries(i, &resp.Value.TimeSeries[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func projectSeries(idx int, ts *TimeSeries) (Record, error) {
	switch {
	case ts.SourceInfo == nil:
		return Record{}, &MalformedResponseError{Index: idx, Field: "sourceInfo"}
	case ts.Variable == nil:
		return Record{}, &MalformedResponseError{Index: idx, Field: "variable"}
	case len(ts.Values) == 0:
		return Record{}, &MalformedResponseError{Index: idx, Field: "values"}
	case len(ts.SourceInfo.SiteCode) == 0:
		return Record{}, &MalformedResponseError{Index: idx, Field: "sourceInfo.siteCode"}
	}

	src, v, set := ts.SourceInfo, ts.Variable, ts.Values[0]

	rec := Record{
		Site:        src.SiteCode[0].Value,
		SiteName:    src.SiteName,
		Name:        v.VariableName,
		Description: v.VariableDescription,
		Unit:        v.Unit.UnitCode,
		Statistic:   v.Statistic(),
		SeriesName:  ts.Name,
		Data:        make([]Point, 0, len(set.Value)),
	}
	if len(v.VariableCode) > 0 {
		rec.ParameterCode = v.VariableCode[0].Value
	}
	if src.GeoLocation != nil && src.GeoLocation.GeogLocation != nil {
		g := src.GeoLocation.GeogLocation
		rec.Location = &Location{Latitude: g.Latitude, Longitude: g.Longitude, SRS: g.SRS}
	}

	loc := time.UTC
	if tz := src.TimeZoneInfo; tz != nil && tz.DefaultTimeZone != nil {
		rec.TimeZone = tz.DefaultTimeZone.ZoneOffset
		if z, ok := zoneFromOffset(tz.DefaultTimeZone.ZoneOffset, tz.DefaultTimeZone.ZoneAbbreviation); ok {
			loc = z
		}
	}

	if len(set.Qualifier) > 0 {
		rec.Qualifiers = make(map[string]string, len(set.Qualifier))
		for _, q := range set.Qualifier {
			rec.Qualifiers[q.QualifierCode] = q.QualifierDescription
		}
	}

	for j, raw := range set.Value {
		p, err := projectPoint(raw, loc, v.NoDataValue)
		if err != nil {
			return Record{}, fmt.Errorf("time series %d point %d: %w", idx, j, err)
		}
		rec.Data = append(rec.Data, p)
	}
	return rec, nil
}

func projectPoint(raw RawPoint, loc *time.Location, noData *float64) (Point, error) {
	t, err := ParseDateTimeIn(raw.DateTime, loc)
	if err != nil {
		return Point{}, err
	}
	p := Point{
		DateTime:    t,
		RawDateTime: raw.DateTime,
		RawValue:    string(raw.Value),
		Qualifiers:  raw.Qualifiers,
	}
	if p.Qualifiers == nil {
		p.Qualifiers = []string{}
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(string(raw.Value)), 64)
	switch {
	case err != nil || math.IsNaN(f) || math.IsInf(f, 0):
		p.Warning = WarnNonNumeric
	case noData != nil && f == *noData:
		p.Warning = WarnNoData
	default:
		p.Value = &f
		p.Valid = true
	}
	return p, nil
}

// Values returns the numeric values of r's valid points, in order.
func (r Record) Values() []float64 {
	out := make([]float64, 0, len(r.Data))
	for _, p := range r.Data {
		if p.Valid {
			out = append(out, *p.Value)
		}
	}
	return out
}
