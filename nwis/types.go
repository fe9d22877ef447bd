package nwis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TimeSeriesResponse is the document returned by the dv and iv services with
// format=json. Only the fields this package reads are modeled; pointer fields
// are nil when the service omitted them.
type TimeSeriesResponse struct {
	Name         string         `json:"name"`
	DeclaredType string         `json:"declaredType"`
	Value        *ResponseValue `json:"value"`
}

// ResponseValue wraps the list of time series. TimeSeries is nil when the key
// was absent, which is distinct from an empty result set.
type ResponseValue struct {
	QueryInfo  json.RawMessage `json:"queryInfo,omitempty"`
	TimeSeries []TimeSeries    `json:"timeSeries"`
}

type TimeSeries struct {
	Name       string      `json:"name"`
	SourceInfo *SourceInfo `json:"sourceInfo"`
	Variable   *Variable   `json:"variable"`
	Values     []ValueSet  `json:"values"`
}

type SourceInfo struct {
	SiteName     string        `json:"siteName"`
	SiteCode     []SiteCode    `json:"siteCode"`
	TimeZoneInfo *TimeZoneInfo `json:"timeZoneInfo"`
	GeoLocation  *GeoLocation  `json:"geoLocation"`
}

type SiteCode struct {
	Value      string `json:"value"`
	Network    string `json:"network"`
	AgencyCode string `json:"agencyCode"`
}

type TimeZoneInfo struct {
	DefaultTimeZone      *TimeZone `json:"defaultTimeZone"`
	DaylightSavingsZone  *TimeZone `json:"daylightSavingsTimeZone"`
	SiteUsesDaylightTime bool      `json:"siteUsesDaylightSavingsTime"`
}

type TimeZone struct {
	ZoneOffset       string `json:"zoneOffset"`
	ZoneAbbreviation string `json:"zoneAbbreviation"`
}

type GeoLocation struct {
	GeogLocation *GeogLocation `json:"geogLocation"`
}

type GeogLocation struct {
	SRS       string  `json:"srs"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Variable struct {
	VariableCode        []VariableCode `json:"variableCode"`
	VariableName        string         `json:"variableName"`
	VariableDescription string         `json:"variableDescription"`
	ValueType           string         `json:"valueType"`
	Unit                Unit           `json:"unit"`
	NoDataValue         *float64       `json:"noDataValue"`
	Options             *Options       `json:"options"`
}

// Options carries the variable qualifiers NWIS attaches to a series, such as
// the statistic a daily value was computed with.
type Options struct {
	Option []Option `json:"option"`
}

type Option struct {
	Name       string `json:"name"`
	OptionCode string `json:"optionCode"`
	Value      string `json:"value"`
}

// Statistic returns the statistic code (for example 00003 for mean), or ""
// when the variable carries none.
func (v *Variable) Statistic() string {
	if v == nil || v.Options == nil {
		return ""
	}
	for _, o := range v.Options.Option {
		if o.Name == "Statistic" {
			return o.OptionCode
		}
	}
	return ""
}

type VariableCode struct {
	Value      string `json:"value"`
	Network    string `json:"network"`
	VariableID int    `json:"variableID"`
}

type Unit struct {
	UnitCode string `json:"unitCode"`
}

// ValueSet is one block of points for a series. The services may return
// several (one per method); only the first is projected.
type ValueSet struct {
	Value     []RawPoint  `json:"value"`
	Qualifier []Qualifier `json:"qualifier"`
	Method    []Method    `json:"method"`
}

type RawPoint struct {
	Value      Literal  `json:"value"`
	Qualifiers []string `json:"qualifiers"`
	DateTime   string   `json:"dateTime"`
}

type Qualifier struct {
	QualifierCode        string `json:"qualifierCode"`
	QualifierDescription string `json:"qualifierDescription"`
	QualifierID          int    `json:"qualifierID"`
}

type Method struct {
	MethodDescription string `json:"methodDescription"`
	MethodID          int    `json:"methodID"`
}

// Literal holds a point value as the service sent it. NWIS sends numbers as
// JSON strings ("10.0"), but a bare number or null is accepted too.
type Literal string

func (l *Literal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*l = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Literal(s)
		return nil
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		*l = Literal(b)
		return nil
	default:
		return fmt.Errorf("point value: unexpected JSON %s", b)
	}
}

// DecodeTimeSeries decodes a dv/iv JSON body.
func DecodeTimeSeries(body []byte) (*TimeSeriesResponse, error) {
	var resp TimeSeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodeError{Format: FormatJSON, Err: err}
	}
	return &resp, nil
}
