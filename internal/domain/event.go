package domain

import (
	"time"

	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// FetchedSeries is one projected record together with the service that
// produced it.
type FetchedSeries struct {
	Service nwis.Service
	Record  nwis.Record
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
	SRS string  `json:"srs,omitempty"`
}

// Summary holds statistics over the valid points of a series.
type Summary struct {
	Points       int        `json:"points"`
	ValidPoints  int        `json:"valid_points"`
	Min          *float64   `json:"min,omitempty"`
	Max          *float64   `json:"max,omitempty"`
	Mean         *float64   `json:"mean,omitempty"`
	Latest       *float64   `json:"latest,omitempty"`
	LatestAt     *time.Time `json:"latest_at,omitempty"`
	PeriodStart  time.Time  `json:"period_start"`
	PeriodEnd    time.Time  `json:"period_end"`
	InvalidCodes []string   `json:"invalid_codes,omitempty"`
}

// SeriesEvent is one site, parameter and statistic over the polled window,
// the unit written to the sinks.
type SeriesEvent struct {
	ID          string            `json:"id"`
	Service     string            `json:"service"`
	Site        string            `json:"site"`
	SiteName    string            `json:"site_name"`
	Parameter   string            `json:"parameter"`
	Statistic   string            `json:"statistic,omitempty"`
	SeriesName  string            `json:"series_name,omitempty"`
	Variable    string            `json:"variable"`
	Description string            `json:"description"`
	Unit        string            `json:"unit"`
	TimeZone    string            `json:"time_zone,omitempty"`
	Geo         Geo               `json:"geo,omitempty"`
	Qualifiers  map[string]string `json:"qualifiers,omitempty"`
	Points      []nwis.Point      `json:"points"`
	Summary     Summary           `json:"summary"`

	// Geocoding enrichment fields.
	FormattedAddress string  `json:"formatted_address,omitempty"`
	PlaceName        string  `json:"place_name,omitempty"`
	GeoConfidence    float64 `json:"geo_confidence,omitempty"`
	GeoSource        string  `json:"geo_source,omitempty"` // "reverse", "original", "failed"

	FetchedAt time.Time `json:"fetched_at"`
}

// HasCoords reports whether the site location is known.
func (e SeriesEvent) HasCoords() bool {
	return e.Geo.Lat != 0 || e.Geo.Lon != 0
}

// Observation is one point flattened for row-oriented sinks.
type Observation struct {
	SeriesID   string
	Site       string
	Parameter  string
	Statistic  string
	Service    string
	Time       time.Time
	Value      *float64
	RawValue   string
	Valid      bool
	Qualifiers []string
	Warning    string
}
