package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// ErrNoSite is returned for a record without a site number.
var ErrNoSite = errors.New("record has no site number")

// NewSeriesEvent builds the event for one fetched series and stamps it with
// the current clock time.
func NewSeriesEvent(fs FetchedSeries) (SeriesEvent, error) {
	rec := fs.Record
	if rec.Site == "" {
		return SeriesEvent{}, ErrNoSite
	}

	summary := Summarize(rec.Data)
	e := SeriesEvent{
		Service:     string(fs.Service),
		Site:        rec.Site,
		SiteName:    rec.SiteName,
		Parameter:   rec.ParameterCode,
		Statistic:   rec.Statistic,
		SeriesName:  rec.SeriesName,
		Variable:    rec.Name,
		Description: rec.Description,
		Unit:        rec.Unit,
		TimeZone:    rec.TimeZone,
		Qualifiers:  rec.Qualifiers,
		Points:      rec.Data,
		Summary:     summary,
		FetchedAt:   clock.Now().UTC(),
	}
	if rec.Location != nil {
		e.Geo = Geo{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude, SRS: rec.Location.SRS}
	}
	if e.Points == nil {
		e.Points = []nwis.Point{}
	}
	e.ID = generateID(e.Service, e.Site, e.Parameter, e.Statistic, summary.PeriodStart, summary.PeriodEnd, summary.Points)
	return e, nil
}

// Summarize computes statistics over the valid points. Invalid points count
// toward Points and contribute their raw value to InvalidCodes.
func Summarize(points []nwis.Point) Summary {
	s := Summary{Points: len(points)}
	if len(points) == 0 {
		return s
	}
	s.PeriodStart = points[0].DateTime.UTC()
	s.PeriodEnd = points[len(points)-1].DateTime.UTC()

	var sum float64
	for _, p := range points {
		if !p.Valid || p.Value == nil {
			if p.RawValue != "" && !slices.Contains(s.InvalidCodes, p.RawValue) {
				s.InvalidCodes = append(s.InvalidCodes, p.RawValue)
			}
			continue
		}
		v := *p.Value
		s.ValidPoints++
		sum += v
		if s.Min == nil || v < *s.Min {
			s.Min = ptr(v)
		}
		if s.Max == nil || v > *s.Max {
			s.Max = ptr(v)
		}
		s.Latest = ptr(v)
		at := p.DateTime.UTC()
		s.LatestAt = &at
	}
	if s.ValidPoints > 0 {
		s.Mean = ptr(sum / float64(s.ValidPoints))
	}
	return s
}

// Observations flattens e into one row per point.
func Observations(e SeriesEvent) []Observation {
	out := make([]Observation, 0, len(e.Points))
	for _, p := range e.Points {
		out = append(out, Observation{
			SeriesID:   e.ID,
			Site:       e.Site,
			Parameter:  e.Parameter,
			Statistic:  e.Statistic,
			Service:    e.Service,
			Time:       p.DateTime.UTC(),
			Value:      p.Value,
			RawValue:   p.RawValue,
			Valid:      p.Valid,
			Qualifiers: p.Qualifiers,
			Warning:    p.Warning,
		})
	}
	return out
}

// generateID produces a deterministic ID from the series' identity and
// window. Re-polling an unchanged window yields the same ID.
func generateID(service, site, parameter, statistic string, start, end time.Time, points int) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d", service, site, parameter, statistic,
		start.Format(time.RFC3339), end.Format(time.RFC3339), points)
	hash := sha256.Sum256([]byte(input))
	return site + "-" + hex.EncodeToString(hash[:8])
}

func ptr[T any](v T) *T { return &v }
