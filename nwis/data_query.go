package nwis

import (
	"context"
	"fmt"
	"time"
)

// DefaultParameterCode is discharge in cubic feet per second.
const DefaultParameterCode = "00060"

// DataBySites fetches time series for a fixed list of sites from the daily
// or instantaneous values service. Like SitesQuery it fetches at most once.
type DataBySites struct {
	client  *Client
	service Service
	sites   []string
	options Filters

	requestURL string
	raw        []byte
	data       *TimeSeriesResponse
	core       []Record
}

// DataOption adjusts the filters a DataBySites sends.
type DataOption func(*DataBySites)

// WithDateRange limits the query to [start, end]. The instantaneous service
// takes minutes; the daily service takes dates.
func WithDateRange(start, end time.Time) DataOption {
	return func(q *DataBySites) {
		layout := time.DateOnly
		if q.service == ServiceInstantaneous {
			layout = "2006-01-02T15:04"
		}
		q.options.Set("startDT", start.Format(layout))
		q.options.Set("endDT", end.Format(layout))
	}
}

// WithParameterCodes selects the observed variables, e.g. 00060 and 00065.
func WithParameterCodes(codes ...string) DataOption {
	return func(q *DataBySites) {
		if len(codes) > 0 {
			q.options.Set("parameterCd", codes...)
		}
	}
}

// WithFilters adds arbitrary filters beneath the per-call minor filters.
func WithFilters(f Filters) DataOption {
	return func(q *DataBySites) {
		for k, v := range f {
			q.options.Set(k, append([]string(nil), v...)...)
		}
	}
}

func NewDataBySites(client *Client, sites []string, service Service, opts ...DataOption) (*DataBySites, error) {
	if client == nil {
		client = NewClient()
	}
	if service != ServiceDailyValues && service != ServiceInstantaneous {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, service)
	}
	major := Filters{"sites": append([]string(nil), sites...)}
	if err := ValidateMajorFilter(major); err != nil {
		return nil, err
	}
	q := &DataBySites{
		client:  client,
		service: service,
		sites:   major["sites"],
		options: Filters{"parameterCd": {DefaultParameterCode}},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// URL returns the request URL for minor. Layers apply in order, later
// winning: format=json, sites, constructor options, minor.
func (q *DataBySites) URL(minor Filters) string {
	return buildURL(q.client.ServiceURL(q.service),
		Filters{"format": {FormatJSON}},
		Filters{"sites": q.sites},
		q.options,
		minor,
	)
}

// Data fetches and decodes the time series. Only a decoded response is
// cached; after a failure the next call fetches again.
func (q *DataBySites) Data(ctx context.Context, minor Filters) (*TimeSeriesResponse, error) {
	if q.data != nil {
		return q.data, nil
	}
	u := q.URL(minor)
	body, err := q.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch %s data: %w", q.service, err)
	}
	q.requestURL, q.raw = u, body
	resp, err := DecodeTimeSeries(body)
	if err != nil {
		return nil, err
	}
	q.data = resp
	q.client.logger.Info("nwis data fetched",
		"service", string(q.service),
		"sites", len(q.sites),
		"points", countPoints(resp),
	)
	return resp, nil
}

// CoreData returns the projected records, fetching first when needed.
func (q *DataBySites) CoreData(ctx context.Context, minor Filters) ([]Record, error) {
	if q.core != nil {
		return q.core, nil
	}
	resp, err := q.Data(ctx, minor)
	if err != nil {
		return nil, err
	}
	core, err := Project(resp)
	if err != nil {
		return nil, fmt.Errorf("project %s data: %w", q.service, err)
	}
	q.core = core
	return core, nil
}

// PointCount is the number of points in the fetched response, 0 before a fetch.
func (q *DataBySites) PointCount() int { return countPoints(q.data) }

func (q *DataBySites) Service() Service   { return q.service }
func (q *DataBySites) Sites() []string    { return q.sites }
func (q *DataBySites) RequestURL() string { return q.requestURL }
func (q *DataBySites) Raw() []byte        { return q.raw }

func countPoints(resp *TimeSeriesResponse) int {
	if resp == nil || resp.Value == nil {
		return 0
	}
	n := 0
	for _, ts := range resp.Value.TimeSeries {
		for _, set := range ts.Values {
			n += len(set.Value)
		}
	}
	return n
}
