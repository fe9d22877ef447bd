package nwis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNWIS serves the site service from site_ny.rdb and the dv/iv services
// from the named JSON fixture, counting requests per path.
type fakeNWIS struct {
	*httptest.Server
	siteHits atomic.Int32
	dataHits atomic.Int32
	lastURL  atomic.Value
}

func newFakeNWIS(t *testing.T, dataFixture string) *fakeNWIS {
	t.Helper()
	sites := loadFixture(t, "site_ny.rdb")
	data := loadFixture(t, dataFixture)

	f := &fakeNWIS{}
	mux := http.NewServeMux()
	mux.HandleFunc("/site/", func(w http.ResponseWriter, r *http.Request) {
		f.siteHits.Add(1)
		f.lastURL.Store(r.URL.String())
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(gzipBytes(t, sites))
	})
	serveData := func(w http.ResponseWriter, r *http.Request) {
		f.dataHits.Add(1)
		f.lastURL.Store(r.URL.String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
	mux.HandleFunc("/dv/", serveData)
	mux.HandleFunc("/iv/", serveData)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func TestValidateMajorFilter(t *testing.T) {
	tests := []struct {
		name    string
		major   Filters
		wantErr bool
	}{
		{"state", Filters{"stateCd": {"ny"}}, false},
		{"sites", Filters{"sites": {"01646500", "01638500"}}, false},
		{"bbox", Filters{"bBox": {"-83", "36.5", "-81", "38.5"}}, false},
		{"empty", Filters{}, true},
		{"two keys", Filters{"stateCd": {"ny"}, "huc": {"02"}}, true},
		{"minor key", Filters{"period": {"P1D"}}, true},
		{"no values", Filters{"sites": {}}, true},
		{"blank value", Filters{"countyCd": {""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMajorFilter(tt.major)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMajorFilter)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSitesQuery_SiteIDs(t *testing.T) {
	srv := newFakeNWIS(t, "dv_07315525.json")
	c := NewClient(WithRoot(srv.URL))

	q, err := NewSitesQuery(c, Filters{"stateCd": {"ny"}})
	require.NoError(t, err)

	ids, err := q.SiteIDs(context.Background(), Filters{"siteType": {"ST"}, "siteStatus": {"active"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"01357500", "01358000", "01362500"}, ids)

	_, params := parseQuery(t, srv.URL+srv.lastURL.Load().(string))
	assert.Equal(t, "rdb", params.Get("format"))
	assert.Equal(t, "ny", params.Get("stateCd"))
	assert.Equal(t, "ST", params.Get("siteType"))
	assert.Equal(t, srv.URL+srv.lastURL.Load().(string), q.RequestURL())
	assert.NotEmpty(t, q.Raw())

	// Second call is served from the query's own copy.
	_, err = q.SiteIDs(context.Background(), nil)
	require.NoError(t, err)
	_, err = q.Data(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.siteHits.Load())
}

func TestSitesQuery_InvalidMajorFilter(t *testing.T) {
	_, err := NewSitesQuery(nil, Filters{"siteType": {"ST"}})
	require.ErrorIs(t, err, ErrInvalidMajorFilter)
}

func TestSitesQuery_FetchErrorNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("site_no\n15s\n0001\n"))
	}))
	defer srv.Close()

	q, err := NewSitesQuery(NewClient(WithRoot(srv.URL)), Filters{"huc": {"02"}})
	require.NoError(t, err)

	_, err = q.SiteIDs(context.Background(), nil)
	var hse *HTTPStatusError
	require.ErrorAs(t, err, &hse)
	assert.Empty(t, q.RequestURL())

	ids, err := q.SiteIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001"}, ids)
}

func TestSitesQuery_UnparseableListingNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte("site_no\n15s\n0001\textra\n"))
			return
		}
		_, _ = w.Write([]byte("site_no\n15s\n0002\n"))
	}))
	defer srv.Close()

	q, err := NewSitesQuery(NewClient(WithRoot(srv.URL)), Filters{"huc": {"02"}})
	require.NoError(t, err)

	_, err = q.SiteIDs(context.Background(), nil)
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	ids, err := q.SiteIDs(context.Background(), Filters{"siteType": {"ST"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"0002"}, ids)
	assert.Equal(t, int32(2), hits.Load())
	assert.Contains(t, q.RequestURL(), "siteType=ST")
}

func TestDataBySites_UndecodableBodyNotCached(t *testing.T) {
	good := loadFixture(t, "dv_07315525.json")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
			return
		}
		_, _ = w.Write(good)
	}))
	defer srv.Close()

	q, err := NewDataBySites(NewClient(WithRoot(srv.URL)), []string{"07315525"}, ServiceDailyValues)
	require.NoError(t, err)

	_, err = q.CoreData(context.Background(), nil)
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	records, err := q.CoreData(context.Background(), Filters{"statCd": {"00003"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, good, q.Raw())
}

func TestDataBySites_CoreData(t *testing.T) {
	srv := newFakeNWIS(t, "dv_07315525.json")
	c := NewClient(WithRoot(srv.URL))

	q, err := NewDataBySites(c, []string{"07315525"}, ServiceDailyValues,
		WithDateRange(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2023, 6, 3, 0, 0, 0, 0, time.UTC)),
	)
	require.NoError(t, err)
	assert.Zero(t, q.PointCount())

	records, err := q.CoreData(context.Background(), Filters{"statCd": {"00003"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "07315525", records[0].Site)
	assert.Equal(t, []float64{10.0, 12.5, 9.8}, records[0].Values())
	assert.Equal(t, 3, q.PointCount())

	_, params := parseQuery(t, q.RequestURL())
	assert.Equal(t, "json", params.Get("format"))
	assert.Equal(t, "07315525", params.Get("sites"))
	assert.Equal(t, DefaultParameterCode, params.Get("parameterCd"))
	assert.Equal(t, "2023-06-01", params.Get("startDT"))
	assert.Equal(t, "2023-06-03", params.Get("endDT"))
	assert.Equal(t, "00003", params.Get("statCd"))

	_, err = q.CoreData(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.dataHits.Load())
}

func TestDataBySites_URLLayering(t *testing.T) {
	c := NewClient(WithRoot("http://nwis.test"))
	q, err := NewDataBySites(c, []string{"01358000", "01357500"}, ServiceInstantaneous,
		WithParameterCodes("00060", "00065"),
		WithDateRange(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC), time.Date(2023, 6, 1, 18, 30, 0, 0, time.UTC)),
		WithFilters(Filters{"siteStatus": {"active"}}),
	)
	require.NoError(t, err)

	base, params := parseQuery(t, q.URL(Filters{"parameterCd": {"00010"}}))
	assert.Equal(t, "http://nwis.test/iv/", base)
	assert.Equal(t, "01358000,01357500", params.Get("sites"))
	assert.Equal(t, "00010", params.Get("parameterCd"), "minor filters win")
	assert.Equal(t, "2023-06-01T12:00", params.Get("startDT"))
	assert.Equal(t, "2023-06-01T18:30", params.Get("endDT"))
	assert.Equal(t, "active", params.Get("siteStatus"))
}

func TestNewDataBySites_Validation(t *testing.T) {
	_, err := NewDataBySites(nil, []string{"01"}, ServiceSite)
	require.ErrorIs(t, err, ErrUnsupportedService)

	_, err = NewDataBySites(nil, nil, ServiceDailyValues)
	require.ErrorIs(t, err, ErrInvalidMajorFilter)
}

func TestDataBySites_MalformedResponse(t *testing.T) {
	srv := newFakeNWIS(t, "missing_source_info.json")
	q, err := NewDataBySites(NewClient(WithRoot(srv.URL)), []string{"01000000"}, ServiceDailyValues)
	require.NoError(t, err)

	_, err = q.CoreData(context.Background(), nil)
	var mre *MalformedResponseError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, 1, mre.Index)

	// The decoded response stays cached for inspection.
	data, err := q.Data(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, data.Value.TimeSeries, 2)
}

func TestUsefulLinks(t *testing.T) {
	links := UsefulLinks()
	require.NotEmpty(t, links)
	for _, l := range links {
		assert.NotEmpty(t, l.Title)
		assert.Contains(t, l.URL, "usgs.gov")
	}
}
