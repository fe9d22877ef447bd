package nwis

import (
	"context"
	"fmt"
	"slices"
)

// MajorFilterKeys are the site-selection parameters NWIS accepts. Every
// request must carry exactly one of them.
var MajorFilterKeys = []string{"sites", "stateCd", "huc", "bBox", "countyCd"}

// ValidateMajorFilter checks that major holds exactly one recognized key with
// at least one non-empty value.
func ValidateMajorFilter(major Filters) error {
	if len(major) != 1 {
		return fmt.Errorf("%w: got %d keys", ErrInvalidMajorFilter, len(major))
	}
	for k, v := range major {
		if !slices.Contains(MajorFilterKeys, k) {
			return fmt.Errorf("%w: got %q", ErrInvalidMajorFilter, k)
		}
		if len(v) == 0 || slices.Contains(v, "") {
			return fmt.Errorf("%w: empty value for %q", ErrInvalidMajorFilter, k)
		}
	}
	return nil
}

// SitesQuery resolves a major filter to the matching site identifiers using
// the site service. The first successful fetch is kept; later calls reuse it
// regardless of the minor filters passed.
type SitesQuery struct {
	client *Client
	major  Filters

	requestURL string
	raw        []byte
	doc        *SiteDocument
	sites      []string
}

func NewSitesQuery(client *Client, major Filters) (*SitesQuery, error) {
	if client == nil {
		client = NewClient()
	}
	if err := ValidateMajorFilter(major); err != nil {
		return nil, err
	}
	return &SitesQuery{client: client, major: major.Clone()}, nil
}

// URL returns the site-service URL for minor. The site service only answers
// in RDB, so format=rdb is the default layer.
func (q *SitesQuery) URL(minor Filters) string {
	return buildURL(q.client.ServiceURL(ServiceSite), Filters{"format": {FormatRDB}}, q.major, minor)
}

// Data fetches and parses the site listing. Only a parsed listing is cached;
// after a failure the next call fetches again.
func (q *SitesQuery) Data(ctx context.Context, minor Filters) (*SiteDocument, error) {
	if q.doc != nil {
		return q.doc, nil
	}
	u := q.URL(minor)
	body, err := q.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetch sites: %w", err)
	}
	q.requestURL, q.raw = u, body
	doc, err := ParseRDB(body)
	if err != nil {
		return nil, fmt.Errorf("parse sites: %w", err)
	}
	q.doc = doc
	q.client.logger.Info("nwis sites fetched", "url", q.requestURL, "rows", len(doc.Rows))
	return doc, nil
}

// SiteIDs returns the deduplicated site identifiers matching the query.
func (q *SitesQuery) SiteIDs(ctx context.Context, minor Filters) ([]string, error) {
	if q.sites != nil {
		return q.sites, nil
	}
	doc, err := q.Data(ctx, minor)
	if err != nil {
		return nil, err
	}
	ids, err := ExtractSiteIDs(doc)
	if err != nil {
		return nil, err
	}
	q.sites = ids
	return ids, nil
}

// RequestURL is the URL of the last fetch, or "" before one.
func (q *SitesQuery) RequestURL() string { return q.requestURL }

// Raw is the decompressed body of the last fetch.
func (q *SitesQuery) Raw() []byte { return q.raw }
