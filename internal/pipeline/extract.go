package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/couchcryptid/nwis-data-etl/internal/config"
	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// NWISSource discovers sites matching the configured major filter and fetches
// their series in chunks. It implements Extractor.
type NWISSource struct {
	client  *nwis.Client
	cfg     *config.Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewNWISSource(client *nwis.Client, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *NWISSource {
	return &NWISSource{client: client, cfg: cfg, metrics: metrics, logger: logger}
}

// Extract runs one discovery and fetch round. The first failing chunk aborts
// the round so the poll loop can retry it whole.
func (s *NWISSource) Extract(ctx context.Context) ([]domain.FetchedSeries, error) {
	sites, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SitesDiscovered.Set(float64(len(sites)))
	if len(sites) == 0 {
		s.logger.Info("no sites matched", "major_filter", s.cfg.MajorFilter)
		return nil, nil
	}

	service := s.cfg.Service()
	minor := s.cfg.QueryFilters()
	size := s.cfg.SiteChunkSize
	if size < 1 {
		size = len(sites)
	}
	var out []domain.FetchedSeries
	for chunk := range slices.Chunk(sites, size) {
		q, err := nwis.NewDataBySites(s.client, chunk, service, nwis.WithParameterCodes(s.cfg.ParameterCodes...))
		if err != nil {
			return nil, err
		}
		records, err := q.CoreData(ctx, minor)
		if err != nil {
			return nil, fmt.Errorf("sites %s..%s: %w", chunk[0], chunk[len(chunk)-1], err)
		}
		s.logger.Debug("chunk fetched", "sites", len(chunk), "series", len(records), "points", q.PointCount())
		for _, rec := range records {
			out = append(out, domain.FetchedSeries{Service: service, Record: rec})
		}
	}
	return out, nil
}

// discover resolves the major filter to site numbers. An explicit site list
// is used as is; anything else goes through the site service, restricted to
// sites that report the configured service.
func (s *NWISSource) discover(ctx context.Context) ([]string, error) {
	if sites, ok := s.cfg.MajorFilter["sites"]; ok {
		return sites, nil
	}

	q, err := nwis.NewSitesQuery(s.client, s.cfg.MajorFilter)
	if err != nil {
		return nil, err
	}
	minor := s.cfg.SiteFilters.Clone()
	if _, ok := minor["hasDataTypeCd"]; !ok {
		minor.Set("hasDataTypeCd", string(s.cfg.Service()))
	}
	ids, err := q.SiteIDs(ctx, minor)
	if err != nil {
		// The site service answers 404 when nothing matches.
		var statusErr *nwis.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("discover sites: %w", err)
	}
	return ids, nil
}
