package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
)

// SeriesTransformer implements Transformer using domain transform functions
// with optional geocoding enrichment.
type SeriesTransformer struct {
	geocoder domain.Geocoder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewTransformer creates a SeriesTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, metrics *observability.Metrics, logger *slog.Logger) *SeriesTransformer {
	return &SeriesTransformer{
		geocoder: geocoder,
		metrics:  metrics,
		logger:   logger,
	}
}

func (t *SeriesTransformer) Transform(ctx context.Context, fs domain.FetchedSeries) (domain.SeriesEvent, error) {
	event, err := domain.NewSeriesEvent(fs)
	if err != nil {
		return domain.SeriesEvent{}, err
	}

	for _, p := range event.Points {
		if !p.Valid {
			t.metrics.InvalidPoints.WithLabelValues(p.Warning).Inc()
		}
	}

	return domain.EnrichWithGeocoding(ctx, event, t.geocoder, t.logger), nil
}
