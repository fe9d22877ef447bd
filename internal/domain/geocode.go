package domain

import (
	"context"
	"log/slog"
)

// Values of SeriesEvent.GeoSource.
const (
	GeoSourceReverse  = "reverse"
	GeoSourceOriginal = "original"
	GeoSourceFailed   = "failed"
)

// EnrichWithGeocoding adds place details for the site's coordinates. A nil
// geocoder leaves the event untouched; a failed lookup is logged and marked
// in GeoSource, never returned.
func EnrichWithGeocoding(ctx context.Context, event SeriesEvent, geocoder Geocoder, logger *slog.Logger) SeriesEvent {
	if geocoder == nil {
		return event
	}
	if !event.HasCoords() {
		event.GeoSource = GeoSourceOriginal
		return event
	}

	result, err := geocoder.ReverseGeocode(ctx, event.Geo.Lat, event.Geo.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", event.ID,
			"site", event.Site,
			"lat", event.Geo.Lat,
			"lon", event.Geo.Lon,
			"error", err,
		)
		event.GeoSource = GeoSourceFailed
		return event
	}
	if result.FormattedAddress == "" {
		event.GeoSource = GeoSourceOriginal
		return event
	}

	event.FormattedAddress = result.FormattedAddress
	event.PlaceName = result.PlaceName
	event.GeoConfidence = result.Confidence
	event.GeoSource = GeoSourceReverse
	return event
}
