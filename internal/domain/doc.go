// Package domain models USGS NWIS time-series data as events for the sinks.
//
// # Data Source
//
// Series come from the NWIS instantaneous-values (iv) or daily-values (dv)
// services at https://waterservices.usgs.gov. Each poll resolves a site
// selection (state, county, HUC, bounding box or explicit site list) to site
// numbers through the site service, fetches the configured parameters for
// those sites, and projects every time series into an nwis.Record.
//
// # NWIS Data Conventions
//
// Site numbers:
//
//	8 to 15 digit strings, e.g. "01358000". Leading zeros are significant, so
//	site numbers are never treated as integers.
//
// Parameter codes:
//
//	Five-digit strings naming the observed variable:
//	  00060  discharge, ft3/s
//	  00065  gage height, ft
//	  00010  water temperature, degC
//
// Timestamps:
//
//	iv points carry the site's UTC offset ("2023-06-01T12:15:00.000-05:00").
//	dv points are dates with no offset and are read in the site's standard
//	zone, so a daily value is anchored at local midnight.
//
// Values and sentinels:
//
//	Values arrive as strings. The variable's noDataValue (usually -999999)
//	and codes such as "Ice", "Eqp" or "Ssn" mark a point without a usable
//	measurement. Such points are kept with Valid=false and their raw string,
//	and are left out of the summary statistics.
//
// Qualifiers:
//
//	Per-point codes with descriptions in the series' qualifier list:
//	"P" provisional, "A" approved, "e" estimated.
//
// # ID Generation
//
// Event IDs are deterministic SHA-256 hashes of
// service|site|parameter|first timestamp|last timestamp|point count, prefixed
// with the site number. Re-polling an unchanged window produces the same ID,
// which makes Kafka compaction and Postgres upserts idempotent. See
// [generateID].
package domain
