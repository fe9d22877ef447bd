// Package nwis is a client for the USGS National Water Information System web
// services (https://waterservices.usgs.gov).
//
// A SitesQuery resolves a site-selection ("major") filter such as
// stateCd=ny to site identifiers through the RDB site service. A DataBySites
// query fetches daily or instantaneous values for those sites and Project
// flattens the JSON response into one Record per site and variable.
//
// Filters are passed through to the service unvalidated, apart from the
// requirement that a query carries exactly one major filter. Requests are
// single-shot: nothing is retried, and each query object keeps only the
// response it fetched itself.
package nwis
