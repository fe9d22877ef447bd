package nwis

import (
	"maps"
	"net/url"
	"strings"
)

// DefaultRoot is the base of every NWIS web service endpoint.
const DefaultRoot = "https://waterservices.usgs.gov/nwis"

// Output formats understood by this package.
const (
	FormatJSON = "json"
	FormatRDB  = "rdb"
)

// Service names an NWIS web service.
type Service string

const (
	ServiceDailyValues   Service = "dv"
	ServiceInstantaneous Service = "iv"
	ServiceSite          Service = "site"
)

// ServiceURL joins root and service into the service's base endpoint,
// e.g. https://waterservices.usgs.gov/nwis/dv/.
func ServiceURL(root string, s Service) string {
	return strings.TrimRight(root, "/") + "/" + string(s) + "/"
}

// Filters maps NWIS query parameter names to their values. Keys are passed to
// the service verbatim; multiple values are sent comma-joined, which is how
// NWIS accepts lists (sites=01646500,01638500).
type Filters map[string][]string

// Set replaces the values for key and returns f for chaining.
func (f Filters) Set(key string, values ...string) Filters {
	f[key] = values
	return f
}

// Get returns the comma-joined value for key, or "" when unset.
func (f Filters) Get(key string) string {
	return strings.Join(f[key], ",")
}

// Clone returns a deep copy of f.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Merge returns a new Filters holding f overlaid by other; keys in other win.
func (f Filters) Merge(other Filters) Filters {
	out := f.Clone()
	maps.Copy(out, other.Clone())
	return out
}

// BuildURL renders baseURL with the merged major and minor filters. format=json
// is applied first so either filter set can override it, major filters next,
// and minor filters last (a key present in both sets takes the minor value).
// Keys are not validated; the service is the authority on parameter names.
func BuildURL(baseURL string, major, minor Filters) string {
	return buildURL(baseURL, Filters{"format": {FormatJSON}}, major, minor)
}

// buildURL applies each layer in order, later layers overwriting earlier ones.
// url.Values.Encode percent-encodes values and sorts keys, so the output is
// deterministic for a given input.
func buildURL(baseURL string, layers ...Filters) string {
	params := url.Values{}
	for _, layer := range layers {
		for k, v := range layer {
			params.Set(k, strings.Join(v, ","))
		}
	}
	base := strings.TrimRight(baseURL, "?&")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params.Encode()
}
