package nwis

// Link is a titled reference URL.
type Link struct {
	Title string
	URL   string
}

// UsefulLinks lists the NWIS documentation pages for the parameters accepted
// by the services this package queries.
func UsefulLinks() []Link {
	return []Link{
		{"Site service", "https://waterservices.usgs.gov/rest/Site-Service.html"},
		{"Instantaneous values service", "https://waterservices.usgs.gov/rest/IV-Service.html"},
		{"Daily values service", "https://waterservices.usgs.gov/rest/DV-Service.html"},
		{"Parameter codes", "https://help.waterdata.usgs.gov/codes-and-parameters/parameters"},
		{"Site type codes", "https://help.waterdata.usgs.gov/site_tp_cd"},
		{"State and county codes", "https://help.waterdata.usgs.gov/code/county_query?fmt=html"},
		{"Hydrologic unit codes", "https://help.waterdata.usgs.gov/code/hucs_query?fmt=html"},
	}
}
