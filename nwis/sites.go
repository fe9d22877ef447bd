package nwis

// SiteIDColumn is the RDB column carrying the site identifier.
const SiteIDColumn = "site_no"

// ExtractSiteIDs returns the site identifiers in doc, in document order with
// repeats removed. A nil document, or one without a site_no column, is a
// *MalformedResponseError; the service answers some errors with a comment-only
// body that parses to no columns.
func ExtractSiteIDs(doc *SiteDocument) ([]string, error) {
	if doc == nil || !doc.Column(SiteIDColumn) {
		return nil, &MalformedResponseError{Index: -1, Field: SiteIDColumn}
	}
	seen := make(map[string]struct{}, len(doc.Rows))
	ids := make([]string, 0, len(doc.Rows))
	for _, row := range doc.Rows {
		id := row[SiteIDColumn]
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
