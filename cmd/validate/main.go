// Command validate checks fixtures produced by nwisfixture against the NWIS
// response they came from. It re-projects the saved response, verifies point
// invariants, compares the records and events fixtures field by field, and
// optionally cross-checks series sites against a saved site-service listing.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -in iv_ny.json -service iv \
//	  -records data/mock/iv_ny_records.json \
//	  -events data/mock/iv_ny_events.json \
//	  -sites site_ny.rdb
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// fixtureTime matches nwisfixture so event IDs and FetchedAt compare equal.
var fixtureTime = time.Date(2023, time.June, 1, 18, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type inputs struct {
	response string
	service  nwis.Service
	records  string
	events   string
	sites    string
}

func main() {
	var in inputs
	var service string
	flag.StringVar(&in.response, "in", "", "saved NWIS JSON response")
	flag.StringVar(&service, "service", "iv", "service the response came from: dv or iv")
	flag.StringVar(&in.records, "records", "", "records fixture written by nwisfixture")
	flag.StringVar(&in.events, "events", "", "events fixture written by nwisfixture (optional)")
	flag.StringVar(&in.sites, "sites", "", "saved site-service RDB listing (optional)")
	flag.Parse()
	in.service = nwis.Service(service)

	if in.response == "" || in.records == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, in))
}

func run(out io.Writer, in inputs) int {
	fmt.Fprintln(out, "=== NWIS Fixture Validation ===")

	body, err := os.ReadFile(in.response)
	if err != nil {
		fmt.Fprintf(out, "FATAL: read response: %v\n", err)
		return 1
	}
	resp, err := nwis.DecodeTimeSeries(body)
	if err != nil {
		fmt.Fprintf(out, "FATAL: %v\n", err)
		return 1
	}
	projected, err := nwis.Project(resp)
	if err != nil {
		fmt.Fprintf(out, "FATAL: project response: %v\n", err)
		return 1
	}
	records, err := loadJSON[nwis.Record](in.records)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load records fixture: %v\n", err)
		return 1
	}

	phases := []*phase{
		validatePoints(projected),
		validateRecords(records, projected),
	}
	if in.events != "" {
		events, err := loadJSON[domain.SeriesEvent](in.events)
		if err != nil {
			fmt.Fprintf(out, "FATAL: load events fixture: %v\n", err)
			return 1
		}
		phases = append(phases, validateEvents(events, projected, in.service))
	}
	if in.sites != "" {
		rdb, err := os.ReadFile(in.sites)
		if err != nil {
			fmt.Fprintf(out, "FATAL: read site listing: %v\n", err)
			return 1
		}
		phases = append(phases, validateSites(rdb, projected))
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}
	fmt.Fprintf(out, "\nSeries: %d projected, %d in records fixture\n", len(projected), len(records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Phases ──

// validatePoints checks the projection invariants on every point.
func validatePoints(records []nwis.Record) *phase {
	p := &phase{name: "Point invariants"}
	for i, rec := range records {
		if rec.Site == "" {
			p.errorf("series %d: empty site", i)
		}
		var prev time.Time
		for j, pt := range rec.Data {
			at := fmt.Sprintf("series %d (%s %s) point %d", i, rec.Site, rec.ParameterCode, j)
			if pt.Valid != (pt.Value != nil) {
				p.errorf("%s: valid=%t but value set=%t", at, pt.Valid, pt.Value != nil)
			}
			if !pt.Valid && pt.Warning == "" {
				p.errorf("%s: invalid point %q has no warning", at, pt.RawValue)
			}
			if pt.Value != nil && (math.IsNaN(*pt.Value) || math.IsInf(*pt.Value, 0)) {
				p.errorf("%s: non-finite value", at)
			}
			if pt.Qualifiers == nil {
				p.errorf("%s: nil qualifiers", at)
			}
			if j > 0 && pt.DateTime.Before(prev) {
				p.errorf("%s: %s is before previous point", at, pt.RawDateTime)
			}
			prev = pt.DateTime
		}
	}
	return p
}

// validateRecords compares the records fixture with a fresh projection.
func validateRecords(fixture, projected []nwis.Record) *phase {
	p := &phase{name: "Records fixture parity"}
	if len(fixture) != len(projected) {
		p.errorf("series count: fixture=%d projected=%d", len(fixture), len(projected))
		return p
	}
	for i := range projected {
		want, got := projected[i], fixture[i]
		at := fmt.Sprintf("series %d", i)
		if got.Site != want.Site || got.ParameterCode != want.ParameterCode || got.Statistic != want.Statistic {
			p.errorf("%s: identity fixture=%s/%s projected=%s/%s", at, got.Site, got.ParameterCode, want.Site, want.ParameterCode)
			continue
		}
		if got.Unit != want.Unit {
			p.errorf("%s: unit fixture=%q projected=%q", at, got.Unit, want.Unit)
		}
		if len(got.Data) != len(want.Data) {
			p.errorf("%s: point count fixture=%d projected=%d", at, len(got.Data), len(want.Data))
			continue
		}
		for j := range want.Data {
			w, g := want.Data[j], got.Data[j]
			if !g.DateTime.Equal(w.DateTime) {
				p.errorf("%s point %d: time fixture=%s projected=%s", at, j, g.DateTime, w.DateTime)
			}
			if !ptrFloatEq(g.Value, w.Value) || g.RawValue != w.RawValue {
				p.errorf("%s point %d: value fixture=%q projected=%q", at, j, g.RawValue, w.RawValue)
			}
			if g.Warning != w.Warning {
				p.errorf("%s point %d: warning fixture=%q projected=%q", at, j, g.Warning, w.Warning)
			}
		}
	}
	return p
}

// validateEvents rebuilds events with the fixture clock and compares IDs and
// summaries.
func validateEvents(fixture []domain.SeriesEvent, projected []nwis.Record, svc nwis.Service) *phase {
	p := &phase{name: "Events fixture parity"}
	if len(fixture) != len(projected) {
		p.errorf("event count: fixture=%d projected=%d", len(fixture), len(projected))
		return p
	}

	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	seen := map[string]bool{}
	for i, rec := range projected {
		want, err := domain.NewSeriesEvent(domain.FetchedSeries{Service: svc, Record: rec})
		if err != nil {
			p.errorf("event %d: rebuild: %v", i, err)
			continue
		}
		got := fixture[i]
		if got.ID != want.ID {
			p.errorf("event %d: id fixture=%s rebuilt=%s", i, got.ID, want.ID)
		}
		if seen[got.ID] {
			p.errorf("event %d: duplicate id %s", i, got.ID)
		}
		seen[got.ID] = true
		if got.Service != string(svc) {
			p.errorf("event %d: service fixture=%q want %q", i, got.Service, svc)
		}
		gs, ws := got.Summary, want.Summary
		if gs.Points != ws.Points || gs.ValidPoints != ws.ValidPoints {
			p.errorf("event %d: points fixture=%d/%d rebuilt=%d/%d", i, gs.ValidPoints, gs.Points, ws.ValidPoints, ws.Points)
		}
		if !ptrFloatEq(gs.Min, ws.Min) || !ptrFloatEq(gs.Max, ws.Max) || !ptrFloatEq(gs.Mean, ws.Mean) {
			p.errorf("event %d: summary statistics differ", i)
		}
		if gs.ValidPoints > gs.Points {
			p.errorf("event %d: %d valid of %d points", i, gs.ValidPoints, gs.Points)
		}
	}
	return p
}

// validateSites checks the listing yields unique site numbers and covers
// every series site.
func validateSites(rdb []byte, projected []nwis.Record) *phase {
	p := &phase{name: "Site listing coverage"}
	doc, err := nwis.ParseRDB(rdb)
	if err != nil {
		p.errorf("parse listing: %v", err)
		return p
	}
	ids, err := nwis.ExtractSiteIDs(doc)
	if err != nil {
		p.errorf("extract site ids: %v", err)
		return p
	}
	for i, id := range ids {
		if slices.Contains(ids[:i], id) {
			p.errorf("site %s listed twice after extraction", id)
		}
	}
	for _, rec := range projected {
		if !slices.Contains(ids, rec.Site) {
			p.errorf("series site %s not in listing", rec.Site)
		}
	}
	return p
}

func ptrFloatEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 1e-9
}
