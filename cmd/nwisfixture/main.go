// Command nwisfixture reads a saved NWIS JSON response and writes the core
// records and series events the pipeline would derive from it. It runs the
// library and domain packages offline, so fixtures match real pipeline
// behavior.
//
// Usage:
//
//	curl -s 'https://waterservices.usgs.gov/nwis/iv/?format=json&stateCd=ny&parameterCd=00060&period=PT2H' > iv_ny.json
//	go run ./cmd/nwisfixture \
//	  -in iv_ny.json -service iv \
//	  -records-out data/mock/iv_ny_records.json \
//	  -events-out data/mock/iv_ny_events.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// fixtureTime stamps FetchedAt so event IDs and payloads are reproducible.
var fixtureTime = time.Date(2023, time.June, 1, 18, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "saved NWIS JSON response (dv or iv)")
	service := flag.String("service", "iv", "service the response came from: dv or iv")
	recordsOut := flag.String("records-out", "", "output path for projected core records")
	eventsOut := flag.String("events-out", "", "output path for series events (optional)")
	flag.Parse()

	if *in == "" || *recordsOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -in, -records-out")
	}
	svc := nwis.Service(*service)
	if svc != nwis.ServiceDailyValues && svc != nwis.ServiceInstantaneous {
		return fmt.Errorf("%w: %q", nwis.ErrUnsupportedService, *service)
	}

	body, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	records, events, err := project(body, svc)
	if err != nil {
		return fmt.Errorf("project %s: %w", *in, err)
	}
	log.Printf("%s: %d series", *in, len(records))

	if err := writeJSON(*recordsOut, records); err != nil {
		return fmt.Errorf("writing records fixture: %w", err)
	}
	log.Printf("wrote records fixture: %s", *recordsOut)

	if *eventsOut != "" {
		if err := writeJSON(*eventsOut, events); err != nil {
			return fmt.Errorf("writing events fixture: %w", err)
		}
		log.Printf("wrote events fixture: %s", *eventsOut)
	}

	printStats(events)
	return nil
}

func project(body []byte, svc nwis.Service) ([]nwis.Record, []domain.SeriesEvent, error) {
	resp, err := nwis.DecodeTimeSeries(body)
	if err != nil {
		return nil, nil, err
	}
	records, err := nwis.Project(resp)
	if err != nil {
		return nil, nil, err
	}

	domain.SetClock(clockwork.NewFakeClockAt(fixtureTime))
	defer domain.SetClock(nil)

	events := make([]domain.SeriesEvent, 0, len(records))
	for _, rec := range records {
		e, err := domain.NewSeriesEvent(domain.FetchedSeries{Service: svc, Record: rec})
		if err != nil {
			return nil, nil, fmt.Errorf("series %s %s: %w", rec.Site, rec.ParameterCode, err)
		}
		events = append(events, e)
	}
	return records, events, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// statsResult holds aggregated counts for printStats reporting.
type statsResult struct {
	sites         map[string]int
	parameters    map[string]int
	warnings      map[string]int
	invalidCodes  map[string]int
	points, valid int
	withLocation  int
}

func collectStats(events []domain.SeriesEvent) statsResult {
	s := statsResult{
		sites:        map[string]int{},
		parameters:   map[string]int{},
		warnings:     map[string]int{},
		invalidCodes: map[string]int{},
	}
	for i := range events {
		e := &events[i]
		s.sites[e.Site]++
		s.parameters[e.Parameter]++
		s.points += e.Summary.Points
		s.valid += e.Summary.ValidPoints
		if e.HasCoords() {
			s.withLocation++
		}
		for _, p := range e.Points {
			if !p.Valid {
				s.warnings[p.Warning]++
			}
		}
		for _, c := range e.Summary.InvalidCodes {
			s.invalidCodes[c]++
		}
	}
	return s
}

func printStats(events []domain.SeriesEvent) {
	stats := collectStats(events)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Series: %d across %d sites (%d with coordinates)\n", len(events), len(stats.sites), stats.withLocation)
	fmt.Printf("Points: %d total, %d valid, %d invalid\n", stats.points, stats.valid, stats.points-stats.valid)
	printCounts("By parameter", stats.parameters)
	printCounts("Invalid by warning", stats.warnings)
	printCounts("Invalid codes", stats.invalidCodes)

	if len(events) == 0 {
		return
	}
	e := &events[0]
	fmt.Printf("\nFirst series:\n")
	fmt.Printf("  ID: %s\n", e.ID)
	fmt.Printf("  Site: %s (%s)\n", e.Site, e.SiteName)
	fmt.Printf("  Parameter: %s, Unit: %s\n", e.Parameter, e.Unit)
	fmt.Printf("  Period: %s .. %s\n", e.Summary.PeriodStart.Format(time.RFC3339), e.Summary.PeriodEnd.Format(time.RFC3339))
	if e.Summary.Latest != nil {
		fmt.Printf("  Latest: %g at %s\n", *e.Summary.Latest, e.Summary.LatestAt.Format(time.RFC3339))
	}
}

func printCounts(label string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s (%d):", label, len(keys))
	for _, k := range keys {
		fmt.Printf(" %s=%d", k, counts[k])
	}
	fmt.Println()
}
