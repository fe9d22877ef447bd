package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
	"github.com/couchcryptid/nwis-data-etl/internal/pipeline"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

// --- mocks ---

// mockExtractor returns the queued results in order, then repeats the last.
type mockExtractor struct {
	mu      sync.Mutex
	results []extractResult
	calls   int
}

type extractResult struct {
	series []domain.FetchedSeries
	err    error
}

func (m *mockExtractor) Extract(_ context.Context) ([]domain.FetchedSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.results[min(m.calls, len(m.results)-1)]
	m.calls++
	return r.series, r.err
}

func (m *mockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockTransformer struct {
	failSite string
}

func (m *mockTransformer) Transform(_ context.Context, fs domain.FetchedSeries) (domain.SeriesEvent, error) {
	if fs.Record.Site == m.failSite {
		return domain.SeriesEvent{}, errors.New("bad series")
	}
	return domain.SeriesEvent{ID: fs.Record.Site + "-id", Site: fs.Record.Site, Service: string(fs.Service)}, nil
}

// mockLoader records batches and signals each one on loaded.
type mockLoader struct {
	mu      sync.Mutex
	batches [][]domain.SeriesEvent
	err     error
	loaded  chan struct{}
}

func newMockLoader() *mockLoader {
	return &mockLoader{loaded: make(chan struct{}, 16)}
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.SeriesEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, events)
	m.loaded <- struct{}{}
	return nil
}

func (m *mockLoader) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func fetched(sites ...string) []domain.FetchedSeries {
	out := make([]domain.FetchedSeries, 0, len(sites))
	for _, s := range sites {
		out = append(out, domain.FetchedSeries{
			Service: nwis.ServiceInstantaneous,
			Record:  nwis.Record{Site: s, ParameterCode: "00060"},
		})
	}
	return out
}

func waitLoaded(t *testing.T, l *mockLoader) {
	t.Helper()
	select {
	case <-l.loaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
}

// --- RunOnce ---

func TestPipeline_RunOnce_HappyPath(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{series: fetched("01358000", "01357500")}}}
	ldr := newMockLoader()
	metrics := newTestMetrics()
	clock := clockwork.NewFakeClockAt(time.Date(2023, 6, 1, 18, 0, 0, 0, time.UTC))

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, time.Minute, pipeline.WithClock(clock))
	require.Error(t, p.CheckReadiness(context.Background()))

	res, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.CycleResult{Series: 2, Events: 2}, res)

	require.Equal(t, 1, ldr.Batches())
	assert.Equal(t, "01358000", ldr.batches[0][0].Site)
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SeriesExtracted))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.EventsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollCycles.WithLabelValues("success")))
	assert.Equal(t, float64(clock.Now().Unix()), testutil.ToFloat64(metrics.LastSuccess))

	st := p.Status()
	assert.Equal(t, int64(1), st.Cycles)
	assert.Zero(t, st.Failures)
	assert.Equal(t, clock.Now(), st.LastSuccess)
	assert.Equal(t, 2, st.LastEvents)
}

func TestPipeline_RunOnce_TransformErrorSkipsSeries(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{series: fetched("01358000", "bad")}}}
	ldr := newMockLoader()
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{failSite: "bad"}, ldr, discardLogger(), metrics, time.Minute)

	res, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.CycleResult{Series: 2, Events: 1, Skipped: 1}, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
	require.Len(t, ldr.batches, 1)
	assert.Len(t, ldr.batches[0], 1)
}

func TestPipeline_RunOnce_NothingFetched(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{}}}
	ldr := newMockLoader()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), time.Minute)

	res, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Zero(t, ldr.Batches(), "empty cycles do not call the loader")
	require.NoError(t, p.CheckReadiness(context.Background()), "an empty cycle still counts as success")
}

func TestPipeline_RunOnce_ExtractError(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{err: errors.New("nwis unavailable")}}}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, newMockLoader(), discardLogger(), metrics, time.Minute)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollCycles.WithLabelValues("error")))
	require.Error(t, p.CheckReadiness(context.Background()))

	st := p.Status()
	assert.Equal(t, int64(1), st.Failures)
	assert.Equal(t, "nwis unavailable", st.LastError)
}

func TestPipeline_RunOnce_LoadError(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{series: fetched("01358000")}}}
	ldr := newMockLoader()
	ldr.err = errors.New("broker down")
	metrics := newTestMetrics()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, time.Minute)

	_, err := p.RunOnce(context.Background())
	require.ErrorContains(t, err, "broker down")
	assert.Zero(t, testutil.ToFloat64(metrics.EventsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PollCycles.WithLabelValues("error")))
}

// --- Run ---

func TestPipeline_Run_PollsOnInterval(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{series: fetched("01358000")}}}
	ldr := newMockLoader()
	metrics := newTestMetrics()
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), metrics, 15*time.Minute, pipeline.WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	waitLoaded(t, ldr)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning))
	assert.True(t, p.Status().Running)

	clock.Advance(14 * time.Minute)
	assert.Equal(t, 1, ext.Calls(), "no poll before the interval elapses")

	clock.Advance(time.Minute)
	waitLoaded(t, ldr)
	assert.Equal(t, 2, ext.Calls())

	cancel()
	require.NoError(t, <-errCh)
	assert.Zero(t, testutil.ToFloat64(metrics.PipelineRunning))
	assert.False(t, p.Status().Running)
}

func TestPipeline_Run_RetriesWithBackoff(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{series: fetched("01358000")},
	}}
	ldr := newMockLoader()
	clock := clockwork.NewFakeClock()

	p := pipeline.New(ext, &mockTransformer{}, ldr, discardLogger(), newTestMetrics(), 15*time.Minute, pipeline.WithClock(clock))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	// First failure waits one second, the second two.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, ext.Calls())
	clock.Advance(time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, ext.Calls())
	clock.Advance(time.Second)
	assert.Equal(t, 2, ext.Calls(), "backoff doubled after the second failure")
	clock.Advance(time.Second)

	waitLoaded(t, ldr)
	assert.Equal(t, int64(2), p.Status().Failures)

	cancel()
	require.NoError(t, <-errCh)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{results: []extractResult{{err: context.Canceled}}}
	p := pipeline.New(ext, &mockTransformer{}, newMockLoader(), discardLogger(), newTestMetrics(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 1, ext.Calls())
}
