package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
)

// Extractor fetches the series for one poll cycle.
type Extractor interface {
	Extract(ctx context.Context) ([]domain.FetchedSeries, error)
}

// Transformer converts a fetched series into a sink event.
type Transformer interface {
	Transform(ctx context.Context, fs domain.FetchedSeries) (domain.SeriesEvent, error)
}

// BatchLoader writes multiple events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.SeriesEvent) error
}

const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Status describes the most recent poll cycles.
type Status struct {
	Running     bool      `json:"running"`
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastSeries  int       `json:"last_series"`
	LastEvents  int       `json:"last_events"`
}

// CycleResult summarizes one successful poll cycle.
type CycleResult struct {
	Series  int
	Events  int
	Skipped int
}

// Pipeline polls NWIS on a fixed interval and loads what it fetches.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	clock       clockwork.Clock
	ready       atomic.Bool

	mu     sync.Mutex
	status Status
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		interval:    interval,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a poll cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a poll cycle yet")
	}
	return nil
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run polls until the context is cancelled. A failed cycle is retried with
// exponential backoff capped at the poll interval; a successful one waits a
// full interval.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.interval)
	p.metrics.PipelineRunning.Set(1)
	p.setRunning(true)
	defer func() {
		p.metrics.PipelineRunning.Set(0)
		p.setRunning(false)
	}()

	limit := min(maxBackoff, p.interval)
	backoff := min(initialBackoff, limit)
	for {
		wait := p.interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("poll cycle failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, limit)
		} else {
			backoff = min(initialBackoff, limit)
		}

		if !p.sleep(ctx, wait) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// RunOnce runs a single extract-transform-load cycle. Series that fail to
// transform are skipped; extract and load failures fail the cycle.
func (p *Pipeline) RunOnce(ctx context.Context) (CycleResult, error) {
	start := p.clock.Now()

	series, err := p.extractor.Extract(ctx)
	if err != nil {
		p.recordFailure(err)
		return CycleResult{}, err
	}
	p.metrics.SeriesExtracted.Add(float64(len(series)))

	res := CycleResult{Series: len(series)}
	events := make([]domain.SeriesEvent, 0, len(series))
	for _, fs := range series {
		event, err := p.transformer.Transform(ctx, fs)
		if err != nil {
			p.logger.Warn("transform failed, skipping series",
				"error", err,
				"site", fs.Record.Site,
				"parameter", fs.Record.ParameterCode,
			)
			p.metrics.TransformErrors.Inc()
			res.Skipped++
			continue
		}
		events = append(events, event)
	}

	if len(events) > 0 {
		if err := p.loader.LoadBatch(ctx, events); err != nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(events))
			p.recordFailure(err)
			return CycleResult{}, err
		}
	}
	res.Events = len(events)
	p.metrics.EventsLoaded.Add(float64(len(events)))

	now := p.clock.Now()
	p.metrics.CycleDuration.Observe(now.Sub(start).Seconds())
	p.metrics.PollCycles.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(now.Unix()))
	p.ready.Store(true)

	p.mu.Lock()
	p.status.Cycles++
	p.status.LastSuccess = now.UTC()
	p.status.LastError = ""
	p.status.LastSeries = res.Series
	p.status.LastEvents = res.Events
	p.mu.Unlock()

	p.logger.Info("poll cycle complete",
		"series", res.Series,
		"events", res.Events,
		"skipped", res.Skipped,
		"duration", now.Sub(start),
	)
	return res, nil
}

func (p *Pipeline) recordFailure(err error) {
	p.metrics.PollCycles.WithLabelValues("error").Inc()
	p.mu.Lock()
	p.status.Cycles++
	p.status.Failures++
	p.status.LastError = err.Error()
	p.mu.Unlock()
}

func (p *Pipeline) setRunning(running bool) {
	p.mu.Lock()
	p.status.Running = running
	p.mu.Unlock()
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}
