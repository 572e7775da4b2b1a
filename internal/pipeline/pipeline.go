package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
	"github.com/couchcryptid/hotspot-etl-service/internal/observability"
)

// Fetcher retrieves the raw payload from the remote source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// SpecProvider returns the column spec to apply to the next cycle.
type SpecProvider interface {
	ColumnSpec() domain.ColumnSpec
}

// Persister replaces the output artifact with data.
type Persister interface {
	Persist(ctx context.Context, data []byte) error
}

// EventPublisher ships cycle events somewhere other than the log.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.CycleEvent) error
}

// DefaultFetchTimeout applies when Options.FetchTimeout is unset.
const DefaultFetchTimeout = 30 * time.Second

// Options tunes the fetch loop.
type Options struct {
	Source       string // redacted source URL, for logs and events
	Destination  string
	Delimiter    rune
	Schedule     cron.Schedule
	FetchTimeout time.Duration
	FetchOnStart bool
	StaleAfter   time.Duration
	Clock        clockwork.Clock
	Events       EventPublisher // optional
}

// Pipeline runs the fetch-transform-persist cycle on a schedule. A single
// goroutine owns the loop, so cycles never overlap.
type Pipeline struct {
	fetcher   Fetcher
	specs     SpecProvider
	persister Persister
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	running     atomic.Bool
	lastSuccess atomic.Int64 // unix nanos, 0 until the first success
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, specs SpecProvider, p Persister, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &Pipeline{
		fetcher:   f,
		specs:     specs,
		persister: p,
		opts:      opts,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil while the output artifact is fresh: at least one
// cycle has replaced it and the last replacement is within StaleAfter.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	last := p.lastSuccess.Load()
	if last == 0 {
		return errors.New("no successful cycle yet")
	}
	age := p.clock.Since(time.Unix(0, last))
	if p.opts.StaleAfter > 0 && age > p.opts.StaleAfter {
		return fmt.Errorf("output artifact is stale: last refreshed %s ago", age.Round(time.Second))
	}
	return nil
}

// CheckLiveness returns nil while the fetch loop is running.
func (p *Pipeline) CheckLiveness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("fetch loop is not running")
	}
	return nil
}

// LastSuccess returns when the artifact was last replaced, or the zero time.
func (p *Pipeline) LastSuccess() time.Time {
	last := p.lastSuccess.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}

// Run executes cycles on the schedule until the context is cancelled. Cycle
// failures are logged and never stop the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.opts.Schedule == nil {
		return errors.New("pipeline: no schedule configured")
	}

	p.logger.Info("pipeline started",
		"source", p.opts.Source,
		"destination", p.opts.Destination,
		"fetch_timeout", p.opts.FetchTimeout,
		"fetch_on_start", p.opts.FetchOnStart,
	)
	p.running.Store(true)
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	next := p.clock.Now()
	if !p.opts.FetchOnStart {
		next = p.opts.Schedule.Next(next)
	}

	for {
		if !p.waitUntil(ctx, next) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		start := p.clock.Now()
		p.RunCycle(ctx)

		next = p.opts.Schedule.Next(start)
		if now := p.clock.Now(); !next.After(now) {
			// Ticks that fell inside the cycle collapse into one, run now.
			p.metrics.CycleOverruns.Inc()
			p.logger.Warn("cycle overran its schedule",
				"cycle_started_at", start,
				"scheduled_at", next,
				"overrun", now.Sub(next),
			)
			next = now
		}
	}
}

// waitUntil blocks until t on the pipeline clock. Returns false if the
// context is cancelled first.
func (p *Pipeline) waitUntil(ctx context.Context, t time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	d := t.Sub(p.clock.Now())
	if d <= 0 {
		return true
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

// RunCycle performs one fetch-transform-persist attempt and reports it.
func (p *Pipeline) RunCycle(ctx context.Context) domain.CycleEvent {
	start := p.clock.Now()
	event := domain.NewCycleEvent(p.opts.Source, p.opts.Destination, start)

	err := p.cycle(ctx, &event)
	event.Duration = p.clock.Since(start)

	switch {
	case err != nil:
		event.Outcome = domain.OutcomeFailed
		event.Error = err.Error()
		var statusErr *domain.HTTPStatusError
		if errors.As(err, &statusErr) {
			event.StatusCode = statusErr.StatusCode
		}
		var schemaErr *domain.SchemaMismatchError
		if errors.As(err, &schemaErr) {
			event.Missing = schemaErr.Missing
		}
	case event.SkippedRows > 0:
		event.Outcome = domain.OutcomePartial
	default:
		event.Outcome = domain.OutcomeSuccess
	}

	p.metrics.Cycles.WithLabelValues(string(event.Stage), string(event.Outcome)).Inc()
	p.metrics.CycleDuration.Observe(event.Duration.Seconds())
	p.report(ctx, event, err)
	return event
}

// cycle runs the stages in order, recording progress on event.
func (p *Pipeline) cycle(ctx context.Context, event *domain.CycleEvent) error {
	event.Stage = domain.StageFetch
	body, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	event.Bytes = len(body)

	event.Stage = domain.StageTransform
	spec := p.specs.ColumnSpec()
	res, err := domain.Transform(string(body), spec, p.opts.Delimiter)
	if err != nil {
		return err
	}
	event.Rows = len(res.Records)
	event.SkippedRows = len(res.Skipped)
	p.metrics.RowsSkipped.Add(float64(event.SkippedRows))
	for _, skipped := range res.Skipped {
		p.logger.Debug("skipped row", "cycle_id", event.ID, "error", skipped)
	}

	event.Stage = domain.StagePersist
	if err := p.persister.Persist(ctx, domain.Serialize(spec, res.Records)); err != nil {
		return err
	}

	event.Stage = domain.StageDone
	now := p.clock.Now()
	p.lastSuccess.Store(now.UnixNano())
	p.metrics.LastSuccess.Set(float64(now.Unix()))
	p.metrics.RowsWritten.Add(float64(event.Rows))
	return nil
}

func (p *Pipeline) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	start := p.clock.Now()
	body, err := p.fetcher.Fetch(ctx)
	p.metrics.FetchDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	p.metrics.FetchBytes.Observe(float64(len(body)))
	return body, nil
}

// report logs the cycle outcome and publishes it when a publisher is set.
func (p *Pipeline) report(ctx context.Context, event domain.CycleEvent, err error) {
	attrs := []any{
		"cycle_id", event.ID,
		"stage", event.Stage,
		"outcome", event.Outcome,
		"started_at", event.StartedAt,
		"duration", event.Duration,
		"bytes", event.Bytes,
		"rows", event.Rows,
		"skipped_rows", event.SkippedRows,
	}

	var schemaErr *domain.SchemaMismatchError
	switch {
	case err == nil && event.SkippedRows > 0:
		p.logger.Warn("cycle completed with skipped rows", attrs...)
	case err == nil:
		p.logger.Info("cycle completed", attrs...)
	case ctx.Err() != nil:
		p.logger.Info("cycle abandoned on shutdown", append(attrs, "error", err)...)
	case errors.As(err, &schemaErr):
		p.logger.Error("cycle failed: upstream schema changed", append(attrs, "missing_columns", schemaErr.Missing, "error", err)...)
	case event.StatusCode != 0:
		p.logger.Warn("cycle failed", append(attrs, "status_code", event.StatusCode, "error", err)...)
	default:
		p.logger.Warn("cycle failed", append(attrs, "error", err)...)
	}

	if p.opts.Events == nil {
		return
	}
	if err := p.opts.Events.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn("publish cycle event failed", "cycle_id", event.ID, "error", err)
		return
	}
	p.metrics.EventsPublished.WithLabelValues("success").Inc()
}
