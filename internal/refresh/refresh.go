// Package refresh keeps configured containers in sync with remote JSON
// sources by fetching through the request cache and rendering the result.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"perfkit/internal/cache"
	"perfkit/internal/chart"
	"perfkit/internal/table"
	"perfkit/internal/timing"
)

// Source kinds.
const (
	KindTable = "table"
	KindChart = "chart"
)

const (
	// DefaultInterval is used for sources without an interval.
	DefaultInterval = time.Minute
	// DefaultTriggerLimit bounds how often a source can be refreshed on demand.
	DefaultTriggerLimit = 2 * time.Second
	// refreshTimeout bounds a single background refresh.
	refreshTimeout = 30 * time.Second
)

// ErrUnknownSource is returned for source IDs that were never configured.
var ErrUnknownSource = errors.New("unknown source")

// Source is a remote JSON resource rendered into the container with the same ID.
type Source struct {
	ID       string
	URL      string
	Kind     string
	Interval time.Duration
}

// Fetcher fetches JSON payloads, typically through the request cache.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts *cache.Options) (cache.Payload, error)
}

// TableRenderer schedules table renders.
type TableRenderer interface {
	Render(rows []table.Row, containerID string)
}

// ChartUpdater schedules chart updates.
type ChartUpdater interface {
	Update(series []chart.Series, chartID string)
}

// Tracker measures named spans.
type Tracker interface {
	Start(name string)
	End(name string)
}

// Refresher refreshes sources on their interval and on demand.
type Refresher struct {
	fetcher Fetcher
	tables  TableRenderer
	charts  ChartUpdater
	tracker Tracker
	logger  *slog.Logger

	sources  []Source
	byID     map[string]Source
	triggers map[string]func(struct{})

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards stopped; wg.Go is only called while holding it.
	mu      sync.Mutex
	stopped bool
}

// Config holds the Refresher dependencies.
type Config struct {
	Fetcher Fetcher
	Tables  TableRenderer
	Charts  ChartUpdater
	Tracker Tracker
	Logger  *slog.Logger

	// TriggerLimit throttles Trigger per source. Zero means DefaultTriggerLimit.
	TriggerLimit time.Duration
	// Clock drives trigger throttling. Nil means the system clock.
	Clock timing.Clock
}

// New validates sources and returns a Refresher. Background refreshing
// starts with Start.
func New(sources []Source, cfg Config) (*Refresher, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("refresh: fetcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.TriggerLimit
	if limit <= 0 {
		limit = DefaultTriggerLimit
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timing.SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		fetcher:  cfg.Fetcher,
		tables:   cfg.Tables,
		charts:   cfg.Charts,
		tracker:  cfg.Tracker,
		logger:   logger,
		byID:     make(map[string]Source, len(sources)),
		triggers: make(map[string]func(struct{}), len(sources)),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, src := range sources {
		if src.ID == "" || src.URL == "" {
			cancel()
			return nil, fmt.Errorf("refresh: source requires id and url")
		}
		if _, dup := r.byID[src.ID]; dup {
			cancel()
			return nil, fmt.Errorf("refresh: duplicate source %q", src.ID)
		}
		switch src.Kind {
		case KindTable:
			if r.tables == nil {
				cancel()
				return nil, fmt.Errorf("refresh: source %q needs a table renderer", src.ID)
			}
		case KindChart:
			if r.charts == nil {
				cancel()
				return nil, fmt.Errorf("refresh: source %q needs a chart updater", src.ID)
			}
		default:
			cancel()
			return nil, fmt.Errorf("refresh: source %q has unknown kind %q", src.ID, src.Kind)
		}
		if src.Interval <= 0 {
			src.Interval = DefaultInterval
		}

		r.sources = append(r.sources, src)
		r.byID[src.ID] = src
		id := src.ID
		r.triggers[id] = timing.ThrottleWithClock(clock, func(struct{}) {
			r.spawn(func() { r.refreshLogged(id) })
		}, limit)
	}
	return r, nil
}

// Sources returns the configured sources in configuration order.
func (r *Refresher) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// Refresh fetches source id and schedules its render.
func (r *Refresher) Refresh(ctx context.Context, id string) error {
	src, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}

	span := "refresh:" + src.ID
	if r.tracker != nil {
		r.tracker.Start(span)
		defer r.tracker.End(span)
	}

	payload, err := r.fetcher.Fetch(ctx, src.URL, nil)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", src.ID, err)
	}

	switch src.Kind {
	case KindTable:
		rows, err := table.RowsFromResult(payload.Result())
		if err != nil {
			return fmt.Errorf("refresh %s: %w", src.ID, err)
		}
		r.tables.Render(rows, src.ID)
	case KindChart:
		series, err := chart.SeriesFromJSON(payload)
		if err != nil {
			return fmt.Errorf("refresh %s: %w", src.ID, err)
		}
		r.charts.Update(series, src.ID)
	}
	return nil
}

// Trigger requests an asynchronous refresh of source id. Calls within the
// trigger limit of the last accepted one are dropped.
func (r *Refresher) Trigger(id string) error {
	trigger, ok := r.triggers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	trigger(struct{}{})
	return nil
}

// Start refreshes every source once and then on its interval until Stop.
func (r *Refresher) Start() {
	for _, src := range r.sources {
		r.spawn(func() { r.loop(src) })
	}
	if len(r.sources) > 0 {
		r.logger.Info("source refresher started", "sources", len(r.sources))
	}
}

// Stop cancels in-flight refreshes and waits for the loops to exit.
// Triggers after Stop are ignored.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// spawn runs fn on the wait group unless the refresher is stopped.
func (r *Refresher) spawn(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.wg.Go(fn)
}

func (r *Refresher) loop(src Source) {
	r.refreshLogged(src.ID)

	ticker := time.NewTicker(src.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged(src.ID)
		}
	}
}

func (r *Refresher) refreshLogged(id string) {
	ctx, cancel := context.WithTimeout(r.ctx, refreshTimeout)
	defer cancel()

	if err := r.Refresh(ctx, id); err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Warn("source refresh failed", "source", id, "error", err)
	}
}
