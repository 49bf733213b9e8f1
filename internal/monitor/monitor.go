// Package monitor records durations of named spans.
package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Hooks receives completed spans.
type Hooks interface {
	SpanEnded(name string, d time.Duration)
}

// Metric is the state of one named span.
type Metric struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
	// Done is false while the span is started but not ended.
	Done bool `json:"done"`
}

// Milliseconds returns the duration in fractional milliseconds.
func (m Metric) Milliseconds() float64 {
	return float64(m.Duration) / float64(time.Millisecond)
}

type span struct {
	start    time.Time
	duration time.Duration
	done     bool
}

// Monitor tracks named spans. Starting a name again replaces its previous
// span; spans do not nest.
type Monitor struct {
	logger *slog.Logger
	hooks  Hooks
	now    func() time.Time

	mu    sync.Mutex
	spans map[string]*span
	order []string
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHooks reports completed spans to h.
func WithHooks(h Hooks) Option {
	return func(m *Monitor) { m.hooks = h }
}

// WithClock replaces time.Now. The clock must carry a monotonic reading for
// durations to be immune to wall clock changes.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor that writes a diagnostic line per ended span to
// logger (slog.Default() when nil).
func New(logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		logger: logger.With("component", "monitor"),
		now:    time.Now,
		spans:  make(map[string]*span),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the span name, discarding any previous span of that name.
func (m *Monitor) Start(name string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.spans[name]; !ok {
		m.order = append(m.order, name)
	}
	m.spans[name] = &span{start: now}
}

// End finishes the span name and logs its duration. It does nothing when
// name was never started.
func (m *Monitor) End(name string) {
	now := m.now()

	m.mu.Lock()
	s, ok := m.spans[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	s.duration = now.Sub(s.start)
	s.done = true
	d := s.duration
	m.mu.Unlock()

	m.logger.Info(fmt.Sprintf("%s: %.2fms", name, float64(d)/float64(time.Millisecond)),
		"span", name,
		"duration_ms", float64(d)/float64(time.Millisecond),
	)
	if m.hooks != nil {
		m.hooks.SpanEnded(name, d)
	}
}

// Track starts name and returns a func that ends it, for use with defer.
func (m *Monitor) Track(name string) func() {
	m.Start(name)
	return func() { m.End(name) }
}

// Metrics returns every recorded span in the order names were first started.
func (m *Monitor) Metrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Metric, 0, len(m.order))
	for _, name := range m.order {
		s := m.spans[name]
		out = append(out, Metric{Name: name, Duration: s.duration, Done: s.done})
	}
	return out
}

// Reset forgets all spans.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spans = make(map[string]*span)
	m.order = nil
}
