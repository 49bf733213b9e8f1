package app

import (
	"time"

	"perfkit/internal/batcher"
	"perfkit/internal/cache"
	"perfkit/internal/chart"
	"perfkit/internal/monitor"
	"perfkit/internal/surface"
	"perfkit/internal/table"
	"perfkit/internal/timing"
)

// Toolkit bundles the performance components. It is built once by New and
// passed to whatever needs it.
type Toolkit struct {
	Document *surface.Document
	Fetcher  *cache.Fetcher
	Batcher  *batcher.Batcher
	Tables   *table.Renderer
	Charts   *chart.Updater
	Monitor  *monitor.Monitor
}

// Debounce wraps fn so it runs once wait has passed without another call.
// Use timing.Debounce directly for functions that take an argument.
func (t *Toolkit) Debounce(fn func(), wait time.Duration) func() {
	d := timing.Debounce(func(struct{}) { fn() }, wait)
	return func() { d(struct{}{}) }
}

// Throttle wraps fn so it runs at most once per limit, on the leading edge.
// Use timing.Throttle directly for functions that take an argument.
func (t *Toolkit) Throttle(fn func(), limit time.Duration) func() {
	th := timing.Throttle(func(struct{}) { fn() }, limit)
	return func() { th(struct{}{}) }
}
