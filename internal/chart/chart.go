// Package chart keeps one chart instance per surface container and
// recreates it, through the update batcher, whenever its data changes.
package chart

import (
	"log/slog"
	"sync"
	"time"

	"perfkit/internal/surface"
)

// Point is one sample of a series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Series is a named list of samples.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Option is the visual configuration applied to a chart instance.
type Option struct {
	Title          string
	TooltipTrigger string
	Legend         []string
	XAxisType      string
	YAxisType      string
	Series         []Series
}

// Title of every chart created by the Updater.
const Title = "性能趋势图"

// NewOption returns the fixed chart configuration for series: a time x-axis,
// a value y-axis, one line per series and a legend of the series names.
func NewOption(series []Series) Option {
	legend := make([]string, len(series))
	for i, s := range series {
		legend[i] = s.Name
	}
	return Option{
		Title:          Title,
		TooltipTrigger: "axis",
		Legend:         legend,
		XAxisType:      "time",
		YAxisType:      "value",
		Series:         series,
	}
}

// Instance is a chart bound to a container.
type Instance interface {
	ID() string
	SetOption(opt Option) error
	Dispose()
}

// Engine creates chart instances.
type Engine interface {
	Init(container *surface.Container) Instance
}

// Registry maps container identifiers to their chart instance.
type Registry struct {
	mu        sync.Mutex
	instances map[string]Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]Instance)}
}

// Get returns the instance registered for id.
func (r *Registry) Get(id string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Recreate disposes the instance registered for id, if any, then creates a
// new one with create and registers it. Disposal always happens before
// creation, so handles never leak.
func (r *Registry) Recreate(id string, create func() Instance) Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.instances[id]; ok {
		old.Dispose()
		delete(r.instances, id)
	}
	inst := create()
	r.instances[id] = inst
	return inst
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// DisposeAll disposes and forgets every instance.
func (r *Registry) DisposeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, inst := range r.instances {
		inst.Dispose()
		delete(r.instances, id)
	}
}

// Enqueuer defers an update action to the next frame.
type Enqueuer interface {
	Enqueue(action func())
}

// Updater recreates charts on the next frame.
type Updater struct {
	doc      surface.Resolver
	batcher  Enqueuer
	engine   Engine
	registry *Registry
	logger   *slog.Logger
}

// NewUpdater creates an Updater with its own registry.
func NewUpdater(doc surface.Resolver, batcher Enqueuer, engine Engine, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		doc:      doc,
		batcher:  batcher,
		engine:   engine,
		registry: NewRegistry(),
		logger:   logger.With("component", "chart"),
	}
}

// Registry returns the updater's instance registry.
func (u *Updater) Registry() *Registry {
	return u.registry
}

// Update schedules the chart in container chartID to be recreated with
// series on the next frame. The container is resolved when the frame runs;
// if it is missing by then, nothing happens.
func (u *Updater) Update(series []Series, chartID string) {
	series = append([]Series(nil), series...)

	u.batcher.Enqueue(func() {
		container, ok := u.doc.Lookup(chartID)
		if !ok {
			u.logger.Debug("container not found, skipping chart", "chart", chartID)
			return
		}

		inst := u.registry.Recreate(chartID, func() Instance {
			return u.engine.Init(container)
		})
		if err := inst.SetOption(NewOption(series)); err != nil {
			u.logger.Error("failed to render chart", "chart", chartID, "instance", inst.ID(), "error", err)
		}
	})
}
