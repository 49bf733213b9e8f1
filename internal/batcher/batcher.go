package batcher

import "sync"

// Scheduler runs a callback on the next display-refresh tick.
type Scheduler interface {
	Schedule(fn func())
}

// Hooks receives flush events. All methods must be safe for concurrent use.
type Hooks interface {
	Flushed(n int)
	FlushPanicked(v any)
}

// Batcher collects update actions and flushes them once per tick.
type Batcher struct {
	scheduler Scheduler
	hooks     Hooks

	// All further fields are protected by mu
	mu        sync.Mutex
	items     []func()
	scheduled bool
	epoch     uint64
}

// New creates a Batcher that schedules flushes with s. hooks may be nil.
func New(s Scheduler, hooks Hooks) *Batcher {
	return &Batcher{
		scheduler: s,
		hooks:     hooks,
	}
}

// Enqueue appends action to the pending list and schedules a flush on the
// next tick if none is scheduled yet. Nil actions are ignored.
func (b *Batcher) Enqueue(action func()) {
	if action == nil {
		return
	}

	b.mu.Lock()
	b.items = append(b.items, action)
	if b.scheduled {
		b.mu.Unlock()
		return
	}
	b.scheduled = true
	b.epoch++
	epoch := b.epoch
	b.mu.Unlock()

	b.scheduler.Schedule(func() { b.tick(epoch) })
}

// tick flushes on behalf of the scheduled callback for epoch. A manual Flush
// in between makes the callback stale; it then does nothing.
func (b *Batcher) tick(epoch uint64) {
	b.mu.Lock()
	if !b.scheduled || b.epoch != epoch {
		b.mu.Unlock()
		return
	}
	items := b.take()
	b.mu.Unlock()

	b.run(items)
}

// Flush runs every pending action in enqueue order and clears the scheduled
// flag. A panicking action is not recovered: it aborts the remaining actions
// of this flush and propagates to the caller. The pending list has already
// been cleared at that point, so the Batcher stays usable.
func (b *Batcher) Flush() {
	b.mu.Lock()
	items := b.take()
	b.mu.Unlock()

	b.run(items)
}

// take must be called with mu held.
func (b *Batcher) take() []func() {
	items := b.items
	b.items = nil
	b.scheduled = false
	return items
}

func (b *Batcher) run(items []func()) {
	if b.hooks != nil {
		defer func() {
			if r := recover(); r != nil {
				b.hooks.FlushPanicked(r)
				panic(r)
			}
		}()
	}

	for _, action := range items {
		action()
	}

	if b.hooks != nil && len(items) > 0 {
		b.hooks.Flushed(len(items))
	}
}

// Pending returns the number of queued actions.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Scheduled reports whether a flush is scheduled.
func (b *Batcher) Scheduled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheduled
}
