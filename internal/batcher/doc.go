// Package batcher coalesces update actions issued between two frame ticks and
// runs them together, in enqueue order, on the next tick.
//
// Flushing uses snapshot-then-clear semantics: the pending list is swapped
// out before any action runs, so actions enqueued by a running action are
// deferred to the next cycle. At most one flush is scheduled at a time no
// matter how many actions are enqueued.
package batcher
