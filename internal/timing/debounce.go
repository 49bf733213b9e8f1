package timing

import (
	"sync"
	"time"
)

// Debounce returns a function that delays calling fn until wait has elapsed
// since the last call. Only the trailing edge fires, with the argument of the
// most recent call.
func Debounce[T any](fn func(T), wait time.Duration) func(T) {
	return DebounceWithClock(SystemClock(), fn, wait)
}

// DebounceWithClock is Debounce with an injected clock.
func DebounceWithClock[T any](clock Clock, fn func(T), wait time.Duration) func(T) {
	var (
		mu    sync.Mutex
		timer Timer
		gen   uint64
	)
	return func(arg T) {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		gen++
		mine := gen
		timer = clock.AfterFunc(wait, func() {
			mu.Lock()
			// A timer that already fired before Stop could observe a newer call.
			if mine != gen {
				mu.Unlock()
				return
			}
			timer = nil
			mu.Unlock()
			fn(arg)
		})
	}
}
