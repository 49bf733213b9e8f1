package timing

import (
	"sync"
	"time"
)

// Throttle returns a function that calls fn at most once per limit. The first
// call of a window fires immediately; calls made while the window is open are
// dropped, not queued.
func Throttle[T any](fn func(T), limit time.Duration) func(T) {
	return ThrottleWithClock(SystemClock(), fn, limit)
}

// ThrottleWithClock is Throttle with an injected clock.
func ThrottleWithClock[T any](clock Clock, fn func(T), limit time.Duration) func(T) {
	var (
		mu          sync.Mutex
		windowStart time.Time
		open        bool
	)
	return func(arg T) {
		mu.Lock()
		now := clock.Now()
		if open && now.Sub(windowStart) < limit {
			mu.Unlock()
			return
		}
		open = true
		windowStart = now
		mu.Unlock()

		fn(arg)
	}
}
