package batcher

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameInterval is one frame at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// FrameScheduler runs callbacks on the next boundary of a fixed frame grid,
// so everything scheduled within one frame runs at the same tick.
//
// The callback goroutine is where unhandled action panics end up: they are
// recovered and logged, and later frames keep running.
type FrameScheduler struct {
	interval time.Duration
	origin   time.Time
	logger   *slog.Logger
	stopped  atomic.Bool
}

// NewFrameScheduler creates a scheduler with the given frame interval.
// A non-positive interval uses DefaultFrameInterval; a nil logger uses
// slog.Default().
func NewFrameScheduler(interval time.Duration, logger *slog.Logger) *FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameScheduler{
		interval: interval,
		origin:   time.Now(),
		logger:   logger.With("component", "frame_scheduler"),
	}
}

// Interval returns the frame interval.
func (s *FrameScheduler) Interval() time.Duration {
	return s.interval
}

// Schedule runs fn at the start of the next frame.
func (s *FrameScheduler) Schedule(fn func()) {
	if s.stopped.Load() {
		return
	}
	elapsed := time.Since(s.origin)
	delay := s.interval - elapsed%s.interval
	time.AfterFunc(delay, func() {
		if s.stopped.Load() {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("update action panicked",
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	})
}

// Stop drops all callbacks that have not started yet.
func (s *FrameScheduler) Stop() {
	s.stopped.Store(true)
}

// ManualScheduler queues callbacks until Tick is called. It stands in for a
// display that is driven by the caller, e.g. in tests or headless renders.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

// Schedule queues fn for the next Tick.
func (s *ManualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, fn)
}

// Tick runs the callbacks queued before the call and returns how many ran.
func (s *ManualScheduler) Tick() int {
	s.mu.Lock()
	queue := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Len returns the number of queued callbacks.
func (s *ManualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
