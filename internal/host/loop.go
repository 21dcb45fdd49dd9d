package host

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "pluginlister/pkg/logx"
)

// ErrLoopStopped is reported for jobs that could not be queued because the
// loop has stopped.
var ErrLoopStopped = errors.New("host loop stopped")

// Poster hands a function to the loop goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Loop runs posted functions one at a time, in order, on a single goroutine.
type Loop struct {
	jobs    chan func()
	log     logx.Logger
	dropped atomic.Uint64

	stopped  chan struct{}
	stopOnce sync.Once
}

func NewLoop(queue int, log logx.Logger) *Loop {
	if queue <= 0 {
		queue = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{jobs: make(chan func(), queue), log: log, stopped: make(chan struct{})}
}

// Run drains the queue until ctx is done. A panicking job is logged and the
// loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.jobs:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop job panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}

// Post enqueues fn without blocking. It reports false when the queue is full.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case l.jobs <- fn:
		return true
	default:
		n := l.dropped.Add(1)
		l.log.Warn("loop queue full; job dropped", logx.Int64("dropped_total", int64(n)), logx.Int("queue_cap", cap(l.jobs)))
		return false
	}
}

// PostWait enqueues fn, waiting for queue room while the loop runs. It
// must not be called from the loop goroutine. ErrLoopStopped is returned
// once Run has returned.
func (l *Loop) PostWait(fn func()) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	select {
	case l.jobs <- fn:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Once runs fn on the loop after d. A full queue delays fn rather than
// dropping it. If the loop has stopped by then, lost (when non-nil) is
// called with ErrLoopStopped on the timer goroutine instead.
func (l *Loop) Once(d time.Duration, fn func(), lost func(error)) {
	time.AfterFunc(d, func() {
		if err := l.PostWait(fn); err != nil && lost != nil {
			lost(err)
		}
	})
}

// Dropped returns the number of jobs rejected because the queue was full.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }
