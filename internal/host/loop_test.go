package host

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "pluginlister/pkg/logx"
)

func runLoop(t *testing.T, queue int) *Loop {
	t.Helper()
	l := NewLoop(queue, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoopRunsJobsInOrder(t *testing.T) {
	t.Parallel()
	l := runLoop(t, 16)

	got := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		if !l.Post(func() { got <- i }) {
			t.Fatalf("Post(%d) rejected", i)
		}
	}
	for want := 1; want <= 3; want++ {
		if v := <-got; v != want {
			t.Fatalf("job order: got %d, want %d", v, want)
		}
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	t.Parallel()
	l := runLoop(t, 4)

	ok := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(ok) })
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a panicking job")
	}
}

// stoppedLoop returns a loop whose Run has already returned.
func stoppedLoop(t *testing.T, queue int) *Loop {
	t.Helper()
	l := NewLoop(queue, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return l
}

func TestLoopPostWaitBlocksUntilRoom(t *testing.T) {
	t.Parallel()
	l := runLoop(t, 1)

	release := make(chan struct{})
	running := make(chan struct{})
	l.Post(func() { close(running); <-release })
	<-running
	if !l.Post(func() {}) {
		t.Fatal("queue should have room for one job")
	}

	ran := make(chan struct{})
	queued := make(chan error, 1)
	go func() { queued <- l.PostWait(func() { close(ran) }) }()

	select {
	case err := <-queued:
		t.Fatalf("PostWait returned %v while the queue was full", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	if err := <-queued; err != nil {
		t.Fatalf("PostWait: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("waited job never ran")
	}
	if l.Dropped() != 0 {
		t.Fatalf("Dropped() = %d", l.Dropped())
	}
}

func TestLoopOnceReportsStoppedLoop(t *testing.T) {
	t.Parallel()
	l := stoppedLoop(t, 1)
	if err := l.PostWait(func() {}); !errors.Is(err, ErrLoopStopped) {
		t.Fatalf("PostWait on stopped loop = %v", err)
	}

	lost := make(chan error, 1)
	l.Once(time.Millisecond, func() { t.Error("job ran on a stopped loop") }, func(err error) { lost <- err })
	select {
	case err := <-lost:
		if !errors.Is(err, ErrLoopStopped) {
			t.Fatalf("lost err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lost callback never ran")
	}
}

func TestLoopPostRejectsWhenFull(t *testing.T) {
	t.Parallel()
	l := NewLoop(1, logx.Nop()) // not running
	if !l.Post(func() {}) {
		t.Fatal("first Post should fit")
	}
	if l.Post(func() {}) {
		t.Fatal("second Post should be rejected")
	}
	if l.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", l.Dropped())
	}
}

func TestLoopOnceFiresOnLoop(t *testing.T) {
	t.Parallel()
	l := runLoop(t, 4)
	fired := make(chan time.Time, 1)
	start := time.Now()
	l.Once(20*time.Millisecond, func() { fired <- time.Now() }, nil)
	select {
	case at := <-fired:
		if at.Sub(start) < 20*time.Millisecond {
			t.Fatalf("fired early after %v", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestSchedulerPostsToLoop(t *testing.T) {
	t.Parallel()
	l := runLoop(t, 4)
	s := NewScheduler(l, logx.Nop())
	if err := s.Every("bad", "not a schedule", func() {}); err == nil {
		t.Fatal("expected invalid spec error")
	}
	fired := make(chan struct{}, 1)
	if err := s.Every("tick", "@every 1s", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()
	defer s.Stop(context.Background())
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never ran")
	}
}
