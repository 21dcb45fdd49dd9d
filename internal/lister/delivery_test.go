package lister

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
	logx "pluginlister/pkg/logx"
)

func TestDeliverSkipsUnconfiguredWebhook(t *testing.T) {
	t.Parallel()
	for _, url := range []string{"", "   ", PlaceholderWebhookURL} {
		st := DefaultSettings()
		st.WebhookURL = url
		web := &scriptedWeb{}
		e := NewEngine(settingsFunc(st), web, &manualTimers{}, nil, logx.Nop())

		if _, err := e.Deliver(Payload{Content: "x"}); !errors.Is(err, ErrWebhookUnconfigured) {
			t.Fatalf("url %q: Deliver = %v", url, err)
		}
		if len(web.posts) != 0 {
			t.Fatalf("url %q: %d posts sent", url, len(web.posts))
		}
	}
}

func TestDeliverSuccessStatuses(t *testing.T) {
	t.Parallel()
	for _, status := range []int{200, 204} {
		web := &scriptedWeb{statuses: []int{status}}
		timers := &manualTimers{}
		bus := &collector{}
		e := NewEngine(settingsFunc(configured()), web, timers, bus, logx.Nop())

		id, err := e.Deliver(Payload{Content: "hello"})
		if err != nil || id == "" {
			t.Fatalf("Deliver = %q, %v", id, err)
		}
		if len(web.posts) != 1 {
			t.Fatalf("status %d: %d posts, want 1", status, len(web.posts))
		}
		p := web.posts[0]
		if p.url != configured().WebhookURL || p.body != `{"content":"hello"}` || p.headers["Content-Type"] != "application/json" {
			t.Fatalf("post = %+v", p)
		}
		if len(timers.pending) != 0 {
			t.Fatalf("status %d scheduled a retry", status)
		}
		if got := bus.types(); len(got) != 1 || got[0] != eventbus.TypeDeliverySent {
			t.Fatalf("events = %v", got)
		}
	}
}

func TestDeliverRetriesThenGivesUp(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	web := &scriptedWeb{statuses: []int{500}, errs: []error{nil, errors.New("connection reset")}}
	timers := &manualTimers{}
	bus := &collector{}
	e := NewEngine(settingsFunc(configured()), web, timers, bus, logx.NewWriter(&buf, "debug"))

	if _, err := e.Deliver(Payload{Content: "x"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	for timers.Fire() {
	}

	if len(web.posts) != 1+MaxRetries {
		t.Fatalf("attempts = %d, want %d", len(web.posts), 1+MaxRetries)
	}
	if len(timers.delays) != MaxRetries {
		t.Fatalf("retries scheduled = %d, want %d", len(timers.delays), MaxRetries)
	}
	for i, d := range timers.delays {
		if d != RetryDelay {
			t.Fatalf("retry %d delay = %v, want %v", i, d, RetryDelay)
		}
	}
	want := []string{eventbus.TypeDeliveryRetry, eventbus.TypeDeliveryRetry, eventbus.TypeDeliveryRetry, eventbus.TypeDeliveryFailed}
	got := bus.types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	out := buf.String()
	if strings.Count(out, `"level":"error"`) != 1 || !strings.Contains(out, "webhook delivery gave up") {
		t.Fatalf("terminal failure not logged once:\n%s", out)
	}
	if !strings.Contains(out, ErrDeliveryFailed.Error()) {
		t.Fatalf("log lacks %q:\n%s", ErrDeliveryFailed, out)
	}
}

func TestDeliverSucceedsOnRetry(t *testing.T) {
	t.Parallel()
	web := &scriptedWeb{statuses: []int{502, 429, 204}}
	timers := &manualTimers{}
	bus := &collector{}
	e := NewEngine(settingsFunc(configured()), web, timers, bus, logx.Nop())

	_, _ = e.Deliver(Payload{Content: "x"})
	for timers.Fire() {
	}
	if len(web.posts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(web.posts))
	}
	got := bus.types()
	if len(got) != 3 || got[2] != eventbus.TypeDeliverySent {
		t.Fatalf("events = %v", got)
	}
	ev := bus.got[2].Data.(DeliveryEvent)
	if ev.Attempt != 2 || ev.Status != 204 {
		t.Fatalf("sent event = %+v", ev)
	}
}

func TestDeliverStopsWhenWebhookRemovedBetweenRetries(t *testing.T) {
	t.Parallel()
	st := configured()
	web := &scriptedWeb{statuses: []int{500}}
	timers := &manualTimers{}
	e := NewEngine(func() Settings { return st }, web, timers, nil, logx.Nop())

	_, _ = e.Deliver(Payload{Content: "x"})
	st.WebhookURL = PlaceholderWebhookURL
	for timers.Fire() {
	}
	if len(web.posts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(web.posts))
	}
}

func waitForEvent(t *testing.T, bus *collector, typ string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, got := range bus.types() {
			if got == typ {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event; got %v", typ, bus.types())
}

func TestDeliverRetriesSurviveFullLoop(t *testing.T) {
	t.Parallel()
	loop := host.NewLoop(1, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { defer close(stopped); _ = loop.Run(ctx) }()
	defer func() { cancel(); <-stopped }()

	release := make(chan struct{})
	busy := make(chan struct{})
	loop.Post(func() { close(busy); <-release })
	<-busy
	loop.Post(func() {})

	web := &scriptedWeb{statuses: []int{500}}
	bus := &collector{}
	e := NewEngine(settingsFunc(configured()), web, loop, bus, logx.Nop())
	e.delay = time.Millisecond

	if _, err := e.Deliver(Payload{Content: "x"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	waitForEvent(t, bus, eventbus.TypeDeliveryFailed)
	if len(web.posts) != 1+MaxRetries {
		t.Fatalf("attempts = %d, want %d", len(web.posts), 1+MaxRetries)
	}
	if loop.Dropped() != 0 {
		t.Fatalf("loop dropped %d jobs", loop.Dropped())
	}
}

func TestDeliverGivesUpWhenLoopStopped(t *testing.T) {
	t.Parallel()
	loop := host.NewLoop(1, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = loop.Run(ctx)

	var buf bytes.Buffer
	web := &scriptedWeb{statuses: []int{500}}
	bus := &collector{}
	e := NewEngine(settingsFunc(configured()), web, loop, bus, logx.NewWriter(&buf, "debug"))
	e.delay = time.Millisecond

	if _, err := e.Deliver(Payload{Content: "x"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	waitForEvent(t, bus, eventbus.TypeDeliveryFailed)

	if got := bus.types(); strings.Join(got, ",") != eventbus.TypeDeliveryRetry+","+eventbus.TypeDeliveryFailed {
		t.Fatalf("events = %v", got)
	}
	if len(web.posts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(web.posts))
	}
	out := buf.String()
	if strings.Count(out, "webhook delivery gave up") != 1 || !strings.Contains(out, host.ErrLoopStopped.Error()) {
		t.Fatalf("terminal failure not logged:\n%s", out)
	}
}
