package lister

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pluginlister/internal/eventbus"
	logx "pluginlister/pkg/logx"
)

const (
	MaxRetries = 3
	RetryDelay = 5 * time.Second
)

// Timers schedules one-shot callbacks on the host loop. lost runs, off the
// loop, when fn can no longer be scheduled there.
type Timers interface {
	Once(d time.Duration, fn func(), lost func(error))
}

// WebRequests issues asynchronous POSTs whose completion runs on the host
// loop. lost runs, off the loop, when done can no longer be scheduled there.
type WebRequests interface {
	Post(url string, body []byte, headers map[string]string, done func(status int, err error), lost func(error))
}

// DeliveryEvent is the Data of delivery.* bus events.
type DeliveryEvent struct {
	ID      string `json:"id"`
	Attempt int    `json:"attempt"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Engine posts payloads to the configured webhook with fixed-delay retries.
type Engine struct {
	settings func() Settings
	web      WebRequests
	timers   Timers
	bus      eventbus.Bus
	log      logx.Logger

	maxRetries int
	delay      time.Duration
}

func NewEngine(settings func() Settings, web WebRequests, timers Timers, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		settings:   settings,
		web:        web,
		timers:     timers,
		bus:        bus,
		log:        log,
		maxRetries: MaxRetries,
		delay:      RetryDelay,
	}
}

type attempt struct {
	id    string
	body  []byte
	retry int
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

// Deliver starts an asynchronous delivery of p and returns its ID.
// ErrWebhookUnconfigured is returned, and nothing is sent, when the URL is
// empty or still the placeholder.
func (e *Engine) Deliver(p Payload) (string, error) {
	if !e.settings().WebhookConfigured() {
		e.log.Info("webhook not configured; skipping delivery")
		return "", ErrWebhookUnconfigured
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	a := &attempt{id: uuid.NewString(), body: body}
	e.send(a)
	return a.id, nil
}

func (e *Engine) send(a *attempt) {
	// The URL is read per attempt so a settings reload between retries
	// takes effect.
	st := e.settings()
	if !st.WebhookConfigured() {
		e.log.Info("webhook no longer configured; dropping delivery",
			logx.String("delivery_id", a.id),
			logx.Int("attempt", a.retry),
		)
		return
	}
	e.web.Post(st.WebhookURL, a.body, jsonHeaders,
		func(status int, err error) { e.complete(a, status, err) },
		func(err error) {
			e.giveUp(a.id, a.retry+1, DeliveryEvent{ID: a.id, Attempt: a.retry, Error: err.Error()}, err)
		},
	)
}

func (e *Engine) complete(a *attempt, status int, err error) {
	ev := DeliveryEvent{ID: a.id, Attempt: a.retry, Status: status}
	if err == nil && (status == http.StatusOK || status == http.StatusNoContent) {
		e.log.Info("webhook delivered",
			logx.String("delivery_id", a.id),
			logx.Int("status", status),
			logx.Int("attempt", a.retry),
		)
		e.publish(eventbus.TypeDeliverySent, ev)
		return
	}
	if err == nil {
		err = fmt.Errorf("unexpected status %d", status)
	}
	ev.Error = err.Error()

	if a.retry < e.maxRetries {
		e.log.Warn("webhook delivery failed; retrying",
			logx.String("delivery_id", a.id),
			logx.Int("attempt", a.retry),
			logx.Duration("delay", e.delay),
			logx.Err(err),
		)
		e.publish(eventbus.TypeDeliveryRetry, ev)
		next := &attempt{id: a.id, body: a.body, retry: a.retry + 1}
		e.timers.Once(e.delay, func() { e.send(next) }, func(lerr error) {
			e.giveUp(a.id, a.retry+1, ev, fmt.Errorf("%w (retry not scheduled: %w)", err, lerr))
		})
		return
	}
	e.giveUp(a.id, a.retry+1, ev, err)
}

// giveUp ends a delivery chain. It may run off the loop, so it only logs
// and publishes.
func (e *Engine) giveUp(id string, attempts int, ev DeliveryEvent, err error) {
	e.log.Error("webhook delivery gave up",
		logx.String("delivery_id", id),
		logx.Int("attempts", attempts),
		logx.Err(fmt.Errorf("%w: %w", ErrDeliveryFailed, err)),
	)
	e.publish(eventbus.TypeDeliveryFailed, ev)
}

func (e *Engine) publish(typ string, ev DeliveryEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
