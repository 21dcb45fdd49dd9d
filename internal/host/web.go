package host

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	logx "pluginlister/pkg/logx"
)

type WebConfig struct {
	Timeout    time.Duration
	RatePerSec int
	UserAgent  string
}

// WebClient performs HTTP requests off the loop and delivers the result
// back onto it. Requests share a token bucket so bursts of chunked
// payloads stay inside the receiver's rate limits.
type WebClient struct {
	ctx     context.Context
	client  *resty.Client
	limiter *rate.Limiter
	loop    *Loop
	log     logx.Logger

	wg sync.WaitGroup
}

// NewWebClient binds the client to ctx: canceling it aborts in-flight
// requests, and their callbacks still run with the context error.
func NewWebClient(ctx context.Context, cfg WebConfig, loop *Loop, log logx.Logger) *WebClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pluginlister"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)
	return &WebClient{
		ctx:     ctx,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		loop:    loop,
		log:     log,
	}
}

// Post sends body to url in the background and runs done(status, err) on
// the loop. status is 0 when err is non-nil. A full loop queue delays done;
// if the loop has stopped, lost (when non-nil) gets ErrLoopStopped off the
// loop instead.
func (w *WebClient) Post(url string, body []byte, headers map[string]string, done func(status int, err error), lost func(error)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		status, err := w.post(url, body, headers)
		if done == nil {
			return
		}
		if perr := w.loop.PostWait(func() { done(status, err) }); perr != nil {
			w.log.Warn("web callback lost", logx.Int("status", status), logx.Err(perr))
			if lost != nil {
				lost(perr)
			}
		}
	}()
}

func (w *WebClient) post(url string, body []byte, headers map[string]string) (int, error) {
	if err := w.limiter.Wait(w.ctx); err != nil {
		return 0, err
	}
	resp, err := w.client.R().
		SetContext(w.ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}

// Wait blocks until in-flight requests finish or ctx is done.
func (w *WebClient) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
