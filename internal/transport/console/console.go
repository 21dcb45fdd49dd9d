// Package console reads commands from the server console and writes replies
// back to it. The console user is always an admin.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"pluginlister/internal/transport"
	logx "pluginlister/pkg/logx"
)

const (
	Name   = "console"
	UserID = "console"
)

type Adapter struct {
	in  io.Reader
	log logx.Logger

	mu  sync.Mutex
	out io.Writer

	startOnce sync.Once
	done      chan struct{}
}

func New(in io.Reader, out io.Writer, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{in: in, out: out, log: log.With(logx.String("comp", "console")), done: make(chan struct{})}
}

func (a *Adapter) Name() string { return Name }

// Start reads lines until EOF or ctx is done. A read blocked on the
// underlying reader cannot be interrupted; the goroutine exits at the next
// line or EOF.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.startOnce.Do(func() {
		go a.read(ctx, out)
	})
	return nil
}

func (a *Adapter) read(ctx context.Context, out chan<- transport.Message) {
	defer close(a.done)
	sc := bufio.NewScanner(a.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		msg := transport.Message{
			Source:   Name,
			FromID:   UserID,
			FromName: "Server Console",
			Text:     line,
			Admin:    true,
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
	if err := sc.Err(); err != nil {
		a.log.Warn("console read failed", logx.Err(err))
		return
	}
	a.log.Debug("console input closed")
}

// Done is closed once the reader stops.
func (a *Adapter) Done() <-chan struct{} { return a.done }

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) SendText(_ context.Context, _ transport.ChatTarget, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintln(a.out, text)
	return err
}
