// Package telegram is a chat transport over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"pluginlister/internal/runtime/supervisor"
	"pluginlister/internal/transport"
	logx "pluginlister/pkg/logx"
)

const Name = "telegram"

type Config struct {
	Token        string
	AdminUserIDs []int64
	PollTimeout  time.Duration

	// Offline skips the getMe call on construction. Used by tests.
	Offline bool
}

type Adapter struct {
	cfg    Config
	log    logx.Logger
	admins map[int64]bool

	bot *tele.Bot
	out atomic.Value // chan<- transport.Message

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "telegram")),
		admins: make(map[int64]bool, len(cfg.AdminUserIDs)),
		bot:    b,
	}
	for _, id := range cfg.AdminUserIDs {
		a.admins[id] = true
	}
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if msg, ok := a.toMessage(c.Message()); ok {
			a.forward(msg)
		}
		return nil
	})
	return a, nil
}

func (a *Adapter) Name() string { return Name }

// toMessage maps a Telegram text message to a transport message. Only
// slash commands are forwarded.
func (a *Adapter) toMessage(m *tele.Message) (transport.Message, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil {
		return transport.Message{}, false
	}
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return transport.Message{}, false
	}
	name := m.Sender.Username
	if name == "" {
		name = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return transport.Message{
		Source:   Name,
		ChatID:   m.Chat.ID,
		FromID:   strconv.FormatInt(m.Sender.ID, 10),
		FromName: name,
		Text:     text,
		Admin:    a.admins[m.Sender.ID],
	}, true
}

func (a *Adapter) forward(msg transport.Message) {
	out, _ := a.out.Load().(chan<- transport.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Message) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		// adapter errors should not take down the whole app
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop; if it returns while we are still
	// running, restart it.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, 500*time.Millisecond, 10*time.Second)

	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming messages dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- transport.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still long-polling.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

// SendText sends text to a chat, split into as many messages as needed.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk); err != nil {
			return err
		}
	}
	return nil
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries and avoiding very small chunks.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
