// Package router turns transport messages into command invocations on the
// host loop and carries replies back to the originating transport.
package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pluginlister/internal/host"
	"pluginlister/internal/transport"
	logx "pluginlister/pkg/logx"
)

// Command is a plugin command handler. It runs on the host loop.
type Command func(p host.Player, args []string)

type Request struct {
	Message  transport.Message
	Command  string
	Args     []string
	ReqID    string
	Received time.Time
	Player   host.Player
	Logger   logx.Logger
}

type reply struct {
	to   transport.ChatTarget
	text string
	log  logx.Logger
}

type Router struct {
	loop host.Poster
	log  logx.Logger

	mu       sync.RWMutex
	cmds     map[string]handler
	adapters map[string]transport.Adapter

	outbox chan reply
}

func New(loop host.Poster, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		loop:     loop,
		log:      log.With(logx.String("comp", "router")),
		cmds:     map[string]handler{},
		adapters: map[string]transport.Adapter{},
		outbox:   make(chan reply, 64),
	}
}

// Handle registers cmd under name (case-insensitive, without the slash).
func (r *Router) Handle(name string, cmd Command) {
	h := func(req *Request) { cmd(req.Player, req.Args) }
	final := chain(h, timeCommand, recoverPanic)

	r.mu.Lock()
	r.cmds[strings.ToLower(name)] = final
	r.mu.Unlock()
}

// Attach makes a the reply path for messages whose Source is a.Name().
func (r *Router) Attach(a transport.Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

// ParseCommand splits text on whitespace into a lowercase command name and
// its args. A leading "/" and a Telegram "@botname" suffix are dropped.
func ParseCommand(text string) (name string, args []string, ok bool) {
	toks := strings.Fields(text)
	if len(toks) == 0 {
		return "", nil, false
	}
	name = strings.TrimPrefix(toks[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), toks[1:], true
}

// Dispatch posts the command in msg onto the loop. It reports false for
// text that is not a registered command and once ctx is done.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) bool {
	if ctx.Err() != nil {
		return false
	}
	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return false
	}
	r.mu.RLock()
	h, ok := r.cmds[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("unknown command", logx.String("source", msg.Source), logx.String("cmd", name))
		return false
	}

	rid := uuid.NewString()
	reqLog := r.log.With(
		logx.String("rid", rid),
		logx.String("source", msg.Source),
		logx.String("from_id", msg.FromID),
		logx.String("cmd", name),
	)
	to := msg.Target()
	player := host.NewPlayer(msg.FromID, msg.FromName, msg.Admin, func(text string) {
		r.enqueue(reply{to: to, text: text, log: reqLog})
	})
	req := &Request{
		Message:  msg,
		Command:  name,
		Args:     args,
		ReqID:    rid,
		Received: time.Now(),
		Player:   player,
		Logger:   reqLog,
	}

	if !r.loop.Post(func() { h(req) }) {
		r.enqueue(reply{to: to, text: "busy, try again", log: reqLog})
	}
	return true
}

func (r *Router) enqueue(rp reply) {
	select {
	case r.outbox <- rp:
	default:
		rp.log.Warn("reply dropped; outbox full", logx.String("source", rp.to.Source))
	}
}

// Run reads inbound messages and dispatches them until ctx is done or in
// is closed.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, msg)
		}
	}
}

// RunReplies delivers queued replies to their adapters. Sends happen here,
// off the loop, so a slow transport never stalls command handling.
func (r *Router) RunReplies(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rp := <-r.outbox:
			r.mu.RLock()
			a := r.adapters[rp.to.Source]
			r.mu.RUnlock()
			if a == nil {
				rp.log.Warn("no adapter for reply", logx.String("source", rp.to.Source))
				continue
			}
			if err := a.SendText(ctx, rp.to, rp.text); err != nil {
				rp.log.Warn("reply failed", logx.Err(err))
			}
		}
	}
}
