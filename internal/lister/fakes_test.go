package lister

import (
	"sync"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
)

type clock struct{ t time.Time }

func newClock() *clock                   { return &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)} }
func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// manualTimers records scheduled callbacks; Fire runs the oldest one.
type manualTimers struct {
	delays  []time.Duration
	pending []func()
}

func (m *manualTimers) Once(d time.Duration, fn func(), _ func(error)) {
	m.delays = append(m.delays, d)
	m.pending = append(m.pending, fn)
}

func (m *manualTimers) Fire() bool {
	if len(m.pending) == 0 {
		return false
	}
	fn := m.pending[0]
	m.pending = m.pending[1:]
	fn()
	return true
}

type post struct {
	url     string
	body    string
	headers map[string]string
}

// scriptedWeb answers each Post synchronously with the next scripted
// status; once the script runs out it keeps answering with the last one.
type scriptedWeb struct {
	statuses []int
	errs     []error
	posts    []post
}

func (w *scriptedWeb) Post(url string, body []byte, headers map[string]string, done func(int, error), _ func(error)) {
	i := len(w.posts)
	w.posts = append(w.posts, post{url: url, body: string(body), headers: headers})
	status, err := 204, error(nil)
	if n := len(w.statuses); n > 0 {
		status = w.statuses[min(i, n-1)]
	}
	if i < len(w.errs) {
		err = w.errs[i]
	}
	done(status, err)
}

type fakePlayer struct {
	id, name string
	admin    bool
	replies  []string
}

func (p *fakePlayer) ID() string       { return p.id }
func (p *fakePlayer) Name() string     { return p.name }
func (p *fakePlayer) IsAdmin() bool    { return p.admin }
func (p *fakePlayer) Reply(msg string) { p.replies = append(p.replies, msg) }

var _ host.Player = (*fakePlayer)(nil)

type permSet map[string]bool

func (s permSet) HasPermission(userID, perm string) bool { return s[userID+"|"+perm] }

type staticRegistry struct {
	items []host.PluginInfo
	err   error
}

func (r staticRegistry) Plugins() ([]host.PluginInfo, error) { return r.items, r.err }

// collect drains events published on bus so far.
type collector struct {
	mu  sync.Mutex
	got []eventbus.Event
}

func (c *collector) Publish(e eventbus.Event) {
	c.mu.Lock()
	c.got = append(c.got, e)
	c.mu.Unlock()
}

func (c *collector) Subscribe(int) (<-chan eventbus.Event, func()) {
	ch := make(chan eventbus.Event)
	close(ch)
	return ch, func() {}
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.got))
	for _, e := range c.got {
		out = append(out, e.Type)
	}
	return out
}

func settingsFunc(s Settings) func() Settings {
	return func() Settings { return s }
}

func configured() Settings {
	s := DefaultSettings()
	s.WebhookURL = "https://hooks.example.test/abc"
	return s
}
