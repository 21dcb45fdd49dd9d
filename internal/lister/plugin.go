package lister

import (
	"errors"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
	logx "pluginlister/pkg/logx"
)

const (
	Name    = "PluginLister"
	Version = "1.4.0"

	CommandName = "listplugins"
	PermUse     = "pluginlister.listplugins"
	GroupAdmin  = "pluginlister.admin"
)

// Permissions is the host permission system as seen by the plugin.
type Permissions interface {
	PermissionChecker
	GroupExists(name string) bool
	CreateGroup(name, title string, rank int) bool
	PermissionExists(name string) bool
	RegisterPermission(name, owner string)
	GrantGroupPermission(group, perm string) bool
}

// Registry lists the plugins currently loaded by the host.
type Registry interface {
	Plugins() ([]host.PluginInfo, error)
}

// CommandEvent is the Data of lister.command bus events.
type CommandEvent struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Outcome  string `json:"outcome"`
	Plugins  int    `json:"plugins,omitempty"`
}

// Command outcomes.
const (
	OutcomeListed   = "listed"
	OutcomeEmpty    = "empty"
	OutcomeDenied   = "denied"
	OutcomeDisabled = "disabled"
	OutcomeCooldown = "cooldown"
)

type Deps struct {
	Log         logx.Logger
	Bus         eventbus.Bus
	Permissions Permissions
	Registry    Registry
	Timers      Timers
	Web         WebRequests
	Settings    *SettingsStore
	Lang        *Lang
	Now         func() time.Time
}

// Plugin is the listplugins command and its webhook mirror. All methods
// must be called from the host loop.
type Plugin struct {
	log      logx.Logger
	bus      eventbus.Bus
	perms    Permissions
	registry Registry
	settings *SettingsStore
	lang     *Lang
	now      func() time.Time

	gate   *Gate
	engine *Engine
}

func New(d Deps) *Plugin {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "lister"))
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Lang == nil {
		d.Lang = DefaultLang()
	}
	if d.Settings == nil {
		d.Settings = NewSettingsStore("", log)
	}
	p := &Plugin{
		log:      log,
		bus:      d.Bus,
		perms:    d.Permissions,
		registry: d.Registry,
		settings: d.Settings,
		lang:     d.Lang,
		now:      d.Now,
	}
	p.gate = NewGate(d.Permissions, PermUse, d.Settings.Get, d.Now)
	p.engine = NewEngine(d.Settings.Get, d.Web, d.Timers, d.Bus, log.With(logx.String("comp", "delivery")))
	return p
}

// OnServerInitialized creates the admin group, registers the command
// permission and grants it to the group. Each step is skipped when already
// done.
func (p *Plugin) OnServerInitialized() {
	if p.perms == nil {
		return
	}
	if !p.perms.GroupExists(GroupAdmin) {
		p.perms.CreateGroup(GroupAdmin, Name+" Admin", 0)
		p.log.Info("permission group created", logx.String("group", GroupAdmin))
	}
	if !p.perms.PermissionExists(PermUse) {
		p.perms.RegisterPermission(PermUse, Name)
	}
	if p.perms.GrantGroupPermission(GroupAdmin, PermUse) {
		p.log.Info("permission granted", logx.String("group", GroupAdmin), logx.String("perm", PermUse))
	}
}

// ListPlugins handles the chat command. Exactly one reply is sent to the
// player; args are ignored.
func (p *Plugin) ListPlugins(player host.Player, _ []string) {
	if err := p.gate.Authorize(player); err != nil {
		var cd *CooldownError
		switch {
		case errors.As(err, &cd):
			player.Reply(p.lang.Get(MsgCooldown, cd.Seconds()))
			p.record(player, OutcomeCooldown, 0)
		case errors.Is(err, ErrPluginDisabled):
			player.Reply(p.lang.Get(MsgPluginDisabled))
			p.record(player, OutcomeDisabled, 0)
		default:
			player.Reply(p.lang.Get(MsgNoPermission))
			p.record(player, OutcomeDenied, 0)
		}
		return
	}

	items, err := p.registry.Plugins()
	if err != nil {
		p.log.Warn("plugin registry failed", logx.Err(err))
		items = nil
	}
	if len(items) == 0 {
		player.Reply(p.lang.Get(MsgNoPlugins))
		p.record(player, OutcomeEmpty, 0)
		return
	}

	player.Reply(ShortList(items))
	p.record(player, OutcomeListed, len(items))

	st := p.settings.Get()
	if !st.EnableDiscordWebhook {
		return
	}
	payloads := BuildContent(items)
	if st.WebhookFormat == FormatEmbed {
		payloads = []Payload{BuildEmbed(items)}
	}
	for _, pl := range payloads {
		if _, err := p.engine.Deliver(pl); err != nil {
			// Unconfigured is logged by the engine; later chunks would be too.
			return
		}
	}
}

// SweepCooldowns evicts expired cooldown records.
func (p *Plugin) SweepCooldowns() {
	if n := p.gate.Sweep(p.now()); n > 0 {
		p.log.Debug("cooldowns swept", logx.Int("evicted", n), logx.Int("remaining", p.gate.Len()))
	}
}

// LoadSettings reads the settings file at startup, writing defaults or a
// migrated copy when needed.
func (p *Plugin) LoadSettings() {
	p.logSettings("settings loaded", p.settings.Load())
}

// ReloadSettings re-reads the settings file after it changed on disk. A
// broken file keeps the current settings.
func (p *Plugin) ReloadSettings() {
	st, err := p.settings.Reload()
	if err != nil {
		return
	}
	p.logSettings("settings reloaded", st)
}

func (p *Plugin) logSettings(msg string, st Settings) {
	p.log.Info(msg,
		logx.Bool("enabled", st.EnablePlugin),
		logx.Bool("webhook", st.EnableDiscordWebhook && st.WebhookConfigured()),
		logx.String("format", st.WebhookFormat),
		logx.Int("cooldown_s", st.CommandCooldownSeconds),
	)
}

func (p *Plugin) record(player host.Player, outcome string, n int) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Type: eventbus.TypeCommand,
		Time: p.now(),
		Data: CommandEvent{UserID: player.ID(), UserName: player.Name(), Outcome: outcome, Plugins: n},
	})
}
