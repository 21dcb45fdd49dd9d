package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"pluginlister/internal/config"
	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
	"pluginlister/internal/lister"
	"pluginlister/internal/router"
	"pluginlister/internal/runtime/supervisor"
	"pluginlister/internal/storage"
	"pluginlister/internal/transport"
	"pluginlister/internal/transport/console"
	"pluginlister/internal/transport/telegram"
	logx "pluginlister/pkg/logx"
)

// Options overrides process-level I/O. Zero values use os.Stdin/os.Stdout.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
}

type App struct {
	cfg *config.Config
	sup *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	loop     *host.Loop
	sched    *host.Scheduler
	perms    *host.PermissionStore
	registry *host.ManifestRegistry
	web      *host.WebClient
	settings *lister.SettingsStore
	lang     *lister.Lang
	plugin   *lister.Plugin

	router   *router.Router
	adapters []transport.Adapter
	inbox    chan transport.Message
}

// NewApp loads the daemon config at cfgPath and builds the app.
func NewApp(cfgPath string) (*App, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, Options{})
}

func New(cfg *config.Config, opt Options) (*App, error) {
	if opt.Stdin == nil {
		opt.Stdin = os.Stdin
	}
	if opt.Stdout == nil {
		opt.Stdout = os.Stdout
	}

	bootLog := logx.NewConsole("info")

	// Transports come first so the chat log sink can use Telegram.
	var (
		adapters []transport.Adapter
		tg       *telegram.Adapter
	)
	if cfg.Console.Enabled {
		adapters = append(adapters, console.New(opt.Stdin, opt.Stdout, bootLog))
	}
	if tc := cfg.Telegram; tc != nil && tc.Enabled {
		poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", tc.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err = telegram.New(telegram.Config{
			Token:        tc.Token,
			AdminUserIDs: tc.AdminUserIDs,
			PollTimeout:  poll,
		}, bootLog)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		adapters = append(adapters, tg)
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	var sender transport.Adapter
	if tg != nil && cfg.Telegram.LogChatID != 0 {
		sender = tg
		logCfg.Chat = logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			Source:     telegram.Name,
			ChatID:     cfg.Telegram.LogChatID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		}
	}
	logSvc, root := logx.New(logCfg, sender)
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	perms, err := host.OpenPermissions(cfg.Host.PermissionsFile, root.With(logx.String("comp", "permissions")))
	if err != nil {
		return nil, err
	}
	lang, err := lister.LoadLang(cfg.Lister.LangFile, root)
	if err != nil {
		return nil, err
	}

	loop := host.NewLoop(cfg.Host.LoopQueue, root.With(logx.String("comp", "loop")))

	return &App{
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		loop:     loop,
		sched:    host.NewScheduler(loop, root.With(logx.String("comp", "scheduler"))),
		perms:    perms,
		registry: host.NewManifestRegistry(cfg.Host.PluginsDir, root.With(logx.String("comp", "registry"))),
		settings: lister.NewSettingsStore(cfg.Lister.SettingsFile, root.With(logx.String("comp", "settings"))),
		lang:     lang,
		router:   router.New(loop, root),
		adapters: adapters,
		inbox:    make(chan transport.Message, 64),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	timeout, err := config.ParseDurationOrDefault("webhook.timeout", a.cfg.Webhook.Timeout, 10*time.Second)
	if err != nil {
		return err
	}
	a.web = host.NewWebClient(runCtx, host.WebConfig{
		Timeout:    timeout,
		RatePerSec: a.cfg.Webhook.RatePerSec,
		UserAgent:  lister.Name + "/" + lister.Version,
	}, a.loop, a.log.With(logx.String("comp", "web")))

	a.plugin = lister.New(lister.Deps{
		Log:         a.log,
		Bus:         a.bus,
		Permissions: a.perms,
		Registry:    a.registry,
		Timers:      a.loop,
		Web:         a.web,
		Settings:    a.settings,
		Lang:        a.lang,
	})
	a.router.Handle(lister.CommandName, a.plugin.ListPlugins)
	a.router.Handle(cmdPerm, consoleOnly(a.lang, permCommand(a.perms)))
	a.router.Handle(cmdAudit, consoleOnly(a.lang, auditCommand(a.store)))

	// The loop is not running yet, so these run before any command.
	a.plugin.LoadSettings()
	a.plugin.OnServerInitialized()

	a.sup.Go("host.loop", a.loop.Run)

	if err := a.sched.Every("lister.cooldown_sweep", a.cfg.Lister.SweepSchedule, a.plugin.SweepCooldowns); err != nil {
		return fmt.Errorf("lister.sweep_schedule: %w", err)
	}
	a.sched.Start()

	if a.cfg.Lister.WatchSettings {
		path := a.settings.Path()
		a.sup.Go("settings.watch", func(c context.Context) error {
			return config.WatchFile(c, path, a.log.With(logx.String("comp", "settings.watch")), func() {
				// Waits out a full queue so an edit is never skipped.
				_ = a.loop.PostWait(a.plugin.ReloadSettings)
			})
		})
	}

	if a.store != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("audit.record", func(c context.Context) {
			defer unsub()
			recordAudit(c, events, a.store, a.log.With(logx.String("comp", "audit")))
		})
	}

	// Debug-level event trace.
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	for _, ad := range a.adapters {
		a.router.Attach(ad)
		if err := ad.Start(runCtx, a.inbox); err != nil {
			return fmt.Errorf("start %s: %w", ad.Name(), err)
		}
		a.log.Info("transport started", logx.String("transport", ad.Name()))
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.inbox)
	})
	a.sup.Go("router.replies", a.router.RunReplies)

	a.log.Info("app started",
		logx.String("plugin", lister.Name),
		logx.String("version", lister.Version),
		logx.String("settings", a.settings.Path()),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// In-flight retries die with the run context.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	for _, ad := range a.adapters {
		ad := ad
		step("adapter."+ad.Name(), 2*time.Second, ad.Stop)
	}
	step("web", 2*time.Second, func(c context.Context) error {
		if a.web != nil {
			return a.web.Wait(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
