package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Path() string { return m.path }

// Parse reads, decodes and validates the config file without committing it.
// Unknown keys are rejected so typos surface at startup.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := CoerceToJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Host.PluginsDir) == "" {
		cfg.Host.PluginsDir = "./plugins"
	}
	if strings.TrimSpace(cfg.Host.PermissionsFile) == "" {
		cfg.Host.PermissionsFile = "./data/permissions.json"
	}
	if cfg.Host.LoopQueue <= 0 {
		cfg.Host.LoopQueue = 256
	}
	if strings.TrimSpace(cfg.Lister.SettingsFile) == "" {
		cfg.Lister.SettingsFile = "./config/PluginLister.json"
	}
	if strings.TrimSpace(cfg.Lister.SweepSchedule) == "" {
		cfg.Lister.SweepSchedule = "@every 5m"
	}
	if cfg.Webhook.RatePerSec <= 0 {
		cfg.Webhook.RatePerSec = 2
	}
}

// Validate checks values the decoder can't: durations, schedules, storage
// drivers and transport prerequisites.
func Validate(cfg *Config) error {
	if _, err := ParseDurationOrDefault("webhook.timeout", cfg.Webhook.Timeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(cfg.Lister.SweepSchedule); err != nil {
		return fmt.Errorf("lister.sweep_schedule: %w", err)
	}
	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled is true")
		}
		if _, err := ParseDurationOrDefault("telegram.poll_timeout", tg.PollTimeout, 10*time.Second); err != nil {
			return err
		}
	}
	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				return fmt.Errorf("storage.path is required for driver %q", st.Driver)
			}
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := ParseDurationOrDefault("storage.busy_timeout", st.BusyTimeout, 0); err != nil {
			return err
		}
	}
	if !cfg.Console.Enabled && (cfg.Telegram == nil || !cfg.Telegram.Enabled) {
		return fmt.Errorf("no transport enabled: enable console and/or telegram")
	}
	return nil
}
