package lister

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"pluginlister/internal/config"
	logx "pluginlister/pkg/logx"
)

const (
	// ConfigVersion is stamped into every settings file this build writes.
	ConfigVersion = Version

	PlaceholderWebhookURL  = "YOUR_DISCORD_WEBHOOK_URL_HERE"
	DefaultCooldownSeconds = 30

	FormatContent = "content"
	FormatEmbed   = "embed"
)

// Settings is the user-editable plugin configuration.
type Settings struct {
	EnablePlugin           bool   `json:"EnablePlugin"`
	EnableDiscordWebhook   bool   `json:"EnableDiscordWebhook"`
	WebhookURL             string `json:"WebhookUrl"`
	CommandCooldownSeconds int    `json:"CommandCooldownSeconds"`
	// WebhookFormat selects plain-text chunks ("content") or a single
	// rich embed ("embed").
	WebhookFormat string `json:"WebhookFormat"`
	ConfigVersion string `json:"ConfigVersion"`
}

func DefaultSettings() Settings {
	return Settings{
		EnablePlugin:           true,
		EnableDiscordWebhook:   true,
		WebhookURL:             PlaceholderWebhookURL,
		CommandCooldownSeconds: DefaultCooldownSeconds,
		WebhookFormat:          FormatContent,
		ConfigVersion:          ConfigVersion,
	}
}

// WebhookConfigured reports whether WebhookURL points somewhere real.
func (s Settings) WebhookConfigured() bool {
	u := strings.TrimSpace(s.WebhookURL)
	return u != "" && u != PlaceholderWebhookURL
}

func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CommandCooldownSeconds) * time.Second
}

// migrate fills invalid fields with defaults and stamps the current
// version. It reports whether anything changed.
func migrate(s Settings) (Settings, bool) {
	changed := false
	if s.ConfigVersion != ConfigVersion {
		s.ConfigVersion = ConfigVersion
		changed = true
	}
	if strings.TrimSpace(s.WebhookURL) == "" {
		s.WebhookURL = PlaceholderWebhookURL
		changed = true
	}
	if s.CommandCooldownSeconds <= 0 {
		s.CommandCooldownSeconds = DefaultCooldownSeconds
		changed = true
	}
	switch s.WebhookFormat {
	case FormatContent, FormatEmbed:
	default:
		s.WebhookFormat = FormatContent
		changed = true
	}
	return s, changed
}

// SettingsStore persists Settings in a JSON or YAML file (by extension).
//
// It is not safe for concurrent use; the plugin only touches it from the
// host loop.
type SettingsStore struct {
	path string
	log  logx.Logger
	cur  Settings
}

func NewSettingsStore(path string, log logx.Logger) *SettingsStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SettingsStore{path: path, log: log, cur: DefaultSettings()}
}

func (s *SettingsStore) Path() string { return s.path }

// Get returns the settings currently in effect.
func (s *SettingsStore) Get() Settings { return s.cur }

// Default replaces the in-memory settings with defaults.
func (s *SettingsStore) Default() Settings {
	s.cur = DefaultSettings()
	return s.cur
}

// Load reads the file at startup. A missing, unreadable or malformed file is replaced
// by defaults; an outdated or invalid one is migrated. Either way the
// result is saved back and returned.
func (s *SettingsStore) Load() Settings {
	loaded, err := s.read()
	if err != nil {
		s.log.Warn("settings missing or corrupt; writing defaults", logx.String("path", s.path), logx.Err(err))
		s.Default()
		_ = s.Save()
		return s.cur
	}

	return s.apply(loaded)
}

// Reload re-reads the file after it changed on disk. Unlike Load, a file
// that cannot be read or parsed leaves both the settings in effect and the
// file untouched; the error is logged and returned.
func (s *SettingsStore) Reload() (Settings, error) {
	loaded, err := s.read()
	if err != nil {
		s.log.Warn("settings reload failed; keeping current settings", logx.String("path", s.path), logx.Err(err))
		return s.cur, err
	}
	return s.apply(loaded), nil
}

func (s *SettingsStore) apply(loaded Settings) Settings {
	migrated, changed := migrate(loaded)
	s.cur = migrated
	if changed {
		s.log.Info("settings migrated",
			logx.String("path", s.path),
			logx.String("from_version", loaded.ConfigVersion),
			logx.String("to_version", ConfigVersion),
		)
		_ = s.Save()
	}
	return s.cur
}

func (s *SettingsStore) read() (Settings, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return Settings{}, err
	}
	jb, err := config.CoerceToJSON(s.path, b)
	if err != nil {
		return Settings{}, err
	}

	// Fields absent from older files keep their defaults; the version is
	// cleared so a file without one is treated as outdated.
	out := DefaultSettings()
	out.ConfigVersion = ""
	ptr := &out
	if err := json.Unmarshal(jb, &ptr); err != nil {
		return Settings{}, err
	}
	if ptr == nil {
		return Settings{}, fmt.Errorf("settings file is null")
	}
	return out, nil
}

// Save writes the in-memory settings. Errors are logged and returned; the
// in-memory settings stay in effect either way.
func (s *SettingsStore) Save() error {
	b, err := config.Encode(s.path, s.cur)
	if err == nil {
		err = config.WriteFileAtomic(s.path, b, 0o644)
	}
	if err != nil {
		s.log.Warn("settings save failed", logx.String("path", s.path), logx.Err(err))
		return err
	}
	return nil
}
