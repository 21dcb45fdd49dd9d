package config

// Config is the daemon configuration. It is read once at startup; the
// plugin's own settings file (lister.settings_file) is a separate document
// that is watched and reloaded.
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Console  ConsoleConfig   `json:"console"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Host     HostConfig      `json:"host"`
	Lister   ListerConfig    `json:"lister"`
	Webhook  WebhookConfig   `json:"webhook"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingChat forwards warnings to telegram.log_chat_id.
type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ConsoleConfig enables the stdin console. Console input is always treated
// as coming from the server administrator.
type ConsoleConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	LogChatID    int64   `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// HostConfig describes the emulated plugin host.
//
// Defaults (when fields are omitted/zero):
//   - plugins_dir: "./plugins"
//   - permissions_file: "./data/permissions.json"
//   - loop_queue: 256
type HostConfig struct {
	PluginsDir      string `json:"plugins_dir"`
	PermissionsFile string `json:"permissions_file"`
	LoopQueue       int    `json:"loop_queue,omitempty"`
}

// ListerConfig locates the plugin's settings and message files.
//
// Defaults:
//   - settings_file: "./config/PluginLister.json"
//   - sweep_schedule: "@every 5m" (robfig/cron syntax)
type ListerConfig struct {
	SettingsFile  string `json:"settings_file"`
	LangFile      string `json:"lang_file,omitempty"`
	WatchSettings bool   `json:"watch_settings"`
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// WebhookConfig tunes the outbound HTTP client.
//
// Defaults: timeout "10s", rate_per_sec 2 (burst = rate).
type WebhookConfig struct {
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/audit.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
