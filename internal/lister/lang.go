package lister

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"pluginlister/internal/config"
	logx "pluginlister/pkg/logx"
)

// Message keys.
const (
	MsgNoPermission   = "NoPermission"
	MsgPluginDisabled = "PluginDisabled"
	MsgCooldown       = "Cooldown"
	MsgNoPlugins      = "NoPlugins"
)

var defaultMessages = map[string]string{
	MsgNoPermission:   "You don't have permission to use this command.",
	MsgPluginDisabled: "This plugin is currently disabled.",
	MsgCooldown:       "Please wait %d seconds before using this command again.",
	MsgNoPlugins:      "No plugins installed.",
}

// Lang holds the user-facing message templates.
type Lang struct {
	msgs map[string]string
}

func DefaultLang() *Lang {
	m := make(map[string]string, len(defaultMessages))
	for k, v := range defaultMessages {
		m[k] = v
	}
	return &Lang{msgs: m}
}

// LoadLang overlays the messages in path onto the defaults. Keys missing
// from the file are added and the file is written back. An override whose
// format verbs differ from the default's is ignored. An empty path yields
// the defaults.
func LoadLang(path string, log logx.Logger) (*Lang, error) {
	l := DefaultLang()
	if path == "" {
		return l, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	var stored map[string]string
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		jb, err := config.CoerceToJSON(path, b)
		if err != nil {
			return nil, fmt.Errorf("lang %s: %w", path, err)
		}
		if err := json.Unmarshal(jb, &stored); err != nil {
			return nil, fmt.Errorf("lang %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("lang %s: %w", path, err)
	}

	missing := 0
	for k, def := range defaultMessages {
		v, ok := stored[k]
		if !ok {
			missing++
			continue
		}
		if verbs(v) != verbs(def) {
			log.Warn("lang override does not match default placeholders; using default",
				logx.String("path", path),
				logx.String("key", k),
				logx.String("want", def),
			)
			continue
		}
		l.msgs[k] = v
	}
	if missing > 0 {
		out, err := config.Encode(path, l.msgs)
		if err == nil {
			err = config.WriteFileAtomic(path, out, 0o644)
		}
		if err != nil {
			log.Warn("lang write failed", logx.String("path", path), logx.Err(err))
		}
	}
	return l, nil
}

// Get formats the message for key. Unknown keys return the key itself.
func (l *Lang) Get(key string, args ...any) string {
	msg, ok := l.msgs[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// verbs returns the formatting verbs of s in order, "%%" excluded.
func verbs(s string) string {
	var b strings.Builder
	for i := 0; i+1 < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		i++
		if s[i] != '%' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
