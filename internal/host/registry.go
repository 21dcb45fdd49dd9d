package host

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pluginlister/internal/config"
	logx "pluginlister/pkg/logx"
)

// PluginInfo describes one loaded plugin.
type PluginInfo struct {
	Title   string `json:"title"`
	Version string `json:"version"`
	Author  string `json:"author,omitempty"`
}

// ManifestRegistry reports the plugins loaded by the host, one manifest
// file (.json, .yaml or .yml) per plugin in a directory. The directory is
// read on every call so installs and removals show up immediately.
type ManifestRegistry struct {
	dir string
	log logx.Logger
}

func NewManifestRegistry(dir string, log logx.Logger) *ManifestRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ManifestRegistry{dir: dir, log: log}
}

// Plugins returns the loaded plugins sorted by title. A missing directory
// means no plugins. Unreadable manifests are skipped.
func (r *ManifestRegistry) Plugins() ([]PluginInfo, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]PluginInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		info, err := readManifest(filepath.Join(r.dir, name))
		if err != nil {
			r.log.Debug("manifest skipped", logx.String("file", name), logx.Err(err))
			continue
		}
		if info.Title == "" {
			info.Title = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if info.Version == "" {
			info.Version = "0.0.0"
		}
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out, nil
}

func readManifest(path string) (PluginInfo, error) {
	var info PluginInfo
	b, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	jb, err := config.CoerceToJSON(path, b)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(jb, &info); err != nil {
		return info, err
	}
	info.Title = strings.TrimSpace(info.Title)
	info.Version = strings.TrimSpace(info.Version)
	return info, nil
}
