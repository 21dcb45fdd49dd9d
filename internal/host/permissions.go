package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"pluginlister/internal/config"
	logx "pluginlister/pkg/logx"
)

// PermissionStore is a file-backed permission system.
//
// Groups and user memberships persist in a JSON file. Registered
// permissions live in memory only: plugins register them on every start,
// and a grant for a permission nobody registered never matches.
type PermissionStore struct {
	path string
	log  logx.Logger

	mu         sync.Mutex
	data       permData
	registered map[string]string // permission -> owner
}

type permData struct {
	Groups map[string]*groupData `json:"groups"`
	Users  map[string]*userData  `json:"users"`
}

type groupData struct {
	Title string   `json:"title,omitempty"`
	Rank  int      `json:"rank,omitempty"`
	Perms []string `json:"perms,omitempty"`
}

type userData struct {
	Name   string   `json:"name,omitempty"`
	Groups []string `json:"groups,omitempty"`
	Perms  []string `json:"perms,omitempty"`
}

// OpenPermissions loads the store at path. A missing file yields an empty
// store that is created on first mutation.
func OpenPermissions(path string, log logx.Logger) (*PermissionStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &PermissionStore{
		path:       path,
		log:        log,
		data:       permData{Groups: map[string]*groupData{}, Users: map[string]*userData{}},
		registered: map[string]string{},
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("permissions %s: %w", path, err)
	}
	if s.data.Groups == nil {
		s.data.Groups = map[string]*groupData{}
	}
	if s.data.Users == nil {
		s.data.Users = map[string]*userData{}
	}
	return s, nil
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *PermissionStore) GroupExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.Groups[norm(name)]
	return ok
}

// CreateGroup adds a group. It returns false if the group already exists.
func (s *PermissionStore) CreateGroup(name, title string, rank int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := norm(name)
	if key == "" {
		return false
	}
	if _, ok := s.data.Groups[key]; ok {
		return false
	}
	s.data.Groups[key] = &groupData{Title: title, Rank: rank}
	s.saveLocked()
	return true
}

func (s *PermissionStore) PermissionExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registered[norm(name)]
	return ok
}

func (s *PermissionStore) RegisterPermission(name, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := norm(name)
	if key == "" {
		return
	}
	if prev, ok := s.registered[key]; ok && prev != owner {
		s.log.Warn("permission already registered by another owner", logx.String("perm", key), logx.String("owner", prev))
		return
	}
	s.registered[key] = owner
}

// GrantGroupPermission adds perm to group. It returns false when the group
// is unknown or already holds perm.
func (s *PermissionStore) GrantGroupPermission(group, perm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.data.Groups[norm(group)]
	if !ok || slices.Contains(g.Perms, norm(perm)) {
		return false
	}
	g.Perms = append(g.Perms, norm(perm))
	s.saveLocked()
	return true
}

// AddUserGroup puts a user into group.
func (s *PermissionStore) AddUserGroup(userID, name, group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Groups[norm(group)]; !ok {
		return false
	}
	u := s.userLocked(userID, name)
	if slices.Contains(u.Groups, norm(group)) {
		return false
	}
	u.Groups = append(u.Groups, norm(group))
	s.saveLocked()
	return true
}

// GrantUserPermission gives perm directly to a user.
func (s *PermissionStore) GrantUserPermission(userID, perm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID, "")
	if slices.Contains(u.Perms, norm(perm)) {
		return false
	}
	u.Perms = append(u.Perms, norm(perm))
	s.saveLocked()
	return true
}

// HasPermission reports whether the user holds perm directly or through
// one of their groups. Unregistered permissions never match.
func (s *PermissionStore) HasPermission(userID, perm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := norm(perm)
	if _, ok := s.registered[p]; !ok {
		return false
	}
	u, ok := s.data.Users[userID]
	if !ok {
		return false
	}
	if slices.Contains(u.Perms, p) {
		return true
	}
	for _, name := range u.Groups {
		if g, ok := s.data.Groups[name]; ok && slices.Contains(g.Perms, p) {
			return true
		}
	}
	return false
}

func (s *PermissionStore) userLocked(userID, name string) *userData {
	u, ok := s.data.Users[userID]
	if !ok {
		u = &userData{}
		s.data.Users[userID] = u
	}
	if name != "" {
		u.Name = name
	}
	return u
}

// saveLocked persists groups and users. Failures keep the in-memory state
// and are logged.
func (s *PermissionStore) saveLocked() {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err == nil {
		err = config.WriteFileAtomic(s.path, append(b, '\n'), 0o600)
	}
	if err != nil {
		s.log.Warn("permissions save failed", logx.String("path", s.path), logx.Err(err))
	}
}
