package lister

import (
	"time"

	"pluginlister/internal/host"
)

// PermissionChecker is the slice of the host permission system the gate needs.
type PermissionChecker interface {
	HasPermission(userID, perm string) bool
}

// Gate authorizes command invocations and tracks per-user cooldowns.
// Like SettingsStore it is only used from the host loop.
type Gate struct {
	perms    PermissionChecker
	perm     string
	settings func() Settings
	now      func() time.Time

	until map[string]time.Time
}

func NewGate(perms PermissionChecker, perm string, settings func() Settings, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		perms:    perms,
		perm:     perm,
		settings: settings,
		now:      now,
		until:    make(map[string]time.Time),
	}
}

// Authorize runs the permission, enable and cooldown checks in that order.
// The cooldown is only armed when all of them pass.
func (g *Gate) Authorize(p host.Player) error {
	if !p.IsAdmin() && (g.perms == nil || !g.perms.HasPermission(p.ID(), g.perm)) {
		return ErrPermissionDenied
	}
	st := g.settings()
	if !st.EnablePlugin {
		return ErrPluginDisabled
	}

	now := g.now()
	if until, ok := g.until[p.ID()]; ok && now.Before(until) {
		return &CooldownError{Remaining: until.Sub(now)}
	}
	g.until[p.ID()] = now.Add(st.Cooldown())
	return nil
}

// Sweep drops cooldown records that expired at or before now.
func (g *Gate) Sweep(now time.Time) int {
	n := 0
	for id, until := range g.until {
		if !now.Before(until) {
			delete(g.until, id)
			n++
		}
	}
	return n
}

// Len is the number of tracked cooldown records.
func (g *Gate) Len() int { return len(g.until) }
