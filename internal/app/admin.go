package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
	"pluginlister/internal/lister"
	"pluginlister/internal/router"
	"pluginlister/internal/storage"
	"pluginlister/internal/transport/console"
)

// Console maintenance commands.
const (
	cmdPerm  = "perm"
	cmdAudit = "audit"

	permUsage  = "usage: perm group <user> <group> | perm grant <user> <permission>"
	auditUsage = "usage: audit [count]"

	defaultAuditLines = 10
)

// consoleOnly restricts cmd to the server console. Chat users get the
// regular no-permission reply.
func consoleOnly(lang *lister.Lang, cmd router.Command) router.Command {
	return func(p host.Player, args []string) {
		if p.ID() != console.UserID {
			p.Reply(lang.Get(lister.MsgNoPermission))
			return
		}
		cmd(p, args)
	}
}

// permCommand adds a chat user to a group or grants them a permission.
func permCommand(perms *host.PermissionStore) router.Command {
	return func(p host.Player, args []string) {
		if len(args) != 3 {
			p.Reply(permUsage)
			return
		}
		verb, user, target := strings.ToLower(args[0]), args[1], args[2]

		var changed bool
		switch verb {
		case "group":
			if !perms.GroupExists(target) {
				p.Reply(fmt.Sprintf("unknown group %q", target))
				return
			}
			changed = perms.AddUserGroup(user, "", target)
		case "grant":
			if !perms.PermissionExists(target) {
				p.Reply(fmt.Sprintf("unknown permission %q", target))
				return
			}
			changed = perms.GrantUserPermission(user, target)
		default:
			p.Reply(permUsage)
			return
		}
		if !changed {
			p.Reply(fmt.Sprintf("%s already has %s", user, target))
			return
		}
		p.Reply(fmt.Sprintf("%s now has %s", user, target))
	}
}

// auditCommand prints the most recent audit entries.
func auditCommand(store storage.Store) router.Command {
	return func(p host.Player, args []string) {
		if store == nil {
			p.Reply("audit storage is disabled")
			return
		}
		n := defaultAuditLines
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				p.Reply(auditUsage)
				return
			}
			n = v
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		entries, err := store.Recent(ctx, n)
		if err != nil {
			p.Reply("audit read failed: " + err.Error())
			return
		}
		if len(entries) == 0 {
			p.Reply("no audit entries")
			return
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, formatAudit(e))
		}
		p.Reply(strings.Join(lines, "\n"))
	}
}

func formatAudit(e storage.AuditEntry) string {
	at := e.At.UTC().Format(time.RFC3339)
	if e.Kind == eventbus.TypeCommand {
		return fmt.Sprintf("%s %s %s (%s) %s plugins=%d", at, e.Kind, e.ActorName, e.ActorID, e.Outcome, e.Count)
	}
	s := fmt.Sprintf("%s %s id=%s attempt=%d status=%d", at, e.Kind, e.DeliveryID, e.Attempt, e.Status)
	if e.Error != "" {
		s += " err=" + e.Error
	}
	return s
}
