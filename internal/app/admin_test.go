package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pluginlister/internal/eventbus"
	"pluginlister/internal/host"
	"pluginlister/internal/lister"
	"pluginlister/internal/storage"
	"pluginlister/internal/transport/console"
	logx "pluginlister/pkg/logx"
)

type replyRecorder struct {
	id      string
	replies []string
}

func (r *replyRecorder) player() host.Player {
	return host.NewPlayer(r.id, "", r.id == console.UserID, func(s string) { r.replies = append(r.replies, s) })
}

func (r *replyRecorder) last() string {
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

func TestConsoleOnlyRejectsChatUsers(t *testing.T) {
	t.Parallel()
	ran := false
	cmd := consoleOnly(lister.DefaultLang(), func(host.Player, []string) { ran = true })

	chat := &replyRecorder{id: "42"}
	cmd(chat.player(), nil)
	if ran || chat.last() != lister.DefaultLang().Get(lister.MsgNoPermission) {
		t.Fatalf("chat user: ran=%v replies=%q", ran, chat.replies)
	}

	cons := &replyRecorder{id: console.UserID}
	cmd(cons.player(), nil)
	if !ran {
		t.Fatal("console command did not run")
	}
}

func TestPermCommandGrantsAccess(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "permissions.json")
	perms, err := host.OpenPermissions(path, logx.Nop())
	if err != nil {
		t.Fatalf("OpenPermissions: %v", err)
	}
	perms.CreateGroup(lister.GroupAdmin, "Admin", 0)
	perms.RegisterPermission(lister.PermUse, lister.Name)
	perms.GrantGroupPermission(lister.GroupAdmin, lister.PermUse)
	cmd := permCommand(perms)
	rec := &replyRecorder{id: console.UserID}

	cases := []struct {
		args []string
		want string
	}{
		{nil, permUsage},
		{[]string{"drop", "7", "x"}, permUsage},
		{[]string{"group", "7", "nope"}, `unknown group "nope"`},
		{[]string{"grant", "7", "nope.perm"}, `unknown permission "nope.perm"`},
		{[]string{"group", "7", lister.GroupAdmin}, "7 now has " + lister.GroupAdmin},
		{[]string{"group", "7", lister.GroupAdmin}, "7 already has " + lister.GroupAdmin},
		{[]string{"GRANT", "8", lister.PermUse}, "8 now has " + lister.PermUse},
	}
	for _, tc := range cases {
		cmd(rec.player(), tc.args)
		if got := rec.last(); got != tc.want {
			t.Fatalf("perm %q replied %q, want %q", tc.args, got, tc.want)
		}
	}
	for _, user := range []string{"7", "8"} {
		if !perms.HasPermission(user, lister.PermUse) {
			t.Fatalf("user %s lacks %s", user, lister.PermUse)
		}
	}

	reopened, err := host.OpenPermissions(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.RegisterPermission(lister.PermUse, lister.Name)
	if !reopened.HasPermission("7", lister.PermUse) {
		t.Fatal("group membership not persisted")
	}
}

func TestAuditCommand(t *testing.T) {
	t.Parallel()
	rec := &replyRecorder{id: console.UserID}
	auditCommand(nil)(rec.player(), nil)
	if rec.last() != "audit storage is disabled" {
		t.Fatalf("nil store reply = %q", rec.last())
	}

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "audit.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	cmd := auditCommand(st)

	cmd(rec.player(), nil)
	if rec.last() != "no audit entries" {
		t.Fatalf("empty reply = %q", rec.last())
	}

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	_ = st.AppendAudit(ctx, storage.AuditEntry{At: at, Kind: eventbus.TypeCommand, ActorID: "42", ActorName: "alice", Outcome: lister.OutcomeListed, Count: 3})
	_ = st.AppendAudit(ctx, storage.AuditEntry{At: at.Add(time.Second), Kind: eventbus.TypeDeliveryFailed, DeliveryID: "d1", Attempt: 3, Status: 500, Error: "unexpected status 500"})

	cmd(rec.player(), []string{"1"})
	if want := "2024-05-01T10:00:01Z delivery.failed id=d1 attempt=3 status=500 err=unexpected status 500"; rec.last() != want {
		t.Fatalf("audit 1 = %q", rec.last())
	}
	cmd(rec.player(), nil)
	lines := strings.Split(rec.last(), "\n")
	if len(lines) != 2 || lines[0] != "2024-05-01T10:00:00Z lister.command alice (42) listed plugins=3" {
		t.Fatalf("audit = %q", rec.last())
	}
	for _, bad := range []string{"0", "-1", "x"} {
		cmd(rec.player(), []string{bad})
		if rec.last() != auditUsage {
			t.Fatalf("audit %s = %q", bad, rec.last())
		}
	}
}
