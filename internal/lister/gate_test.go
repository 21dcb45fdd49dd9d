package lister

import (
	"errors"
	"testing"
	"time"
)

func TestGateChecksInOrder(t *testing.T) {
	t.Parallel()
	disabled := DefaultSettings()
	disabled.EnablePlugin = false

	cases := []struct {
		name     string
		player   *fakePlayer
		perms    permSet
		settings Settings
		want     error
	}{
		{"no permission", &fakePlayer{id: "u1"}, nil, DefaultSettings(), ErrPermissionDenied},
		{"no permission and disabled", &fakePlayer{id: "u1"}, nil, disabled, ErrPermissionDenied},
		{"admin", &fakePlayer{id: "u1", admin: true}, nil, DefaultSettings(), nil},
		{"granted", &fakePlayer{id: "u1"}, permSet{"u1|" + PermUse: true}, DefaultSettings(), nil},
		{"disabled", &fakePlayer{id: "u1", admin: true}, nil, disabled, ErrPluginDisabled},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g := NewGate(tc.perms, PermUse, settingsFunc(tc.settings), newClock().Now)
			err := g.Authorize(tc.player)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Authorize = %v, want %v", err, tc.want)
			}
			wantLen := 0
			if tc.want == nil {
				wantLen = 1
			}
			if g.Len() != wantLen {
				t.Fatalf("cooldown records = %d, want %d", g.Len(), wantLen)
			}
		})
	}
}

func TestGateCooldownRemainingIsCeiled(t *testing.T) {
	t.Parallel()
	c := newClock()
	g := NewGate(nil, PermUse, settingsFunc(DefaultSettings()), c.Now)
	p := &fakePlayer{id: "u1", admin: true}

	if err := g.Authorize(p); err != nil {
		t.Fatalf("first Authorize: %v", err)
	}

	c.Advance(19*time.Second + 800*time.Millisecond)
	err := g.Authorize(p)
	var cd *CooldownError
	if !errors.As(err, &cd) || !errors.Is(err, ErrOnCooldown) {
		t.Fatalf("second Authorize = %v, want cooldown", err)
	}
	if cd.Seconds() != 11 {
		t.Fatalf("remaining = %ds, want 11", cd.Seconds())
	}

	// A rejected call does not extend the cooldown.
	c.Advance(10*time.Second + 200*time.Millisecond)
	if err := g.Authorize(p); err != nil {
		t.Fatalf("after cooldown: %v", err)
	}

	other := &fakePlayer{id: "u2", admin: true}
	if err := g.Authorize(other); err != nil {
		t.Fatalf("other user should not share the cooldown: %v", err)
	}
}

func TestGateCooldownFollowsSettings(t *testing.T) {
	t.Parallel()
	c := newClock()
	st := DefaultSettings()
	st.CommandCooldownSeconds = 2
	g := NewGate(nil, PermUse, settingsFunc(st), c.Now)
	p := &fakePlayer{id: "u1", admin: true}

	_ = g.Authorize(p)
	c.Advance(1500 * time.Millisecond)
	var cd *CooldownError
	if err := g.Authorize(p); !errors.As(err, &cd) || cd.Seconds() != 1 {
		t.Fatalf("Authorize = %v, want 1s cooldown", err)
	}
	c.Advance(500 * time.Millisecond)
	if err := g.Authorize(p); err != nil {
		t.Fatalf("cooldown should have elapsed: %v", err)
	}
}

func TestGateSweepEvictsOnlyExpired(t *testing.T) {
	t.Parallel()
	c := newClock()
	st := DefaultSettings()
	g := NewGate(nil, PermUse, func() Settings { return st }, c.Now)

	_ = g.Authorize(&fakePlayer{id: "old", admin: true})
	c.Advance(20 * time.Second)
	_ = g.Authorize(&fakePlayer{id: "new", admin: true})

	if n := g.Sweep(c.Now().Add(10 * time.Second)); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if g.Len() != 1 {
		t.Fatalf("remaining = %d, want 1", g.Len())
	}
	if err := g.Authorize(&fakePlayer{id: "new", admin: true}); !errors.Is(err, ErrOnCooldown) {
		t.Fatalf("unexpired record was evicted: %v", err)
	}
}
