package lister

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrPluginDisabled      = errors.New("plugin disabled")
	ErrOnCooldown          = errors.New("command on cooldown")
	ErrWebhookUnconfigured = errors.New("webhook not configured")
	ErrDeliveryFailed      = errors.New("webhook delivery failed")
)

// CooldownError carries the time left before the user may retry.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %ds remaining", ErrOnCooldown, e.Seconds())
}

func (e *CooldownError) Unwrap() error { return ErrOnCooldown }

// Seconds rounds the remaining time up to whole seconds.
func (e *CooldownError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}
