package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file next to Path
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a command invocation or a delivery outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorName  string    `json:"actor_name,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Count      int       `json:"count,omitempty"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Status     int       `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
}
