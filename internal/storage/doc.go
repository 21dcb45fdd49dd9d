// Package storage keeps an append-only audit trail of command invocations
// and webhook deliveries.
package storage
