package transport

import "context"

// Message is a single line of chat or console input.
type Message struct {
	Source   string // adapter name, e.g. "console" or "telegram"
	ChatID   int64  // 0 for console
	FromID   string // stable user identifier within Source
	FromName string
	Text     string

	// Admin is set by the adapter when the sender holds an elevated role
	// on that transport (server console, configured Telegram admins).
	Admin bool
}

// ChatTarget addresses a reply.
type ChatTarget struct {
	Source string
	ChatID int64
}

// Target returns the reply address for m.
func (m Message) Target() ChatTarget {
	return ChatTarget{Source: m.Source, ChatID: m.ChatID}
}

// Adapter is a bidirectional chat transport.
type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string) error
}
