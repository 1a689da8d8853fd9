package monitor

import (
	"context"
	"time"
)

// Dialog is one entry of the account's dialog list, reduced to what the
// resolver and the backfill path need.
type Dialog struct {
	// ID is the bare chat identifier (no access hash).
	ID int64
	// Title is the human-readable chat title.
	Title string
	// Channel is true for broadcast channels.
	Channel bool
	// Group is true for basic groups and megagroups.
	Group bool
}

// Message is one inbound message notification, live or backfilled.
type Message struct {
	// ChatID is the source chat identifier; zero when the transport could
	// not attribute the message to a chat.
	ChatID int64
	// ID is the message identifier, unique within the chat.
	ID int64
	// Date is the message timestamp as reported by the backend.
	Date time.Time
	// Text is the message body (may be empty for media-only messages).
	Text string
	// Channel / Group describe the source chat, mirroring Dialog.
	Channel bool
	Group   bool
}

// Client is the account-session connection the supervisor drives. The wire
// protocol behind it is delegated to an external client library; the
// supervisor only relies on this contract.
//
// Connect and Disconnect bracket one connection lifetime. The handler
// registered with OnNewMessage may be invoked concurrently for distinct
// events and stays installed until Disconnect.
type Client interface {
	// Connect establishes the session connection. It blocks until the
	// connection is usable or ctx is done.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down, bounded by ctx.
	Disconnect(ctx context.Context) error

	// Authorized reports whether the stored session holds valid credentials.
	Authorized(ctx context.Context) (bool, error)

	// Dialogs lists the account's dialogs.
	Dialogs(ctx context.Context) ([]Dialog, error)

	// History returns up to limit messages of chatID newer than minID,
	// oldest first. Used to close gaps after downtime.
	History(ctx context.Context, chatID, minID int64, limit int) ([]Message, error)

	// Forward relays one message from its source chat to toChatID.
	Forward(ctx context.Context, fromChatID, messageID, toChatID int64) error

	// OnNewMessage registers the live event handler.
	OnNewMessage(fn func(Message))
}
