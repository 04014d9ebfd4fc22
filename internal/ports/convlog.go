package ports

import (
	"context"

	"venmux/internal/types"
)

// ConversationLog is the append-only per-(vendor, counterpart) message
// history. It is a side-effect log: the manager appends on every delivered
// send, and nothing in the lifecycle path ever reads it back.
type ConversationLog interface {
	// Append adds one entry to the (vendorID, counterpart) history.
	Append(ctx context.Context, vendorID, counterpart string, entry types.ConversationEntry) error

	// History returns the entries for a pair, oldest first. A pair that was
	// never written MUST come back as an empty slice, not an error.
	History(ctx context.Context, vendorID, counterpart string) ([]types.ConversationEntry, error)
}
