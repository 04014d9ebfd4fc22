package ports

import (
	"context"

	"venmux/internal/types"
)

// Provider wraps one external messaging-protocol connection. The manager
// owns exactly one per vendor and never looks behind this boundary.
//
// Start is non-blocking; everything after it arrives through the EventSink
// from the provider's own goroutines. Terminate is best effort: the manager
// logs its error and continues cleanup regardless.
type Provider interface {
	Start(ctx context.Context) error
	SendText(ctx context.Context, target, message string) error
	FindGroup(ctx context.Context, name string) (types.GroupInfo, error)
	Terminate() error
}

// EventSink receives the asynchronous lifecycle events of one provider
// connection. Implementations MUST tolerate events for vendors that no
// longer exist (late callbacks after cleanup are no-ops).
type EventSink interface {
	// PairingCodeIssued delivers a fresh short-lived pairing payload.
	PairingCodeIssued(vendorID, code string)

	// Ready reports a confirmed pairing. identity is the number the provider
	// actually bound, which may differ from the one requested.
	Ready(vendorID, identity string)

	// Disconnected reports a recoverable connection loss.
	Disconnected(vendorID string)

	// ConnectionFailed reports an unrecoverable failure; the session cannot
	// continue and will be cleaned up.
	ConnectionFailed(vendorID string, err error)
}

// SessionConfig is what a Factory needs to build one provider connection.
type SessionConfig struct {
	VendorID string
	Port     int
	Events   EventSink
}

// Factory builds a provider for one vendor session. It is called at
// registration, on every code refresh and on every retry-sweep
// re-provision.
type Factory func(cfg SessionConfig) (Provider, error)
