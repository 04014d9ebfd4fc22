package ports

import (
	"context"

	"venmux/internal/types"
)

// VendorStore is the durable copy of vendor metadata. The manager snapshots
// after every transition that changes persisted fields, so implementations
// MUST replace the previous snapshot atomically from the reader's point of
// view.
type VendorStore interface {
	// Snapshot replaces the durable copy with exactly these records.
	Snapshot(ctx context.Context, records []types.VendorRecord) error

	// Load returns the last snapshot. A missing or unreadable snapshot MUST
	// be reported as an empty list, not an error: losing vendor metadata is
	// never allowed to stop the process from starting.
	Load(ctx context.Context) ([]types.VendorRecord, error)
}
