package tier

import (
	"context"
	"errors"
)

var (
	// ErrMiss indicates the identity has no snapshot in the tier.
	ErrMiss = errors.New("tier miss")

	// ErrNotCacheable indicates an attempt to store a non-GET identity.
	ErrNotCacheable = errors.New("identity not cacheable")
)

// Store is a set of named cache tiers.
//
// Implementations must be safe for concurrent use. Put overwrites
// unconditionally; snapshots are idempotent to overwrite, so last writer
// wins is acceptable for concurrent population of the same identity.
type Store interface {
	// Get returns the snapshot stored for the identity in the named tier.
	// Returns ErrMiss if absent.
	Get(ctx context.Context, tierName string, id Identity) (*Snapshot, error)

	// Put stores a snapshot under the identity in the named tier, creating
	// the tier on first write. Returns ErrNotCacheable for non-GET identities.
	Put(ctx context.Context, tierName string, id Identity, snap *Snapshot) error

	// Delete removes the snapshot for the identity, if present.
	Delete(ctx context.Context, tierName string, id Identity) error

	// TierNames returns every physically present tier name.
	TierNames(ctx context.Context) ([]string, error)

	// DropTier destroys the named tier and all of its snapshots.
	DropTier(ctx context.Context, tierName string) error
}
