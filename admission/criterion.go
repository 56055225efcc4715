package admission

import (
	"context"
	"time"
)

// Criterion inspects each admitted address and decides whether it
// violates some policy (flood pattern, abuse signature, reputation
// list, ...). A Criterion that reports a violation causes the address
// to be banned for the store's configured ban duration.
//
// Validate must be safe for concurrent use: the store calls it from
// every connecting goroutine without additional locking.
type Criterion interface {
	// Validate reports whether addr violates this criterion right now.
	Validate(ctx context.Context, addr string) (violates bool, err error)

	// Clear drops any per-address state held for addr, called when an
	// operator explicitly unbans an address.
	Clear(addr string)

	// PurgeStale evicts per-address state that has become irrelevant
	// (e.g. an empty sliding window), bounding memory growth.
	PurgeStale()
}

// BanRecord is a snapshot of one address's ban state.
type BanRecord struct {
	Address   string
	ExpiresAt time.Time
	Explicit  bool
}
