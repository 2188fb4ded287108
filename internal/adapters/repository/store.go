// Package repository holds the ordered donor store behind the leaderboard.
package repository

import "context"

// Entry is one donor row as kept by the store.
type Entry struct {
	Rank     int
	Key      string // case-folded identity
	UniqueID string // identity as first seen
	Label    string
	Total    int64
	Avatar   string
	Seq      uint64 // order of first contribution
}

// Store keeps donors ordered by total descending, then by first contribution.
type Store interface {
	// Add credits coins to the donor under key, creating it when missing.
	// Label and avatar replace the stored values only when non-empty.
	Add(ctx context.Context, key, uniqueID, label string, coins int64, avatar string) (Entry, error)

	// Get returns the donor under key with its current rank.
	// Returns ErrNotFound if the donor is unknown.
	Get(ctx context.Context, key string) (Entry, error)

	// TopN returns the first n donors in rank order.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// All returns every donor in rank order.
	All(ctx context.Context) []Entry

	// Count returns the number of donors.
	Count(ctx context.Context) int

	// Reset removes every donor.
	Reset(ctx context.Context)
}
