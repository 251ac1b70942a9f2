package client

import "context"

// Well-known state keys.
const (
	// KeyPayoutAddress is the user's default payout address, filled into
	// placements when none is given explicitly.
	KeyPayoutAddress = "payout_address"
)

// StateStore is the SDK's local persistence port: a small key-value store
// for per-user client state that must survive restarts, such as the payout
// address. Implementations live wherever the host application keeps state;
// this package ships a SQLite-backed one.
type StateStore interface {
	// Get returns the value for key, or domain.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores the value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
