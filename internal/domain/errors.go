package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidBet      = errors.New("invalid bet parameters")
	ErrMarketClosed    = errors.New("market closed for betting")
	ErrRoundLocked     = errors.New("round locked for wagers")
	ErrDepositDetected = errors.New("deposit already detected")
	ErrStaleTransition = errors.New("stale status transition")
	ErrTxRejected      = errors.New("transaction rejected by gateway")
	ErrLockHeld        = errors.New("lock already held")
)

// FieldErrors maps a field name to a human-readable problem with its value.
// Validation collects every failing field instead of stopping at the first,
// so callers can render all problems at once.
type FieldErrors map[string]string

// Add records a problem for the named field, keeping the first message when
// the field already failed.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

// OK reports whether no field failed.
func (fe FieldErrors) OK() bool {
	return len(fe) == 0
}

// Error joins the field problems in field order.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe[f])
	}
	return strings.Join(parts, "; ")
}
