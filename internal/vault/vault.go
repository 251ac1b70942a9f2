// Package vault holds the master seed and derives per-escrow deposit
// addresses from it. Addresses are derived deterministically, so the
// engine can re-derive any escrow's address from its ID without storing
// per-escrow key material.
package vault

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/qupredict/qupredict/internal/domain"
)

// SeedLength is the required length of a master seed: 55 lowercase
// letters 'a' through 'z'.
const SeedLength = 55

// ErrBadSeed is returned when seed material does not match the required
// 55-lowercase-letter format.
var ErrBadSeed = errors.New("vault: seed must be 55 lowercase letters a-z")

// Vault derives deposit addresses from a master seed.
type Vault struct {
	seed string
}

// New returns a Vault for the given master seed.
func New(seed string) (*Vault, error) {
	if !ValidSeed(seed) {
		return nil, ErrBadSeed
	}
	return &Vault{seed: seed}, nil
}

// ValidSeed reports whether s is exactly 55 lowercase letters a-z.
func ValidSeed(s string) bool {
	if len(s) != SeedLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// DeriveDepositAddress returns the deposit address for an escrow. The
// address is SHAKE256(seed || escrowID) mapped into the 60-uppercase-
// letter address alphabet, so the same escrow ID always yields the same
// address and the result always passes domain.ValidAddress.
func (v *Vault) DeriveDepositAddress(escrowID string) string {
	h := sha3.NewShake256()
	h.Write([]byte(v.seed))
	h.Write([]byte(escrowID))

	out := make([]byte, domain.AddressLength)
	_, _ = h.Read(out)
	for i, b := range out {
		out[i] = 'A' + b%26
	}
	return string(out)
}

// String returns a redacted representation suitable for logging.
func (v *Vault) String() string {
	return fmt.Sprintf("Vault{seed=%s****}", v.seed[:4])
}
