// Package authority provides ledger addresses, derived (keyless) program
// addresses, and the signer capabilities an operation presents to act on
// behalf of an address.
package authority

import (
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
)

// AddressSize is the length in bytes of an Address.
const AddressSize = 32

// Address identifies an account on the ledger. It is either an ed25519
// public key or a derived program address.
type Address [AddressSize]byte

// Zero is the all-zero address.
var Zero Address

// String returns the base58 encoding of a.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes a base58 address.
//
// Postcondition: Returns the decoded Address, or a validation error if s is
// not base58 or does not decode to exactly 32 bytes.
func Parse(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, arenaerr.Validation(arenaerr.CodeInvalidArgument, "address %q is not base58: %v", s, err)
	}
	return FromBytes(raw)
}

// MustParse decodes a base58 address and panics on error. Intended for
// well-known program ids declared at package level.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("authority: MustParse(%q): %v", s, err))
	}
	return a
}

// FromBytes copies b into an Address.
//
// Precondition: len(b) == AddressSize.
func FromBytes(b []byte) (Address, error) {
	if len(b) != AddressSize {
		return Address{}, arenaerr.Validation(arenaerr.CodeInvalidArgument, "address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
