// Package vrfclient is the per-(player, feed) randomness client record and
// the rules for accepting delivered randomness.
package vrfclient

import (
	"fmt"

	"lukechampine.com/uint128"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

const (
	// Seed tags client records. The full seeds are [Seed, feed].
	Seed = "CLIENTSEED"
	// MaxResultLimit is the largest max_result whose outcomes all fit a
	// single damage roll.
	MaxResultLimit = 255
	// BufferSize is the size of a delivered randomness buffer.
	BufferSize = 32
)

// Status is the lifecycle position of a client record.
type Status uint8

const (
	StatusIdle Status = iota + 1
	StatusPending
	StatusFulfilled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// State is the on-ledger client record.
//
// Invariant: An all-zero ResultBuffer means no value has been delivered.
// Invariant: Result is zero or in [1, MaxResult].
type State struct {
	Bump         uint8
	MaxResult    uint64
	ResultBuffer [BufferSize]byte
	Result       uint128.Uint128
	Timestamp    int64
	Feed         authority.Address
	Player       authority.Address
	Status       Status
}

// layout is State without its methods, so the codec encodes its fields.
type layout State

func (s *State) MarshalBinary() ([]byte, error) {
	return ledger.Encode("VrfClientState", (*layout)(s))
}

func (s *State) UnmarshalBinary(data []byte) error {
	return ledger.Decode("VrfClientState", data, (*layout)(s))
}

// Seeds returns the derivation seeds of the client record bound to feed.
func Seeds(feed authority.Address) [][]byte {
	return [][]byte{[]byte(Seed), feed[:]}
}

// Derive returns the client record address for feed under program and its bump.
func Derive(program, feed authority.Address) (authority.Address, uint8, error) {
	return authority.FindProgramAddress(Seeds(feed), program)
}

// Seal returns the signer for this record: its seeds and stored bump under program.
func (s *State) Seal(program authority.Address) authority.Seal {
	return authority.NewSeal(program, s.Bump, []byte(Seed), s.Feed[:])
}

// ValidateMaxResult checks that m is a usable outcome bound.
func ValidateMaxResult(m uint64) error {
	if m == 0 || m > MaxResultLimit {
		return arenaerr.Validation(arenaerr.CodeMaxResultExceedsMaximum, "max_result %d outside [1, %d]", m, MaxResultLimit)
	}
	return nil
}

// DeriveResult maps buf to an outcome: the first 16 bytes as a
// little-endian u128 v, then v mod maxResult + 1.
//
// Precondition: maxResult > 0.
// Postcondition: The result is in [1, maxResult].
func DeriveResult(buf [BufferSize]byte, maxResult uint64) uint128.Uint128 {
	v := uint128.FromBytes(buf[:16])
	return uint128.From64(v.Mod64(maxResult) + 1)
}

// IsEmpty reports whether buf is all zero.
func IsEmpty(buf [BufferSize]byte) bool {
	return buf == [BufferSize]byte{}
}

// BeginRequest marks a new outbound request and clears the stale result.
func (s *State) BeginRequest() {
	s.Result = uint128.Zero
	s.Status = StatusPending
}

// Skip explains why a delivery had no effect.
type Skip string

const (
	SkipNone      Skip = ""
	SkipEmpty     Skip = "empty buffer"
	SkipDuplicate Skip = "duplicate buffer"
)

// Delivery is the outcome of Accept.
type Delivery struct {
	// Skipped is non-empty when the delivery was a no-op.
	Skipped Skip
	// Derived is the outcome computed from the buffer.
	Derived uint128.Uint128
	// Updated reports whether the stored result changed, which is when a
	// ResultUpdated notification is due.
	Updated bool
}

// Applies reports whether damage and reward follow from this delivery.
func (d Delivery) Applies() bool { return d.Skipped == SkipNone }

// Damage returns Derived as a damage roll.
//
// Precondition: the record's MaxResult passed ValidateMaxResult.
func (d Delivery) Damage() uint8 {
	return uint8(d.Derived.Lo)
}

// Accept records a delivered buffer.
//
// An empty buffer, or one equal to the stored buffer, is a no-op. Otherwise
// the outcome is derived and the buffer, result and timestamp are stored only
// if the outcome differs from the stored result. With strict set the buffer
// is stored regardless, so redelivering it is always a duplicate.
//
// Postcondition: If the delivery applies, Status is StatusFulfilled.
func (s *State) Accept(buf [BufferSize]byte, now int64, strict bool) Delivery {
	if IsEmpty(buf) {
		return Delivery{Skipped: SkipEmpty}
	}
	if buf == s.ResultBuffer {
		return Delivery{Skipped: SkipDuplicate}
	}
	derived := DeriveResult(buf, s.MaxResult)
	updated := derived != s.Result
	if updated || strict {
		s.ResultBuffer = buf
		s.Result = derived
		s.Timestamp = now
	}
	s.Status = StatusFulfilled
	return Delivery{Derived: derived, Updated: updated}
}
