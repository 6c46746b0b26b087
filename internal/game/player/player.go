// Package player holds the per-player combat record and its health rules.
package player

import (
	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

const (
	// MaxHealth is the health of a new or healed player.
	MaxHealth uint8 = 100
	// KillDamage is the fixed cost of a direct kill.
	KillDamage uint8 = 10
	// Seed tags player records.
	Seed = "player"
)

// State is the on-ledger player record.
//
// Invariant: Health is in [0, MaxHealth].
type State struct {
	Health uint8
}

// New returns a full-health player.
func New() State { return State{Health: MaxHealth} }

// layout is State without its methods, so the codec encodes its fields.
type layout State

func (s *State) MarshalBinary() ([]byte, error) {
	return ledger.Encode("PlayerData", (*layout)(s))
}

func (s *State) UnmarshalBinary(data []byte) error {
	return ledger.Decode("PlayerData", data, (*layout)(s))
}

// Seeds returns the derivation seeds of the record for player.
func Seeds(player authority.Address) [][]byte {
	return [][]byte{[]byte(Seed), player[:]}
}

// Address returns the record address for player under program.
func Address(program, player authority.Address) (authority.Address, error) {
	addr, _, err := authority.FindProgramAddress(Seeds(player), program)
	return addr, err
}

// ApplyDamage subtracts damage, stopping at zero.
//
// Postcondition: Health == max(0, old-damage).
func (s *State) ApplyDamage(damage uint8) {
	if damage >= s.Health {
		s.Health = 0
		return
	}
	s.Health -= damage
}

// TakeKillDamage subtracts KillDamage without saturating.
//
// Postcondition: Returns arenaerr.ErrNotEnoughHealth if Health is zero and
// arenaerr.ErrArithmeticUnderflow if Health < KillDamage; Health is unchanged
// on error.
func (s *State) TakeKillDamage() error {
	if s.Health == 0 {
		return arenaerr.ErrNotEnoughHealth
	}
	if s.Health < KillDamage {
		return arenaerr.ErrArithmeticUnderflow
	}
	s.Health -= KillDamage
	return nil
}

// Heal restores full health.
func (s *State) Heal() { s.Health = MaxHealth }
