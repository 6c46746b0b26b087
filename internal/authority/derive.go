package authority

import (
	"crypto/sha256"

	"filippo.io/edwards25519"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included, in a derivation.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32
)

var derivedMarker = []byte("ProgramDerivedAddress")

// IsOnCurve reports whether a decodes to a valid ed25519 point, i.e. whether
// a private key could exist for it.
func IsOnCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return arenaerr.Validation(arenaerr.CodeInvalidSeeds, "at most %d seeds allowed, got %d", MaxSeeds, len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLen {
			return arenaerr.Validation(arenaerr.CodeInvalidSeeds, "seed %d is %d bytes, max %d", i, len(s), MaxSeedLen)
		}
	}
	return nil
}

func hashSeeds(seeds [][]byte, program Address) Address {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write(derivedMarker)
	var out Address
	copy(out[:], h.Sum(nil))
	return out
}

// CreateProgramAddress derives the address for seeds under program.
//
// Precondition: at most MaxSeeds seeds, each at most MaxSeedLen bytes.
// Postcondition: Returns an address with no associated private key, or a
// validation error if the seeds are malformed or the digest lies on the curve.
func CreateProgramAddress(seeds [][]byte, program Address) (Address, error) {
	if err := validateSeeds(seeds); err != nil {
		return Address{}, err
	}
	addr := hashSeeds(seeds, program)
	if IsOnCurve(addr) {
		return Address{}, arenaerr.Validation(arenaerr.CodeInvalidSeeds, "derived address lies on the ed25519 curve")
	}
	return addr, nil
}

// FindProgramAddress searches bump seeds from 255 down to 0 and returns the
// first derived address that lies off the curve, together with its bump.
//
// Precondition: at most MaxSeeds-1 seeds (the bump occupies one slot).
// Postcondition: CreateProgramAddress(append(seeds, {bump}), program) == addr.
func FindProgramAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	bump := []byte{0}
	all := make([][]byte, 0, len(seeds)+1)
	all = append(all, seeds...)
	all = append(all, bump)
	if err := validateSeeds(all); err != nil {
		return Address{}, 0, err
	}
	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		addr := hashSeeds(all, program)
		if !IsOnCurve(addr) {
			return addr, byte(b), nil
		}
	}
	return Address{}, 0, arenaerr.Validation(arenaerr.CodeInvalidSeeds, "no viable bump seed")
}
