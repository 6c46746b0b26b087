package authority

import (
	"crypto/ed25519"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
)

// Signer is a capability proving that the holder may act for an address.
// Operations that move value take a Signer explicitly; there is no ambient
// signer context.
type Signer interface {
	// Key returns the address this signer acts for, or Zero if it cannot
	// act for any address.
	Key() Address
	// Authorizes returns nil iff the signer may act for addr, otherwise an
	// authorization error.
	Authorizes(addr Address) error
}

// Seal is a keyless signer for a derived address: the program id, the exact
// seeds and the bump that produced it. Presenting a Seal proves the program
// itself authorized the call.
type Seal struct {
	Program Address
	Seeds   [][]byte
	Bump    uint8
}

// NewSeal builds a Seal, copying the seeds.
func NewSeal(program Address, bump uint8, seeds ...[]byte) Seal {
	cp := make([][]byte, len(seeds))
	for i, s := range seeds {
		cp[i] = append([]byte(nil), s...)
	}
	return Seal{Program: program, Seeds: cp, Bump: bump}
}

// Address recomputes the derived address this seal stands for.
func (s Seal) Address() (Address, error) {
	all := make([][]byte, 0, len(s.Seeds)+1)
	all = append(all, s.Seeds...)
	all = append(all, []byte{s.Bump})
	return CreateProgramAddress(all, s.Program)
}

// Key returns the derived address, or Zero if the seeds are invalid.
func (s Seal) Key() Address {
	addr, err := s.Address()
	if err != nil {
		return Zero
	}
	return addr
}

// Authorizes re-derives the address from the seal's seeds and bump and
// compares it to addr.
func (s Seal) Authorizes(addr Address) error {
	derived, err := s.Address()
	if err != nil {
		return arenaerr.Wrap(arenaerr.KindAuthorization, arenaerr.CodeSeedsMismatch, err, "seal does not derive a valid address")
	}
	if derived != addr {
		return arenaerr.Authorization(arenaerr.CodeSeedsMismatch, "seal derives %s, not %s", derived, addr)
	}
	return nil
}

// KeySigner is a signer backed by a verified ed25519 signature. The zero
// value authorizes nothing; the only way to obtain a usable KeySigner is
// VerifySignature.
type KeySigner struct {
	key Address
}

// VerifySignature checks sig over message against the public key key.
//
// Postcondition: Returns a KeySigner for key, or an authorization error with
// CodeInvalidSignature.
func VerifySignature(key Address, message, sig []byte) (KeySigner, error) {
	if len(sig) != ed25519.SignatureSize {
		return KeySigner{}, arenaerr.Authorization(arenaerr.CodeInvalidSignature, "signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(key[:]), message, sig) {
		return KeySigner{}, arenaerr.Authorization(arenaerr.CodeInvalidSignature, "signature does not verify for %s", key)
	}
	return KeySigner{key: key}, nil
}

// Key returns the verified public key.
func (k KeySigner) Key() Address { return k.key }

// Authorizes returns nil iff addr is the verified key.
func (k KeySigner) Authorizes(addr Address) error {
	if k.key.IsZero() {
		return arenaerr.Authorization(arenaerr.CodeInvalidSignature, "signer was not verified")
	}
	if k.key != addr {
		return arenaerr.Authorization(arenaerr.CodeAuthorityMismatch, "signer %s cannot act for %s", k.key, addr)
	}
	return nil
}

// Nonced is a signer bound to a single signed request. Nonce must increase
// from one request to the next for the same key.
type Nonced interface {
	Signer
	Nonce() uint64
}

// NoncedSigner is a KeySigner carrying the nonce of the request it verified.
type NoncedSigner struct {
	KeySigner
	nonce uint64
}

// WithNonce binds nonce to a verified signer.
func WithNonce(k KeySigner, nonce uint64) NoncedSigner {
	return NoncedSigner{KeySigner: k, nonce: nonce}
}

// Nonce returns the request nonce.
func (n NoncedSigner) Nonce() uint64 { return n.nonce }
