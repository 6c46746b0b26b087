// Package wallet holds ed25519 keypairs for players, oracle feeds and the
// mint administrator.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/hkdf"

	"github.com/cory-johannsen/goldarena/internal/authority"
)

// Keypair is an ed25519 signing key and its public address.
type Keypair struct {
	public  authority.Address
	private ed25519.PrivateKey
}

// Generate returns a fresh random keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("generating keypair: %w", err)
	}
	var addr authority.Address
	copy(addr[:], pub)
	return Keypair{public: addr, private: priv}, nil
}

// FromSeed builds the keypair for a 32-byte ed25519 seed.
func FromSeed(seed [ed25519.SeedSize]byte) Keypair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	var addr authority.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))
	return Keypair{public: addr, private: priv}
}

// FromPassphrase deterministically derives a keypair from a passphrase using
// HKDF-SHA256. The salt separates otherwise identical passphrases, e.g. per
// environment. Intended for reproducible development identities only.
//
// Precondition: passphrase must be non-empty.
func FromPassphrase(passphrase, salt string) (Keypair, error) {
	if passphrase == "" {
		return Keypair{}, fmt.Errorf("passphrase must not be empty")
	}
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte("goldarena/wallet/v1"))
	var seed [ed25519.SeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return Keypair{}, fmt.Errorf("deriving seed: %w", err)
	}
	return FromSeed(seed), nil
}

// Address returns the public key as a ledger address.
func (k Keypair) Address() authority.Address { return k.public }

// Sign signs message with the private key.
func (k Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}

// Signer returns a verified signer capability for this keypair.
//
// Postcondition: The returned signer authorizes exactly k.Address().
func (k Keypair) Signer() authority.KeySigner {
	msg := k.public.Bytes()
	s, err := authority.VerifySignature(k.public, msg, k.Sign(msg))
	if err != nil {
		// A keypair always verifies its own signature.
		panic("wallet: keypair failed to verify its own signature: " + err.Error())
	}
	return s
}

// Encode returns the base58 encoding of the 64-byte private key.
func (k Keypair) Encode() string {
	return base58.Encode(k.private)
}

// Decode parses a keypair produced by Encode.
func Decode(s string) (Keypair, error) {
	raw, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return Keypair{}, fmt.Errorf("decoding keypair: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	var addr authority.Address
	copy(addr[:], priv.Public().(ed25519.PublicKey))
	return Keypair{public: addr, private: priv}, nil
}

// Load reads a keypair file written by Save.
func Load(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("reading keypair %s: %w", path, err)
	}
	return Decode(string(data))
}

// Save writes the keypair to path with owner-only permissions.
func (k Keypair) Save(path string) error {
	if err := os.WriteFile(path, []byte(k.Encode()+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing keypair %s: %w", path, err)
	}
	return nil
}
