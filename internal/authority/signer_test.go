package authority_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
)

func newKey(t *testing.T, seed byte) (authority.Address, ed25519.PrivateKey) {
	t.Helper()
	var s [ed25519.SeedSize]byte
	s[0] = seed
	priv := ed25519.NewKeyFromSeed(s[:])
	addr, err := authority.FromBytes(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return addr, priv
}

func TestVerifySignature(t *testing.T) {
	addr, priv := newKey(t, 1)
	other, _ := newKey(t, 2)
	msg := []byte("kill_enemy")

	signer, err := authority.VerifySignature(addr, msg, ed25519.Sign(priv, msg))
	require.NoError(t, err)
	assert.Equal(t, addr, signer.Key())
	assert.NoError(t, signer.Authorizes(addr))
	assert.ErrorIs(t, signer.Authorizes(other), codeErr(arenaerr.CodeAuthorityMismatch))

	_, err = authority.VerifySignature(other, msg, ed25519.Sign(priv, msg))
	assert.ErrorIs(t, err, codeErr(arenaerr.CodeInvalidSignature))

	_, err = authority.VerifySignature(addr, []byte("heal"), ed25519.Sign(priv, msg))
	assert.ErrorIs(t, err, codeErr(arenaerr.CodeInvalidSignature))

	_, err = authority.VerifySignature(addr, msg, []byte{1, 2, 3})
	assert.ErrorIs(t, err, codeErr(arenaerr.CodeInvalidSignature))
}

func TestKeySigner_ZeroValueAuthorizesNothing(t *testing.T) {
	var s authority.KeySigner
	assert.ErrorIs(t, s.Authorizes(authority.Zero), codeErr(arenaerr.CodeInvalidSignature))
}

func TestAddress_TextRoundTrip(t *testing.T) {
	assert.Equal(t, "4AGaHACpVPiht9vSFtEbtAQPcF5kMGLLKfcFjPhoUWgB", program.String())

	var a authority.Address
	require.NoError(t, a.UnmarshalText([]byte(program.String())))
	assert.Equal(t, program, a)

	_, err := authority.Parse("0OIl")
	assert.ErrorIs(t, err, arenaerr.ErrValidation)
	_, err = authority.Parse("3yZe7d")
	assert.ErrorIs(t, err, codeErr(arenaerr.CodeInvalidArgument))
	assert.Panics(t, func() { authority.MustParse("not an address") })
}

func TestAddress_BytesIsCopy(t *testing.T) {
	b := program.Bytes()
	b[0] ^= 0xff
	assert.NotEqual(t, b[0], program[0])
	assert.True(t, authority.Zero.IsZero())
	assert.False(t, program.IsZero())
}

func TestWithNonce_KeepsVerifiedKey(t *testing.T) {
	addr, priv := newKey(t, 1)
	other, _ := newKey(t, 2)
	msg := []byte("heal")
	verified, err := authority.VerifySignature(addr, msg, ed25519.Sign(priv, msg))
	require.NoError(t, err)

	var signer authority.Signer = authority.WithNonce(verified, 7)
	nonced, ok := signer.(authority.Nonced)
	require.True(t, ok)
	assert.Equal(t, uint64(7), nonced.Nonce())
	assert.Equal(t, addr, nonced.Key())
	assert.NoError(t, nonced.Authorizes(addr))
	assert.ErrorIs(t, nonced.Authorizes(other), codeErr(arenaerr.CodeAuthorityMismatch))

	_, ok = any(verified).(authority.Nonced)
	assert.False(t, ok)
}
