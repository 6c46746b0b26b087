package reward_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/game/reward"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/token"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

var program = authority.MustParse("4AGaHACpVPiht9vSFtEbtAQPcF5kMGLLKfcFjPhoUWgB")

var goldMetadata = token.MetadataParams{Name: "Gold", Symbol: "GOLD", URI: "https://example.invalid/gold.json"}

func setup(t *testing.T) (*ledger.Ledger, *reward.Authority) {
	t.Helper()
	auth, err := reward.New(reward.Config{Program: program, Seed: reward.DefaultSeed, Decimals: 9})
	require.NoError(t, err)
	l := ledger.New()
	require.NoError(t, l.Execute(context.Background(), "create_mint", func(tx *ledger.Tx) error {
		return auth.CreateMint(tx, goldMetadata)
	}))
	return l, auth
}

func TestNew_MintIsOffCurveAndDeterministic(t *testing.T) {
	a, err := reward.New(reward.Config{Program: program})
	require.NoError(t, err)
	b, err := reward.New(reward.Config{Program: program, Seed: reward.DefaultSeed})
	require.NoError(t, err)
	assert.Equal(t, a.Mint(), b.Mint())
	assert.False(t, authority.IsOnCurve(a.Mint()))
	assert.NoError(t, a.Seal().Authorizes(a.Mint()))
}

func TestUnit(t *testing.T) {
	u, err := reward.Unit(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), u)

	u, err = reward.Unit(19)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000_000_000_000), u)

	_, err = reward.Unit(20)
	assert.ErrorIs(t, err, arenaerr.ErrArithmeticOverflow)
}

func TestCreateMint_Once(t *testing.T) {
	l, auth := setup(t)
	err := l.Execute(context.Background(), "create_mint", func(tx *ledger.Tx) error {
		return auth.CreateMint(tx, goldMetadata)
	})
	assert.ErrorIs(t, err, arenaerr.ErrAlreadyInitialized)

	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		m, err := token.LoadMint(tx, auth.Mint())
		require.NoError(t, err)
		assert.Equal(t, auth.Mint(), m.Authority)
		assert.Equal(t, auth.Mint(), m.PermanentDelegate)
		assert.Equal(t, uint8(9), m.Decimals)

		md, err := token.LoadMetadata(tx, auth.Mint())
		require.NoError(t, err)
		assert.Equal(t, "Gold", md.Name)
		return nil
	}))
}

func TestCreateMint_InvalidMetadataCreatesNothing(t *testing.T) {
	auth, err := reward.New(reward.Config{Program: program, Decimals: 9})
	require.NoError(t, err)
	l := ledger.New()
	err = l.Execute(context.Background(), "create_mint", func(tx *ledger.Tx) error {
		return auth.CreateMint(tx, token.MetadataParams{Symbol: "TOOLONGSYMBOL"})
	})
	assert.Equal(t, arenaerr.CodeInvalidMetadata, arenaerr.CodeOf(err))
	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		assert.False(t, tx.Exists(auth.Mint()))
		return nil
	}))
}

func TestIssueDestroyRedeem(t *testing.T) {
	l, auth := setup(t)
	alice := wallet.FromSeed([32]byte{1})
	var acct authority.Address
	ctx := context.Background()

	require.NoError(t, l.Execute(ctx, "issue", func(tx *ledger.Tx) error {
		var err error
		if acct, err = auth.AccountFor(tx, alice.Address()); err != nil {
			return err
		}
		return auth.Issue(tx, 3, acct)
	}))
	require.NoError(t, l.Execute(ctx, "destroy", func(tx *ledger.Tx) error { return auth.Destroy(tx, 1, acct) }))
	require.NoError(t, l.Execute(ctx, "redeem", func(tx *ledger.Tx) error {
		return auth.Redeem(tx, 1, acct, alice.Signer())
	}))

	err := l.Execute(ctx, "redeem", func(tx *ledger.Tx) error {
		return auth.Redeem(tx, 1, acct, wallet.FromSeed([32]byte{2}).Signer())
	})
	assert.ErrorIs(t, err, arenaerr.ErrAuthorization)

	require.NoError(t, l.View(ctx, func(tx *ledger.Tx) error {
		bal, err := token.Balance(tx, acct)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000_000), bal)
		want, err := auth.AssociatedAddress(alice.Address())
		require.NoError(t, err)
		assert.Equal(t, want, acct)
		return nil
	}))
}

func TestIssue_ForgedSealRejected(t *testing.T) {
	l, auth := setup(t)
	alice := wallet.FromSeed([32]byte{1})
	ctx := context.Background()
	err := l.Execute(ctx, "forge", func(tx *ledger.Tx) error {
		acct, err := auth.AccountFor(tx, alice.Address())
		if err != nil {
			return err
		}
		forged := authority.NewSeal(program, auth.Bump(), []byte("rewards"))
		return token.MintTo(tx, auth.Mint(), acct, 1, forged)
	})
	assert.ErrorIs(t, err, arenaerr.ErrAuthorization)
}
