// Package reward is the keyless mint authority for the arena reward token.
// The mint lives at an address derived from the configured seed, and that
// same derived identity is its mint authority, permanent delegate and
// metadata update authority. Every issue or destroy is signed with the
// derivation seal; no private key exists.
package reward

import (
	"fmt"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/token"
)

// DefaultSeed tags the reward mint.
const DefaultSeed = "reward"

// Config identifies the reward mint.
type Config struct {
	// Program is the arena program id the mint is derived under.
	Program authority.Address
	// Seed is the derivation tag.
	Seed string
	// Decimals is the precision a newly created mint is given.
	Decimals uint8
}

// Authority is the derived reward mint identity.
type Authority struct {
	cfg  Config
	mint authority.Address
	bump uint8
}

// New derives the reward mint from cfg.
//
// Postcondition: Returns a validation error if the seed cannot be used for
// derivation.
func New(cfg Config) (*Authority, error) {
	if cfg.Seed == "" {
		cfg.Seed = DefaultSeed
	}
	mint, bump, err := authority.FindProgramAddress([][]byte{[]byte(cfg.Seed)}, cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("deriving reward mint: %w", err)
	}
	return &Authority{cfg: cfg, mint: mint, bump: bump}, nil
}

// Mint returns the mint address, which is also the mint authority.
func (a *Authority) Mint() authority.Address { return a.mint }

// Bump returns the derivation salt of the mint address.
func (a *Authority) Bump() uint8 { return a.bump }

// Seal returns the signer for the reward identity.
func (a *Authority) Seal() authority.Seal {
	return authority.NewSeal(a.cfg.Program, a.bump, []byte(a.cfg.Seed))
}

// Unit returns 10^decimals, the base-unit size of one whole token.
//
// Postcondition: Returns arenaerr.ErrArithmeticOverflow if the result does
// not fit in a uint64.
func Unit(decimals uint8) (uint64, error) {
	unit := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		if unit > ^uint64(0)/10 {
			return 0, arenaerr.ErrArithmeticOverflow
		}
		unit *= 10
	}
	return unit, nil
}

// CreateMint initializes the reward mint and registers its metadata.
//
// Postcondition: Returns arenaerr.ErrAlreadyInitialized if the mint exists.
func (a *Authority) CreateMint(tx *ledger.Tx, md token.MetadataParams) error {
	if _, err := Unit(a.cfg.Decimals); err != nil {
		return err
	}
	seal := a.Seal()
	err := token.InitializeMint(tx, token.MintParams{
		Address:           a.mint,
		Authority:         a.mint,
		PermanentDelegate: a.mint,
		Decimals:          a.cfg.Decimals,
	}, seal)
	if err != nil {
		return err
	}
	return token.CreateMetadata(tx, a.mint, md, seal)
}

// AccountFor returns owner's associated reward token account, creating it
// if needed.
func (a *Authority) AccountFor(tx *ledger.Tx, owner authority.Address) (authority.Address, error) {
	addr, _, err := token.GetOrCreateAssociated(tx, owner, a.mint)
	return addr, err
}

// AssociatedAddress returns owner's reward token account address without
// touching the ledger.
func (a *Authority) AssociatedAddress(owner authority.Address) (authority.Address, error) {
	return token.AssociatedAddress(owner, a.mint)
}

// scaled converts whole units to base units using the mint's recorded decimals.
func (a *Authority) scaled(tx *ledger.Tx, units uint64) (uint64, error) {
	m, err := token.LoadMint(tx, a.mint)
	if err != nil {
		return 0, err
	}
	unit, err := Unit(m.Decimals)
	if err != nil {
		return 0, err
	}
	if units != 0 && unit > ^uint64(0)/units {
		return 0, arenaerr.ErrArithmeticOverflow
	}
	return units * unit, nil
}

// Issue mints whole units into destination, signed by the reward seal.
func (a *Authority) Issue(tx *ledger.Tx, units uint64, destination authority.Address) error {
	amount, err := a.scaled(tx, units)
	if err != nil {
		return err
	}
	return token.MintTo(tx, a.mint, destination, amount, a.Seal())
}

// Destroy burns whole units from source, signed by the reward seal acting as
// the mint's permanent delegate.
func (a *Authority) Destroy(tx *ledger.Tx, units uint64, source authority.Address) error {
	amount, err := a.scaled(tx, units)
	if err != nil {
		return err
	}
	return token.Burn(tx, a.mint, source, amount, a.Seal())
}

// Redeem burns whole units from source on the authority of its owner.
func (a *Authority) Redeem(tx *ledger.Tx, units uint64, source authority.Address, owner authority.Signer) error {
	amount, err := a.scaled(tx, units)
	if err != nil {
		return err
	}
	return token.Burn(tx, a.mint, source, amount, owner)
}
