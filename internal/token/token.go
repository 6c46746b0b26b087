package token

import (
	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// MintParams describes a new mint.
type MintParams struct {
	Address           authority.Address
	Authority         authority.Address
	PermanentDelegate authority.Address
	Decimals          uint8
}

// InitializeMint creates the mint at p.Address.
//
// Precondition: signer must authorize p.Address (the mint account itself).
// Postcondition: Returns arenaerr.ErrAlreadyInitialized if the mint exists.
func InitializeMint(tx *ledger.Tx, p MintParams, signer authority.Signer) error {
	if err := signer.Authorizes(p.Address); err != nil {
		return err
	}
	return ledger.Init(tx, p.Address, ProgramID, &Mint{
		Authority:         p.Authority,
		Decimals:          p.Decimals,
		PermanentDelegate: p.PermanentDelegate,
	})
}

// LoadMint returns the mint at addr.
func LoadMint(tx *ledger.Tx, addr authority.Address) (Mint, error) {
	var m Mint
	err := ledger.Load(tx, addr, ProgramID, &m)
	return m, err
}

// LoadAccount returns the token account at addr.
func LoadAccount(tx *ledger.Tx, addr authority.Address) (Account, error) {
	var a Account
	err := ledger.Load(tx, addr, ProgramID, &a)
	return a, err
}

// AssociatedAddress returns the canonical token account address for owner
// and mint: seeds [owner, ProgramID, mint] under AssociatedProgramID.
func AssociatedAddress(owner, mint authority.Address) (authority.Address, error) {
	addr, _, err := authority.FindProgramAddress([][]byte{owner[:], ProgramID[:], mint[:]}, AssociatedProgramID)
	return addr, err
}

// GetOrCreateAssociated returns owner's associated account for mint, creating
// an empty one if it does not exist.
//
// Postcondition: created reports whether the account was created by this call.
func GetOrCreateAssociated(tx *ledger.Tx, owner, mint authority.Address) (addr authority.Address, created bool, err error) {
	addr, err = AssociatedAddress(owner, mint)
	if err != nil {
		return authority.Zero, false, err
	}
	if tx.Exists(addr) {
		acct, err := LoadAccount(tx, addr)
		if err != nil {
			return authority.Zero, false, err
		}
		if acct.Mint != mint || acct.Owner != owner {
			return authority.Zero, false, arenaerr.Validation(arenaerr.CodeInvalidArgument, "account %s is not the associated account of %s for %s", addr, owner, mint)
		}
		return addr, false, nil
	}
	if _, err := LoadMint(tx, mint); err != nil {
		return authority.Zero, false, err
	}
	if err := ledger.Init(tx, addr, ProgramID, &Account{Mint: mint, Owner: owner}); err != nil {
		return authority.Zero, false, err
	}
	return addr, true, nil
}

// MintTo creates amount new units of mint in dest.
//
// Precondition: signer must authorize the mint's recorded authority.
// Postcondition: Supply and dest balance grow by amount, or an
// ARITHMETIC_OVERFLOW error is returned and nothing changes.
func MintTo(tx *ledger.Tx, mint, dest authority.Address, amount uint64, signer authority.Signer) error {
	m, err := LoadMint(tx, mint)
	if err != nil {
		return err
	}
	if err := signer.Authorizes(m.Authority); err != nil {
		return err
	}
	acct, err := accountOf(tx, dest, mint)
	if err != nil {
		return err
	}
	if m.Supply > ^uint64(0)-amount || acct.Amount > ^uint64(0)-amount {
		return arenaerr.ErrArithmeticOverflow
	}
	m.Supply += amount
	acct.Amount += amount
	if err := ledger.Save(tx, mint, ProgramID, &m); err != nil {
		return err
	}
	return ledger.Save(tx, dest, ProgramID, &acct)
}

// Burn destroys amount units held in source.
//
// Precondition: signer must authorize the source account's owner or the
// mint's permanent delegate.
// Postcondition: Returns INSUFFICIENT_FUNDS if source holds less than amount.
func Burn(tx *ledger.Tx, mint, source authority.Address, amount uint64, signer authority.Signer) error {
	m, err := LoadMint(tx, mint)
	if err != nil {
		return err
	}
	acct, err := accountOf(tx, source, mint)
	if err != nil {
		return err
	}
	if err := signer.Authorizes(acct.Owner); err != nil {
		if m.PermanentDelegate.IsZero() || signer.Authorizes(m.PermanentDelegate) != nil {
			return err
		}
	}
	if acct.Amount < amount {
		return arenaerr.State(arenaerr.CodeInsufficientFunds, "account %s holds %d, cannot burn %d", source, acct.Amount, amount)
	}
	acct.Amount -= amount
	m.Supply -= amount
	if err := ledger.Save(tx, mint, ProgramID, &m); err != nil {
		return err
	}
	return ledger.Save(tx, source, ProgramID, &acct)
}

// Transfer moves amount units from source to dest.
//
// Precondition: signer must authorize the source account's owner; both
// accounts must hold the same mint.
func Transfer(tx *ledger.Tx, source, dest authority.Address, amount uint64, signer authority.Signer) error {
	from, err := LoadAccount(tx, source)
	if err != nil {
		return err
	}
	if err := signer.Authorizes(from.Owner); err != nil {
		return err
	}
	to, err := accountOf(tx, dest, from.Mint)
	if err != nil {
		return err
	}
	if from.Amount < amount {
		return arenaerr.State(arenaerr.CodeInsufficientFunds, "account %s holds %d, cannot transfer %d", source, from.Amount, amount)
	}
	if source == dest {
		return nil
	}
	if to.Amount > ^uint64(0)-amount {
		return arenaerr.ErrArithmeticOverflow
	}
	from.Amount -= amount
	to.Amount += amount
	if err := ledger.Save(tx, source, ProgramID, &from); err != nil {
		return err
	}
	return ledger.Save(tx, dest, ProgramID, &to)
}

// Balance returns the amount held in the token account at addr.
func Balance(tx *ledger.Tx, addr authority.Address) (uint64, error) {
	acct, err := LoadAccount(tx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

func accountOf(tx *ledger.Tx, addr, mint authority.Address) (Account, error) {
	acct, err := LoadAccount(tx, addr)
	if err != nil {
		return Account{}, err
	}
	if acct.Mint != mint {
		return Account{}, arenaerr.Validation(arenaerr.CodeInvalidArgument, "account %s holds mint %s, not %s", addr, acct.Mint, mint)
	}
	return acct, nil
}
