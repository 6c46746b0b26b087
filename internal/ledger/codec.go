package ledger

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
)

// DiscriminatorSize is the length of the type tag that prefixes account data.
const DiscriminatorSize = 8

// Discriminator returns the type tag for the named account type:
// the first 8 bytes of sha256("account:" + name).
func Discriminator(name string) bin.TypeID {
	return bin.SighashTypeID(bin.SIGHASH_ACCOUNT_NAMESPACE, name)
}

// Encode lays out v as account data for the named type: the discriminator
// followed by the Borsh encoding of v.
//
// Precondition: v is a pointer to a struct whose fields are all exported.
func Encode(name string, v any) ([]byte, error) {
	d := Discriminator(name)
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(d[:], false); err != nil {
		return nil, fmt.Errorf("encoding %s discriminator: %w", name, err)
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Decode checks that data holds the named type and decodes its body into v.
//
// Postcondition: Returns an INVALID_ACCOUNT_DATA validation error if the
// discriminator differs, the data is truncated, or bytes remain after v.
func Decode(name string, data []byte, v any) error {
	d := Discriminator(name)
	if len(data) < DiscriminatorSize || !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return arenaerr.Validation(arenaerr.CodeInvalidAccountData, "account data is not a %s", name)
	}
	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	if err := dec.Decode(v); err != nil {
		return arenaerr.Wrap(arenaerr.KindValidation, arenaerr.CodeInvalidAccountData, err, "decoding %s", name)
	}
	if n := dec.Remaining(); n != 0 {
		return arenaerr.Validation(arenaerr.CodeInvalidAccountData, "%s data has %d trailing bytes", name, n)
	}
	return nil
}

// Record is an account payload with a fixed binary layout.
type Record interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Load decodes the account at addr into rec after checking it is owned by owner.
//
// Postcondition: Returns a NotFound error if the account does not exist, an
// authorization error if it belongs to another program, or a validation error
// if the data is not a valid rec.
func Load(tx *Tx, addr, owner authority.Address, rec Record) error {
	acct, ok := tx.Get(addr)
	if !ok {
		return arenaerr.NotFound("account %s does not exist", addr)
	}
	if acct.Owner != owner {
		return arenaerr.Authorization(arenaerr.CodeOwnerMismatch, "account %s is owned by %s, expected %s", addr, acct.Owner, owner)
	}
	if err := rec.UnmarshalBinary(acct.Data); err != nil {
		return fmt.Errorf("decoding account %s: %w", addr, err)
	}
	return nil
}

// Save encodes rec into the existing account at addr.
//
// Precondition: the account exists and is owned by owner.
func Save(tx *Tx, addr, owner authority.Address, rec Record) error {
	acct, ok := tx.Get(addr)
	if !ok {
		return arenaerr.NotFound("account %s does not exist", addr)
	}
	if acct.Owner != owner {
		return arenaerr.Authorization(arenaerr.CodeOwnerMismatch, "account %s is owned by %s, expected %s", addr, acct.Owner, owner)
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding account %s: %w", addr, err)
	}
	acct.Data = data
	tx.Put(acct)
	return nil
}

// Init creates the account at addr owned by owner holding rec.
//
// Postcondition: Returns arenaerr.ErrAlreadyInitialized if addr already exists.
func Init(tx *Tx, addr, owner authority.Address, rec Record) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding account %s: %w", addr, err)
	}
	return tx.Create(Account{Address: addr, Owner: owner, Data: data})
}
