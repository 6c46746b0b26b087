// Package token is the fungible-token ledger service: mints, token accounts,
// associated-account bootstrapping, and mint-to, burn and transfer, plus
// one-time metadata registration for a mint.
package token

import (
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// Well-known program ids. Mints and token accounts are owned by ProgramID,
// associated token account addresses are derived under AssociatedProgramID,
// and metadata records are owned by MetadataProgramID.
var (
	ProgramID           = authority.MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedProgramID = authority.MustParse("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	MetadataProgramID   = authority.MustParse("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Mint is the record for one fungible token.
type Mint struct {
	// Authority is the only identity that may mint new units.
	Authority authority.Address
	Supply    uint64
	Decimals  uint8
	// PermanentDelegate may burn from any account of this mint. Zero means none.
	PermanentDelegate authority.Address
}

type mintLayout Mint

func (m *Mint) MarshalBinary() ([]byte, error) {
	return ledger.Encode("Mint", (*mintLayout)(m))
}

func (m *Mint) UnmarshalBinary(data []byte) error {
	return ledger.Decode("Mint", data, (*mintLayout)(m))
}

// Account holds a balance of one mint for one owner.
type Account struct {
	Mint   authority.Address
	Owner  authority.Address
	Amount uint64
}

type accountLayout Account

func (a *Account) MarshalBinary() ([]byte, error) {
	return ledger.Encode("TokenAccount", (*accountLayout)(a))
}

func (a *Account) UnmarshalBinary(data []byte) error {
	return ledger.Decode("TokenAccount", data, (*accountLayout)(a))
}

// Metadata is descriptive data attached once to a mint.
type Metadata struct {
	Mint            authority.Address
	UpdateAuthority authority.Address
	Name            string
	Symbol          string
	URI             string
	Mutable         bool
}

type metadataLayout Metadata

func (m *Metadata) MarshalBinary() ([]byte, error) {
	return ledger.Encode("Metadata", (*metadataLayout)(m))
}

func (m *Metadata) UnmarshalBinary(data []byte) error {
	return ledger.Decode("Metadata", data, (*metadataLayout)(m))
}
