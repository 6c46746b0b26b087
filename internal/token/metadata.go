package token

import (
	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// Metadata field limits, in bytes.
const (
	MaxNameLen   = 32
	MaxSymbolLen = 10
	MaxURILen    = 200
)

// MetadataParams is the descriptive data registered for a mint.
type MetadataParams struct {
	Name    string `yaml:"name"`
	Symbol  string `yaml:"symbol"`
	URI     string `yaml:"uri"`
	Mutable bool   `yaml:"mutable"`
}

// Validate checks the field limits.
func (p MetadataParams) Validate() error {
	switch {
	case len(p.Name) > MaxNameLen:
		return arenaerr.Validation(arenaerr.CodeInvalidMetadata, "name is %d bytes, max %d", len(p.Name), MaxNameLen)
	case len(p.Symbol) > MaxSymbolLen:
		return arenaerr.Validation(arenaerr.CodeInvalidMetadata, "symbol is %d bytes, max %d", len(p.Symbol), MaxSymbolLen)
	case len(p.URI) > MaxURILen:
		return arenaerr.Validation(arenaerr.CodeInvalidMetadata, "uri is %d bytes, max %d", len(p.URI), MaxURILen)
	}
	return nil
}

// MetadataAddress returns the metadata record address for mint:
// seeds ["metadata", MetadataProgramID, mint] under MetadataProgramID.
func MetadataAddress(mint authority.Address) (authority.Address, error) {
	addr, _, err := authority.FindProgramAddress(
		[][]byte{[]byte("metadata"), MetadataProgramID[:], mint[:]}, MetadataProgramID)
	return addr, err
}

// CreateMetadata registers p against mint. The mint authority becomes the
// update authority.
//
// Precondition: signer must authorize the mint's authority.
// Postcondition: Returns arenaerr.ErrAlreadyInitialized on a second call for
// the same mint.
func CreateMetadata(tx *ledger.Tx, mint authority.Address, p MetadataParams, signer authority.Signer) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m, err := LoadMint(tx, mint)
	if err != nil {
		return err
	}
	if err := signer.Authorizes(m.Authority); err != nil {
		return err
	}
	addr, err := MetadataAddress(mint)
	if err != nil {
		return err
	}
	return ledger.Init(tx, addr, MetadataProgramID, &Metadata{
		Mint:            mint,
		UpdateAuthority: m.Authority,
		Name:            p.Name,
		Symbol:          p.Symbol,
		URI:             p.URI,
		Mutable:         p.Mutable,
	})
}

// LoadMetadata returns the metadata registered for mint.
func LoadMetadata(tx *ledger.Tx, mint authority.Address) (Metadata, error) {
	addr, err := MetadataAddress(mint)
	if err != nil {
		return Metadata{}, err
	}
	var md Metadata
	err = ledger.Load(tx, addr, MetadataProgramID, &md)
	return md, err
}
