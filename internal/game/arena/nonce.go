package arena

import (
	"context"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// NonceSeed tags per-key replay records. The full seeds are [NonceSeed, key].
const NonceSeed = "nonce"

// NonceState records the highest request nonce accepted for one key.
type NonceState struct {
	Last uint64
}

type nonceLayout NonceState

func (s *NonceState) MarshalBinary() ([]byte, error) {
	return ledger.Encode("NonceState", (*nonceLayout)(s))
}

func (s *NonceState) UnmarshalBinary(data []byte) error {
	return ledger.Decode("NonceState", data, (*nonceLayout)(s))
}

// NonceAddress returns the replay record address for key.
func (p *Program) NonceAddress(key authority.Address) (authority.Address, error) {
	addr, _, err := authority.FindProgramAddress([][]byte{[]byte(NonceSeed), key[:]}, p.cfg.ProgramID)
	return addr, err
}

// LastNonce returns the highest nonce accepted for key, or zero if none was.
func (p *Program) LastNonce(ctx context.Context, key authority.Address) (uint64, error) {
	addr, err := p.NonceAddress(key)
	if err != nil {
		return 0, err
	}
	var st NonceState
	err = p.ledger.View(ctx, func(tx *ledger.Tx) error {
		if !tx.Exists(addr) {
			return nil
		}
		return ledger.Load(tx, addr, p.cfg.ProgramID, &st)
	})
	return st.Last, err
}

// consumeNonce advances the replay record of a signer bound to a signed
// request. Signers without a nonce are in-process and are not tracked.
//
// Postcondition: Returns arenaerr.ErrNonceReused if the nonce does not
// exceed the last accepted one for the same key.
func (p *Program) consumeNonce(tx *ledger.Tx, signer authority.Signer) error {
	ns, ok := signer.(authority.Nonced)
	if !ok {
		return nil
	}
	key := ns.Key()
	if err := ns.Authorizes(key); err != nil {
		return err
	}
	addr, err := p.NonceAddress(key)
	if err != nil {
		return err
	}
	if !tx.Exists(addr) {
		return ledger.Init(tx, addr, p.cfg.ProgramID, &NonceState{Last: ns.Nonce()})
	}
	var st NonceState
	if err := ledger.Load(tx, addr, p.cfg.ProgramID, &st); err != nil {
		return err
	}
	if ns.Nonce() <= st.Last {
		return arenaerr.State(arenaerr.CodeNonceReused, "nonce %d for %s does not exceed %d", ns.Nonce(), key, st.Last)
	}
	st.Last = ns.Nonce()
	return ledger.Save(tx, addr, p.cfg.ProgramID, &st)
}
