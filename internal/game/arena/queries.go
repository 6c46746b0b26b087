package arena

import (
	"context"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/game/player"
	"github.com/cory-johannsen/goldarena/internal/game/vrfclient"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/token"
)

// Player returns the player record for owner.
func (p *Program) Player(ctx context.Context, owner authority.Address) (player.State, error) {
	var st player.State
	err := p.ledger.View(ctx, func(tx *ledger.Tx) error {
		addr, err := player.Address(p.cfg.ProgramID, owner)
		if err != nil {
			return err
		}
		return ledger.Load(tx, addr, p.cfg.ProgramID, &st)
	})
	return st, err
}

// Client returns the randomness client record bound to feed and its address.
func (p *Program) Client(ctx context.Context, feed authority.Address) (authority.Address, vrfclient.State, error) {
	var (
		addr authority.Address
		st   vrfclient.State
	)
	err := p.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		addr, st, err = p.loadClient(tx, feed)
		return err
	})
	return addr, st, err
}

// Balance returns owner's reward balance in base units. An owner without a
// reward account holds zero.
func (p *Program) Balance(ctx context.Context, owner authority.Address) (uint64, error) {
	ata, err := p.reward.AssociatedAddress(owner)
	if err != nil {
		return 0, err
	}
	var bal uint64
	err = p.ledger.View(ctx, func(tx *ledger.Tx) error {
		if !tx.Exists(ata) {
			return nil
		}
		var berr error
		bal, berr = token.Balance(tx, ata)
		return berr
	})
	return bal, err
}
