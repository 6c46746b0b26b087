// Package arena is the game program: player and randomness-client
// initialization, oracle requests and the fulfilment callback, direct kills
// and healing. Every instruction runs as one atomic ledger operation.
package arena

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
	"github.com/cory-johannsen/goldarena/internal/game/player"
	"github.com/cory-johannsen/goldarena/internal/game/reward"
	"github.com/cory-johannsen/goldarena/internal/game/vrfclient"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/oracle"
	"github.com/cory-johannsen/goldarena/internal/token"
)

// Instruction names, used as ledger operation names and in logs.
const (
	OpCreateMint        = "create_mint"
	OpCreateFeed        = "create_feed"
	OpInitPlayer        = "init_player"
	OpRequestRandomness = "request_randomness"
	OpConsumeRandomness = "consume_randomness"
	OpKillEnemy         = "kill_enemy"
	OpHeal              = "heal"
	OpTransfer          = "transfer"
)

// Config holds the program's deployment parameters.
type Config struct {
	ProgramID authority.Address
	// Admin is the only key allowed to create the reward mint.
	Admin authority.Address
	// Queue is the oracle queue requests are sent to.
	Queue authority.Address
	// MaxResult is the inclusive bound of derived outcomes for new clients.
	MaxResult uint64
	// StrictReplayGuard records every delivered buffer so that a redelivered
	// buffer never applies twice.
	StrictReplayGuard bool
}

// Program executes arena instructions against a ledger.
type Program struct {
	cfg        Config
	ledger     *ledger.Ledger
	reward     *reward.Authority
	dispatcher oracle.Dispatcher
	logger     *zap.Logger
}

// New creates a Program. A nil dispatcher leaves requests pending until
// something fulfils them.
//
// Precondition: l, rw and logger must be non-nil; rw must be derived under
// cfg.ProgramID.
// Postcondition: Returns a validation error if cfg.MaxResult is out of range.
func New(cfg Config, l *ledger.Ledger, rw *reward.Authority, d oracle.Dispatcher, logger *zap.Logger) (*Program, error) {
	if err := vrfclient.ValidateMaxResult(cfg.MaxResult); err != nil {
		return nil, err
	}
	return &Program{cfg: cfg, ledger: l, reward: rw, dispatcher: d, logger: logger}, nil
}

// Config returns the program configuration.
func (p *Program) Config() Config { return p.cfg }

// Reward returns the reward mint authority.
func (p *Program) Reward() *reward.Authority { return p.reward }

// run executes fn as instruction op and logs its outcome.
func (p *Program) run(ctx context.Context, op string, fn func(*ledger.Tx) error, fields ...zap.Field) error {
	start := time.Now()
	err := p.ledger.Execute(ctx, op, fn)
	fields = append(fields, zap.String("instruction", op), zap.Duration("duration", time.Since(start)))
	if err != nil {
		p.logger.Info("instruction failed", append(fields,
			zap.String("kind", arenaerr.KindOf(err).String()),
			zap.String("code", string(arenaerr.CodeOf(err))),
			zap.Error(err),
		)...)
		return err
	}
	p.logger.Info("instruction succeeded", fields...)
	return nil
}

// runSigned runs fn as instruction op on behalf of signer. A signer bound to
// a signed request has its nonce consumed in the same operation, so a
// replayed request fails and a failed request leaves the nonce unused.
func (p *Program) runSigned(ctx context.Context, op string, signer authority.Signer, fn func(*ledger.Tx) error, fields ...zap.Field) error {
	return p.run(ctx, op, func(tx *ledger.Tx) error {
		if err := p.consumeNonce(tx, signer); err != nil {
			return err
		}
		return fn(tx)
	}, fields...)
}

// ClientAddress returns the randomness client record address for feed.
func (p *Program) ClientAddress(feed authority.Address) (authority.Address, error) {
	addr, _, err := vrfclient.Derive(p.cfg.ProgramID, feed)
	return addr, err
}

// CreateMint creates the reward mint and its metadata.
//
// Precondition: admin must authorize the configured admin key.
// Postcondition: Returns arenaerr.ErrAlreadyInitialized on a second call.
func (p *Program) CreateMint(ctx context.Context, admin authority.Signer, md token.MetadataParams) error {
	return p.runSigned(ctx, OpCreateMint, admin, func(tx *ledger.Tx) error {
		if err := admin.Authorizes(p.cfg.Admin); err != nil {
			return err
		}
		return p.reward.CreateMint(tx, md)
	}, zap.String("mint", p.reward.Mint().String()))
}

// CreateFeed creates an oracle feed whose authority is the client record for
// that feed and whose callback targets this program on behalf of owner.
//
// Precondition: feedSigner must authorize its own key, which becomes the feed address.
// Postcondition: Returns the client record address the feed is bound to.
func (p *Program) CreateFeed(ctx context.Context, feedSigner authority.Signer, owner authority.Address) (authority.Address, error) {
	feed := feedSigner.Key()
	client, err := p.ClientAddress(feed)
	if err != nil {
		return authority.Zero, err
	}
	err = p.runSigned(ctx, OpCreateFeed, feedSigner, func(tx *ledger.Tx) error {
		return oracle.CreateFeed(tx, oracle.FeedParams{
			Address:   feed,
			Authority: client,
			Queue:     p.cfg.Queue,
			Callback: oracle.Callback{
				Program:  p.cfg.ProgramID,
				Accounts: []authority.Address{owner},
			},
		}, feedSigner)
	}, zap.String("feed", feed.String()), zap.String("player", owner.String()))
	if err != nil {
		return authority.Zero, err
	}
	return client, nil
}

// InitPlayer creates the player's record and the randomness client bound to feed.
//
// Precondition: signer must authorize the player key.
// Postcondition: The client is Idle with the configured MaxResult. Returns
// arenaerr.ErrInvalidVrfAuthority if the feed's authority is not the client
// record, and arenaerr.ErrAlreadyInitialized if either record exists.
func (p *Program) InitPlayer(ctx context.Context, signer authority.Signer, feed authority.Address) (authority.Address, error) {
	owner := signer.Key()
	clientAddr, bump, err := vrfclient.Derive(p.cfg.ProgramID, feed)
	if err != nil {
		return authority.Zero, err
	}
	err = p.runSigned(ctx, OpInitPlayer, signer, func(tx *ledger.Tx) error {
		if err := signer.Authorizes(owner); err != nil {
			return err
		}
		f, err := oracle.LoadFeed(tx, feed)
		if err != nil {
			return arenaerr.Wrap(arenaerr.KindValidation, arenaerr.CodeInvalidVrfAccount, err, "loading feed %s", feed)
		}
		if f.Authority != clientAddr {
			return arenaerr.ErrInvalidVrfAuthority
		}
		playerAddr, err := player.Address(p.cfg.ProgramID, owner)
		if err != nil {
			return err
		}
		st := player.New()
		if err := ledger.Init(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return fmt.Errorf("creating player record: %w", err)
		}
		client := &vrfclient.State{
			Bump:      bump,
			MaxResult: p.cfg.MaxResult,
			Feed:      feed,
			Player:    owner,
			Status:    vrfclient.StatusIdle,
		}
		if err := ledger.Init(tx, clientAddr, p.cfg.ProgramID, client); err != nil {
			return fmt.Errorf("creating client record: %w", err)
		}
		tx.Emit(events.ClientCreated{ClientID: clientAddr, MaxResult: client.MaxResult, Timestamp: tx.Unix()})
		return nil
	}, zap.String("player", owner.String()), zap.String("feed", feed.String()))
	if err != nil {
		return authority.Zero, err
	}
	return clientAddr, nil
}

// loadClient returns the client record bound to feed.
func (p *Program) loadClient(tx *ledger.Tx, feed authority.Address) (authority.Address, vrfclient.State, error) {
	addr, err := p.ClientAddress(feed)
	if err != nil {
		return authority.Zero, vrfclient.State{}, err
	}
	var st vrfclient.State
	if err := ledger.Load(tx, addr, p.cfg.ProgramID, &st); err != nil {
		return authority.Zero, vrfclient.State{}, err
	}
	if st.Feed != feed {
		return authority.Zero, vrfclient.State{}, arenaerr.ErrInvalidVrfAccount
	}
	return addr, st, nil
}

// RequestRandomness asks the oracle for a new value for the client bound to
// feed. The request is signed by the client record's derived authority.
//
// Precondition: signer must authorize the player the client is bound to.
// Postcondition: The client is Pending with a zero result, the player's reward
// token account exists, and a RandomnessRequested notification is emitted.
func (p *Program) RequestRandomness(ctx context.Context, signer authority.Signer, feed authority.Address) (oracle.Dispatch, error) {
	var disp oracle.Dispatch
	err := p.runSigned(ctx, OpRequestRandomness, signer, func(tx *ledger.Tx) error {
		clientAddr, client, err := p.loadClient(tx, feed)
		if err != nil {
			return err
		}
		if err := signer.Authorizes(client.Player); err != nil {
			return err
		}
		if _, err := p.reward.AccountFor(tx, client.Player); err != nil {
			return fmt.Errorf("preparing reward account: %w", err)
		}
		disp, err = oracle.RequestRandomness(tx, oracle.Request{
			Feed:      feed,
			Queue:     p.cfg.Queue,
			Payer:     client.Player,
			Authority: client.Seal(p.cfg.ProgramID),
		}, p.dispatcher)
		if err != nil {
			return err
		}
		client.BeginRequest()
		if err := ledger.Save(tx, clientAddr, p.cfg.ProgramID, &client); err != nil {
			return err
		}
		tx.Emit(events.RandomnessRequested{ClientID: clientAddr, MaxResult: client.MaxResult, Timestamp: tx.Unix()})
		return nil
	}, zap.String("player", signer.Key().String()), zap.String("feed", feed.String()))
	return disp, err
}

// ConsumeRandomness is the oracle callback for feed. accounts[0] must be the
// player the client is bound to.
//
// An empty or duplicate buffer is a no-op. Otherwise the derived outcome is
// applied as damage and one reward unit is issued to the player.
func (p *Program) ConsumeRandomness(ctx context.Context, feed authority.Address, accounts []authority.Address) error {
	return p.run(ctx, OpConsumeRandomness, func(tx *ledger.Tx) error {
		clientAddr, client, err := p.loadClient(tx, feed)
		if err != nil {
			return err
		}
		if len(accounts) == 0 || accounts[0] != client.Player {
			return arenaerr.ErrInvalidVrfAccount
		}
		f, err := oracle.LoadFeed(tx, feed)
		if err != nil {
			return err
		}

		delivery := client.Accept(f.Result, tx.Unix(), p.cfg.StrictReplayGuard)
		if !delivery.Applies() {
			p.logger.Debug("randomness delivery ignored",
				zap.String("feed", feed.String()),
				zap.String("reason", string(delivery.Skipped)),
			)
			return nil
		}
		if err := ledger.Save(tx, clientAddr, p.cfg.ProgramID, &client); err != nil {
			return err
		}
		if delivery.Updated {
			tx.Emit(events.ResultUpdated{
				ClientID:     clientAddr,
				MaxResult:    client.MaxResult,
				Result:       client.Result,
				ResultBuffer: client.ResultBuffer,
				Timestamp:    tx.Unix(),
			})
		}

		playerAddr, err := player.Address(p.cfg.ProgramID, client.Player)
		if err != nil {
			return err
		}
		var st player.State
		if err := ledger.Load(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}
		st.ApplyDamage(delivery.Damage())
		if err := ledger.Save(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}

		ata, err := p.reward.AssociatedAddress(client.Player)
		if err != nil {
			return err
		}
		return p.reward.Issue(tx, 1, ata)
	}, zap.String("feed", feed.String()))
}

// KillEnemy deals the fixed kill damage to the player and rewards one unit.
//
// Postcondition: Returns arenaerr.ErrNotEnoughHealth at zero health and
// arenaerr.ErrArithmeticUnderflow when health is below the kill damage.
func (p *Program) KillEnemy(ctx context.Context, signer authority.Signer) error {
	owner := signer.Key()
	return p.runSigned(ctx, OpKillEnemy, signer, func(tx *ledger.Tx) error {
		if err := signer.Authorizes(owner); err != nil {
			return err
		}
		playerAddr, err := player.Address(p.cfg.ProgramID, owner)
		if err != nil {
			return err
		}
		var st player.State
		if err := ledger.Load(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}
		if err := st.TakeKillDamage(); err != nil {
			return err
		}
		if err := ledger.Save(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}
		ata, err := p.reward.AccountFor(tx, owner)
		if err != nil {
			return err
		}
		return p.reward.Issue(tx, 1, ata)
	}, zap.String("player", owner.String()))
}

// Heal restores the player to full health at the cost of one reward unit,
// burned on the player's own authority.
//
// Postcondition: Returns a NotFound error if the player has no reward account
// and arenaerr.ErrInsufficientFunds if it holds less than one unit.
func (p *Program) Heal(ctx context.Context, signer authority.Signer) error {
	owner := signer.Key()
	return p.runSigned(ctx, OpHeal, signer, func(tx *ledger.Tx) error {
		if err := signer.Authorizes(owner); err != nil {
			return err
		}
		playerAddr, err := player.Address(p.cfg.ProgramID, owner)
		if err != nil {
			return err
		}
		var st player.State
		if err := ledger.Load(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}
		st.Heal()
		if err := ledger.Save(tx, playerAddr, p.cfg.ProgramID, &st); err != nil {
			return err
		}
		ata, err := p.reward.AssociatedAddress(owner)
		if err != nil {
			return err
		}
		return p.reward.Redeem(tx, 1, ata, signer)
	}, zap.String("player", owner.String()))
}

// Transfer moves amount base units of the reward token from the signer's
// reward account to the recipient's, creating the recipient's account if
// needed.
//
// Postcondition: Returns a NotFound error if the signer has no reward
// account and arenaerr.ErrInsufficientFunds if it holds less than amount.
func (p *Program) Transfer(ctx context.Context, signer authority.Signer, to authority.Address, amount uint64) error {
	owner := signer.Key()
	return p.runSigned(ctx, OpTransfer, signer, func(tx *ledger.Tx) error {
		if err := signer.Authorizes(owner); err != nil {
			return err
		}
		if amount == 0 {
			return arenaerr.Validation(arenaerr.CodeInvalidArgument, "transfer amount must be positive")
		}
		src, err := p.reward.AssociatedAddress(owner)
		if err != nil {
			return err
		}
		if !tx.Exists(src) {
			return arenaerr.NotFound("reward account for %s does not exist", owner)
		}
		dst, err := p.reward.AccountFor(tx, to)
		if err != nil {
			return err
		}
		return token.Transfer(tx, src, dst, amount, signer)
	}, zap.String("player", owner.String()), zap.String("to", to.String()), zap.Uint64("amount", amount))
}
