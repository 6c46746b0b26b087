// Package gameserver serves the arena program over gRPC.
package gameserver

import (
	"context"
	"encoding/base64"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
	"github.com/cory-johannsen/goldarena/internal/game/arena"
	"github.com/cory-johannsen/goldarena/internal/game/player"
	"github.com/cory-johannsen/goldarena/internal/gameserver/arenav1"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/token"
)

// DefaultSubscribeBuffer is the per-stream notification buffer.
const DefaultSubscribeBuffer = 256

// ArenaService implements arenav1.ArenaServiceServer on top of an arena
// Program. Mutating calls must be signed; see arenav1.Sign.
type ArenaService struct {
	program *arena.Program
	bus     *events.Bus
	history ledger.History
	buffer  int
	logger  *zap.Logger
}

// NewArenaService creates an ArenaService.
//
// Precondition: program, bus and logger must be non-nil. history may be nil,
// in which case Subscribe cannot replay past notifications.
func NewArenaService(program *arena.Program, bus *events.Bus, history ledger.History, logger *zap.Logger) *ArenaService {
	return &ArenaService{
		program: program,
		bus:     bus,
		history: history,
		buffer:  DefaultSubscribeBuffer,
		logger:  logger,
	}
}

var _ arenav1.ArenaServiceServer = (*ArenaService)(nil)

// CreateMint creates the reward mint. Must be signed by the admin key.
// Request: {name, symbol, uri, mutable?}.
func (s *ArenaService) CreateMint(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodCreateMint, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	md := token.MetadataParams{
		Name:    optionalString(req, "name"),
		Symbol:  optionalString(req, "symbol"),
		URI:     optionalString(req, "uri"),
		Mutable: boolField(req, "mutable", true),
	}
	if err := s.program.CreateMint(ctx, signer, md); err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	metadata, err := token.MetadataAddress(s.program.Reward().Mint())
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"mint":     s.program.Reward().Mint().String(),
		"metadata": metadata.String(),
	})
}

// CreateFeed creates an oracle feed. Must be signed by the new feed's key.
// Request: {player}.
func (s *ArenaService) CreateFeed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodCreateFeed, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	owner, err := addressField(req, "player")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	client, err := s.program.CreateFeed(ctx, signer, owner)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"feed":   signer.Key().String(),
		"client": client.String(),
	})
}

// InitPlayer creates the signer's player and client records.
// Request: {feed}.
func (s *ArenaService) InitPlayer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodInitPlayer, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	feed, err := addressField(req, "feed")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	client, err := s.program.InitPlayer(ctx, signer, feed)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	acct, err := player.Address(s.program.Config().ProgramID, signer.Key())
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"player_account": acct.String(),
		"client":         client.String(),
	})
}

// RequestRandomness starts an attack round for the signer.
// Request: {feed}.
func (s *ArenaService) RequestRandomness(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodRequestRandomness, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	feed, err := addressField(req, "feed")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	disp, err := s.program.RequestRandomness(ctx, signer, feed)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"feed":       disp.Feed.String(),
		"request_id": disp.RequestID,
		"counter":    strconv.FormatUint(disp.Counter, 10),
	})
}

// KillEnemy applies kill damage to the signer's player.
func (s *ArenaService) KillEnemy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodKillEnemy, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	if err := s.program.KillEnemy(ctx, signer); err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return s.playerResponse(ctx, signer.Key())
}

// Heal restores the signer's player, burning one reward unit.
func (s *ArenaService) Heal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodHeal, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	if err := s.program.Heal(ctx, signer); err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return s.playerResponse(ctx, signer.Key())
}

// Transfer moves reward tokens from the signer to another player.
// Request: {to, amount} with amount in base units.
func (s *ArenaService) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := arenav1.Verify(arenav1.MethodTransfer, req)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	to, err := addressField(req, "to")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	amount, ok, err := uint64Field(req, "amount")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	if !ok {
		return nil, arenaerr.ToStatus(arenaerr.Validation(arenaerr.CodeInvalidArgument, "field %q is required", "amount"))
	}
	if err := s.program.Transfer(ctx, signer, to, amount); err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	bal, err := s.program.Balance(ctx, signer.Key())
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"to":      to.String(),
		"amount":  strconv.FormatUint(amount, 10),
		"balance": strconv.FormatUint(bal, 10),
	})
}

// GetPlayer returns a player's health and reward balance.
// Request: {player}.
func (s *ArenaService) GetPlayer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := addressField(req, "player")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return s.playerResponse(ctx, owner)
}

// GetClient returns the randomness client bound to a feed.
// Request: {feed}.
func (s *ArenaService) GetClient(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	feed, err := addressField(req, "feed")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	addr, st, err := s.program.Client(ctx, feed)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"client":        addr.String(),
		"feed":          st.Feed.String(),
		"player":        st.Player.String(),
		"max_result":    st.MaxResult,
		"result":        st.Result.String(),
		"result_buffer": base64.StdEncoding.EncodeToString(st.ResultBuffer[:]),
		"timestamp":     st.Timestamp,
		"status":        st.Status.String(),
	})
}

// GetBalance returns an owner's reward balance in base units.
// Request: {owner}.
func (s *ArenaService) GetBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	owner, err := addressField(req, "owner")
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	bal, err := s.program.Balance(ctx, owner)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	ata, err := s.program.Reward().AssociatedAddress(owner)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"owner":   owner.String(),
		"account": ata.String(),
		"mint":    s.program.Reward().Mint().String(),
		"balance": strconv.FormatUint(bal, 10),
	})
}

func (s *ArenaService) playerResponse(ctx context.Context, owner authority.Address) (*structpb.Struct, error) {
	st, err := s.program.Player(ctx, owner)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	bal, err := s.program.Balance(ctx, owner)
	if err != nil {
		return nil, arenaerr.ToStatus(err)
	}
	return response(map[string]any{
		"player":  owner.String(),
		"health":  st.Health,
		"balance": strconv.FormatUint(bal, 10),
	})
}

// Subscribe streams committed notifications. Request: {client?, from_seq?}.
// With from_seq the stream first replays persisted notifications after that
// sequence number, then continues live without gaps or repeats. A stream
// that falls behind the live feed ends with ResourceExhausted so the caller
// can resubscribe from the last sequence it saw.
func (s *ArenaService) Subscribe(req *structpb.Struct, stream arenav1.SubscribeServer) error {
	var (
		client    authority.Address
		hasClient bool
	)
	if v := optionalString(req, "client"); v != "" {
		addr, err := authority.Parse(v)
		if err != nil {
			return arenaerr.ToStatus(err)
		}
		client, hasClient = addr, true
	}
	from, replay, err := uint64Field(req, "from_seq")
	if err != nil {
		return arenaerr.ToStatus(err)
	}
	if replay && s.history == nil {
		return status.Error(codes.Unimplemented, "notification history is not persisted")
	}

	sub := s.bus.Subscribe(s.buffer, func(env events.Envelope) bool {
		return !hasClient || env.Event.Client() == client
	})
	defer sub.Close()

	ctx := stream.Context()
	last := from
	if replay {
		notes, err := s.history.Since(ctx, from, 0)
		if err != nil {
			s.logger.Error("replaying notifications", zap.Uint64("from_seq", from), zap.Error(err))
			return status.Error(codes.Internal, "replaying notifications failed")
		}
		for _, n := range notes {
			last = n.Seq
			if hasClient && n.Client != client {
				continue
			}
			msg := new(structpb.Struct)
			if err := protojson.Unmarshal(n.Payload, msg); err != nil {
				s.logger.Error("decoding persisted notification", zap.Uint64("seq", n.Seq), zap.Error(err))
				return status.Error(codes.Internal, "decoding persisted notification failed")
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}

	s.logger.Debug("subscriber attached",
		zap.Bool("replay", replay),
		zap.Uint64("from_seq", from),
		zap.String("client", optionalString(req, "client")),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "subscription closed")
			}
			if sub.Dropped() > 0 {
				return status.Errorf(codes.ResourceExhausted, "subscriber fell behind after seq %d", last)
			}
			if replay && env.Seq <= last {
				continue
			}
			msg, err := env.Struct()
			if err != nil {
				return status.Errorf(codes.Internal, "encoding notification %d: %v", env.Seq, err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			last = env.Seq
		}
	}
}
