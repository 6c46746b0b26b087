package gameserver_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
	"github.com/cory-johannsen/goldarena/internal/game/arena"
	"github.com/cory-johannsen/goldarena/internal/game/reward"
	"github.com/cory-johannsen/goldarena/internal/gameserver"
	"github.com/cory-johannsen/goldarena/internal/gameserver/arenav1"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/oracle"
	"github.com/cory-johannsen/goldarena/internal/testutil"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

var programID = authority.MustParse("4AGaHACpVPiht9vSFtEbtAQPcF5kMGLLKfcFjPhoUWgB")

type fixture struct {
	t      *testing.T
	client *arenav1.Client
	health healthpb.HealthClient
	src    *oracle.ScriptedSource
	admin  wallet.Keypair
	alice  wallet.Keypair
	feed   wallet.Keypair
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	store := ledger.NewMemoryStore()
	l := ledger.New(ledger.WithStore(store), ledger.WithBus(bus), ledger.WithLogger(logger))
	f := &fixture{
		t:     t,
		src:   oracle.NewScriptedSource(),
		admin: wallet.FromSeed([32]byte{1}),
		alice: wallet.FromSeed([32]byte{3}),
		feed:  wallet.FromSeed([32]byte{5}),
	}
	operator := wallet.FromSeed([32]byte{2})

	var queue authority.Address
	require.NoError(t, l.Execute(context.Background(), "create_queue", func(tx *ledger.Tx) error {
		var err error
		queue, err = oracle.EnsureQueue(tx, "default", true, operator.Signer())
		return err
	}))

	node := oracle.NewNode(l, f.src, oracle.NodeConfig{}, logger)
	rw, err := reward.New(reward.Config{Program: programID, Decimals: 9})
	require.NoError(t, err)
	prog, err := arena.New(arena.Config{
		ProgramID: programID,
		Admin:     f.admin.Address(),
		Queue:     queue,
		MaxResult: 100,
	}, l, rw, node, logger)
	require.NoError(t, err)
	node.RegisterCallback(programID, prog.ConsumeRandomness)

	done := make(chan error, 1)
	go func() { done <- node.Start() }()
	t.Cleanup(func() {
		node.Stop()
		<-done
	})

	srv := gameserver.NewServer(gameserver.NewArenaService(prog, bus, store, logger), logger)
	conn := testutil.DialInProcess(t, srv)
	f.client = arenav1.NewClient(conn)
	f.health = healthpb.NewHealthClient(conn)
	return f
}

func (f *fixture) call(method string, key wallet.Keypair, fields map[string]any) (*structpb.Struct, error) {
	f.t.Helper()
	req, err := structpb.NewStruct(fields)
	require.NoError(f.t, err)
	require.NoError(f.t, arenav1.Sign(method, req, key))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.client.Call(ctx, method, req)
}

func (f *fixture) setup() {
	f.t.Helper()
	_, err := f.call(arenav1.MethodCreateMint, f.admin, map[string]any{"name": "Gold", "symbol": "GOLD", "uri": "https://example.invalid/gold.json"})
	require.NoError(f.t, err)
	_, err = f.call(arenav1.MethodCreateFeed, f.feed, map[string]any{"player": f.alice.Address().String()})
	require.NoError(f.t, err)
	_, err = f.call(arenav1.MethodInitPlayer, f.alice, map[string]any{"feed": f.feed.Address().String()})
	require.NoError(f.t, err)
}

func (f *fixture) player(owner authority.Address) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"player": owner.String()})
	require.NoError(f.t, err)
	return f.client.Call(context.Background(), arenav1.MethodGetPlayer, req)
}

func buf(v uint64) [32]byte {
	var b [32]byte
	binary.LittleEndian.PutUint64(b[:8], v)
	return b
}

func recvNames(t *testing.T, stream arenav1.SubscribeClient, n int) []string {
	t.Helper()
	names := make([]string, 0, n)
	for len(names) < n {
		msg, err := stream.Recv()
		require.NoError(t, err)
		names = append(names, msg.GetFields()["name"].GetStringValue())
	}
	return names
}

func TestArenaService_AttackRoundOverGRPC(t *testing.T) {
	f := newFixture(t)
	f.setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := structpb.NewStruct(map[string]any{"from_seq": 1})
	require.NoError(t, err)
	stream, err := f.client.Subscribe(ctx, sub)
	require.NoError(t, err)

	f.src.Push(buf(50))
	resp, err := f.call(arenav1.MethodRequestRandomness, f.alice, map[string]any{"feed": f.feed.Address().String()})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.GetFields()["counter"].GetStringValue())
	assert.NotEmpty(t, resp.GetFields()["request_id"].GetStringValue())

	assert.Equal(t, []string{events.NameRandomnessRequested, events.NameResultUpdated}, recvNames(t, stream, 2))

	p, err := f.player(f.alice.Address())
	require.NoError(t, err)
	assert.Equal(t, float64(49), p.GetFields()["health"].GetNumberValue())
	assert.Equal(t, "1000000000", p.GetFields()["balance"].GetStringValue())

	healed, err := f.call(arenav1.MethodHeal, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(100), healed.GetFields()["health"].GetNumberValue())
	assert.Equal(t, "0", healed.GetFields()["balance"].GetStringValue())

	killed, err := f.call(arenav1.MethodKillEnemy, f.alice, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(90), killed.GetFields()["health"].GetNumberValue())

	req, err := structpb.NewStruct(map[string]any{"feed": f.feed.Address().String()})
	require.NoError(t, err)
	client, err := f.client.Call(ctx, arenav1.MethodGetClient, req)
	require.NoError(t, err)
	assert.Equal(t, "51", client.GetFields()["result"].GetStringValue())
	assert.Equal(t, "fulfilled", client.GetFields()["status"].GetStringValue())
}

func TestArenaService_SubscribeReplaysHistory(t *testing.T) {
	f := newFixture(t)
	f.setup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := structpb.NewStruct(map[string]any{"from_seq": 0})
	require.NoError(t, err)
	stream, err := f.client.Subscribe(ctx, req)
	require.NoError(t, err)

	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, events.NameClientCreated, msg.GetFields()["name"].GetStringValue())
	assert.Equal(t, float64(1), msg.GetFields()["seq"].GetNumberValue())
	assert.Equal(t, arena.OpInitPlayer, msg.GetFields()["op"].GetStringValue())
}

func TestArenaService_MapsDomainErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(arenav1.MethodCreateMint, f.alice, map[string]any{"name": "Gold", "symbol": "GOLD"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Equal(t, arenaerr.CodeAuthorityMismatch, arenaerr.CodeFromStatus(err))

	f.setup()

	_, err = f.call(arenav1.MethodCreateMint, f.admin, map[string]any{"name": "Gold", "symbol": "GOLD"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, arenaerr.CodeAlreadyInitialized, arenaerr.CodeFromStatus(err))

	_, err = f.player(wallet.FromSeed([32]byte{9}).Address())
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.call(arenav1.MethodInitPlayer, f.alice, map[string]any{"feed": "not base58!"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	unsigned, err := structpb.NewStruct(map[string]any{})
	require.NoError(t, err)
	_, err = f.client.Call(context.Background(), arenav1.MethodKillEnemy, unsigned)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Equal(t, arenaerr.CodeInvalidSignature, arenaerr.CodeFromStatus(err))
}

func TestArenaService_RejectsReplayedRequest(t *testing.T) {
	f := newFixture(t)
	f.setup()
	for i := 0; i < 3; i++ {
		_, err := f.call(arenav1.MethodKillEnemy, f.alice, nil)
		require.NoError(t, err)
	}

	heal := &structpb.Struct{}
	require.NoError(t, arenav1.Sign(arenav1.MethodHeal, heal, f.alice))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	healed, err := f.client.Call(ctx, arenav1.MethodHeal, heal)
	require.NoError(t, err)
	assert.Equal(t, "2000000000", healed.GetFields()["balance"].GetStringValue())

	for i := 0; i < 2; i++ {
		_, err = f.client.Call(ctx, arenav1.MethodHeal, heal)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
		assert.Equal(t, arenaerr.CodeNonceReused, arenaerr.CodeFromStatus(err))
	}

	p, err := f.player(f.alice.Address())
	require.NoError(t, err)
	assert.Equal(t, "2000000000", p.GetFields()["balance"].GetStringValue())
	assert.Equal(t, float64(100), p.GetFields()["health"].GetNumberValue())
}

func TestArenaService_Transfer(t *testing.T) {
	f := newFixture(t)
	f.setup()
	_, err := f.call(arenav1.MethodKillEnemy, f.alice, nil)
	require.NoError(t, err)

	bob := wallet.FromSeed([32]byte{8})
	resp, err := f.call(arenav1.MethodTransfer, f.alice, map[string]any{"to": bob.Address().String(), "amount": "400000000"})
	require.NoError(t, err)
	assert.Equal(t, "600000000", resp.GetFields()["balance"].GetStringValue())

	req, err := structpb.NewStruct(map[string]any{"owner": bob.Address().String()})
	require.NoError(t, err)
	got, err := f.client.Call(context.Background(), arenav1.MethodGetBalance, req)
	require.NoError(t, err)
	assert.Equal(t, "400000000", got.GetFields()["balance"].GetStringValue())

	_, err = f.call(arenav1.MethodTransfer, f.alice, map[string]any{"to": bob.Address().String(), "amount": "700000000"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Equal(t, arenaerr.CodeInsufficientFunds, arenaerr.CodeFromStatus(err))

	_, err = f.call(arenav1.MethodTransfer, f.alice, map[string]any{"to": bob.Address().String()})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestArenaService_Health(t *testing.T) {
	f := newFixture(t)
	resp, err := f.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: arenav1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
