package oracle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
	"github.com/cory-johannsen/goldarena/internal/oracle"
	"github.com/cory-johannsen/goldarena/internal/wallet"
)

var consumer = authority.Address{0xC0}

type harness struct {
	l         *ledger.Ledger
	operator  wallet.Keypair
	feedKey   wallet.Keypair
	requester wallet.Keypair
	queue     authority.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		l:         ledger.New(ledger.WithLogger(zaptest.NewLogger(t))),
		operator:  wallet.FromSeed([32]byte{1}),
		feedKey:   wallet.FromSeed([32]byte{2}),
		requester: wallet.FromSeed([32]byte{3}),
	}
	require.NoError(t, h.l.Execute(context.Background(), "create_queue", func(tx *ledger.Tx) error {
		var err error
		h.queue, err = oracle.CreateQueue(tx, "default", true, h.operator.Signer())
		return err
	}))
	require.NoError(t, h.l.Execute(context.Background(), "create_feed", func(tx *ledger.Tx) error {
		return oracle.CreateFeed(tx, oracle.FeedParams{
			Address:   h.feedKey.Address(),
			Authority: h.requester.Address(),
			Queue:     h.queue,
			Callback:  oracle.Callback{Program: consumer, Accounts: []authority.Address{{7}}},
		}, h.feedKey.Signer())
	}))
	return h
}

func (h *harness) request(t *testing.T, d oracle.Dispatcher) oracle.Dispatch {
	t.Helper()
	var disp oracle.Dispatch
	require.NoError(t, h.l.Execute(context.Background(), "request", func(tx *ledger.Tx) error {
		var err error
		disp, err = oracle.RequestRandomness(tx, oracle.Request{
			Feed:      h.feedKey.Address(),
			Queue:     h.queue,
			Payer:     h.requester.Address(),
			Authority: h.requester.Signer(),
		}, d)
		return err
	}))
	return disp
}

func (h *harness) feed(t *testing.T) oracle.Feed {
	t.Helper()
	var f oracle.Feed
	require.NoError(t, h.l.View(context.Background(), func(tx *ledger.Tx) error {
		var err error
		f, err = oracle.LoadFeed(tx, h.feedKey.Address())
		return err
	}))
	return f
}

type recorder struct {
	mu    sync.Mutex
	calls []oracle.Dispatch
}

func (r *recorder) Dispatch(d oracle.Dispatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
}

func TestEnsureQueue_Idempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.l.Execute(context.Background(), "ensure", func(tx *ledger.Tx) error {
		addr, err := oracle.EnsureQueue(tx, "default", true, h.operator.Signer())
		assert.Equal(t, h.queue, addr)
		return err
	}))
	err := h.l.Execute(context.Background(), "create", func(tx *ledger.Tx) error {
		_, err := oracle.CreateQueue(tx, "default", true, h.operator.Signer())
		return err
	})
	assert.ErrorIs(t, err, arenaerr.ErrAlreadyInitialized)
}

func TestCreateFeed_PermissionedQueueNeedsQueueSigner(t *testing.T) {
	h := newHarness(t)
	var private authority.Address
	require.NoError(t, h.l.Execute(context.Background(), "queue", func(tx *ledger.Tx) error {
		var err error
		private, err = oracle.CreateQueue(tx, "private", false, h.operator.Signer())
		return err
	}))
	other := wallet.FromSeed([32]byte{9})
	params := oracle.FeedParams{
		Address:   other.Address(),
		Authority: h.requester.Address(),
		Queue:     private,
		Callback:  oracle.Callback{Program: consumer},
	}
	err := h.l.Execute(context.Background(), "feed", func(tx *ledger.Tx) error {
		return oracle.CreateFeed(tx, params, other.Signer())
	})
	assert.Equal(t, arenaerr.CodeInvalidOracleAccount, arenaerr.CodeOf(err))

	params.QueueSigner = h.operator.Signer()
	assert.NoError(t, h.l.Execute(context.Background(), "feed", func(tx *ledger.Tx) error {
		return oracle.CreateFeed(tx, params, other.Signer())
	}))
}

func TestRequestRandomness_DispatchesAfterCommit(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	disp := h.request(t, rec)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, disp, rec.calls[0])
	assert.Equal(t, uint64(1), disp.Counter)
	assert.NotEmpty(t, disp.RequestID)

	f := h.feed(t)
	assert.Equal(t, oracle.FeedPending, f.Status)
	assert.Equal(t, disp.RequestID, f.RequestID)
	assert.Equal(t, h.requester.Address(), f.Payer)
}

func TestRequestRandomness_WrongAuthorityOrQueue(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	err := h.l.Execute(context.Background(), "request", func(tx *ledger.Tx) error {
		_, err := oracle.RequestRandomness(tx, oracle.Request{
			Feed: h.feedKey.Address(), Queue: h.queue, Authority: h.operator.Signer(),
		}, rec)
		return err
	})
	assert.ErrorIs(t, err, arenaerr.ErrAuthorization)

	err = h.l.Execute(context.Background(), "request", func(tx *ledger.Tx) error {
		_, err := oracle.RequestRandomness(tx, oracle.Request{
			Feed: h.feedKey.Address(), Queue: authority.Address{1}, Authority: h.requester.Signer(),
		}, rec)
		return err
	})
	assert.Equal(t, arenaerr.CodeInvalidOracleAccount, arenaerr.CodeOf(err))
	assert.Empty(t, rec.calls)
	assert.Equal(t, oracle.FeedIdle, h.feed(t).Status)
}

func TestFulfill_RejectsSupersededRequest(t *testing.T) {
	h := newHarness(t)
	first := h.request(t, nil)
	second := h.request(t, nil)
	assert.Equal(t, uint64(2), second.Counter)

	err := h.l.Execute(context.Background(), "fulfill", func(tx *ledger.Tx) error {
		_, err := oracle.Fulfill(tx, first, [32]byte{1})
		return err
	})
	assert.Equal(t, arenaerr.CodeInvalidOracleAccount, arenaerr.CodeOf(err))

	require.NoError(t, h.l.Execute(context.Background(), "fulfill", func(tx *ledger.Tx) error {
		_, err := oracle.Fulfill(tx, second, [32]byte{1})
		return err
	}))
	f := h.feed(t)
	assert.Equal(t, oracle.FeedFulfilled, f.Status)
	assert.Equal(t, [32]byte{1}, f.Result)
}

func TestNode_ProcessDeliversWithRedeliveries(t *testing.T) {
	h := newHarness(t)
	src := oracle.NewScriptedSource([32]byte{250})
	node := oracle.NewNode(h.l, src, oracle.NodeConfig{Redeliveries: 2}, zaptest.NewLogger(t))

	var results [][32]byte
	node.RegisterCallback(consumer, func(ctx context.Context, feed authority.Address, accounts []authority.Address) error {
		assert.Equal(t, []authority.Address{{7}}, accounts)
		return h.l.View(ctx, func(tx *ledger.Tx) error {
			f, err := oracle.LoadFeed(tx, feed)
			results = append(results, f.Result)
			return err
		})
	})

	disp := h.request(t, nil)
	require.NoError(t, node.Process(context.Background(), disp))
	assert.Equal(t, [][32]byte{{250}, {250}, {250}}, results)
}

func TestNode_ProcessJoinsCallbackErrors(t *testing.T) {
	h := newHarness(t)
	node := oracle.NewNode(h.l, oracle.NewScriptedSource([32]byte{1}), oracle.NodeConfig{Redeliveries: 1}, zaptest.NewLogger(t))
	boom := errors.New("boom")
	node.RegisterCallback(consumer, func(context.Context, authority.Address, []authority.Address) error { return boom })

	err := node.Process(context.Background(), h.request(t, nil))
	assert.ErrorIs(t, err, boom)
}

func TestNode_StartServesDispatches(t *testing.T) {
	h := newHarness(t)
	src, err := oracle.NewSource(oracle.SourceHMAC, "test-seed")
	require.NoError(t, err)
	node := oracle.NewNode(h.l, src, oracle.NodeConfig{Workers: 2}, zaptest.NewLogger(t))

	delivered := make(chan authority.Address, 1)
	node.RegisterCallback(consumer, func(_ context.Context, feed authority.Address, _ []authority.Address) error {
		delivered <- feed
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- node.Start() }()
	h.request(t, node)

	select {
	case feed := <-delivered:
		assert.Equal(t, h.feedKey.Address(), feed)
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not delivered")
	}
	node.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, oracle.FeedFulfilled, h.feed(t).Status)
}

func TestHMACSource_Deterministic(t *testing.T) {
	a, err := oracle.NewHMACSource("seed")
	require.NoError(t, err)
	b, err := oracle.NewHMACSource("seed")
	require.NoError(t, err)
	d := oracle.Dispatch{Feed: authority.Address{1}, Counter: 3}

	x, err := a.Randomness(d)
	require.NoError(t, err)
	y, err := b.Randomness(d)
	require.NoError(t, err)
	assert.Equal(t, x, y)

	d.Counter++
	z, err := a.Randomness(d)
	require.NoError(t, err)
	assert.NotEqual(t, x, z)

	_, err = oracle.NewSource("dice", "")
	assert.Error(t, err)
	_, err = oracle.NewHMACSource("")
	assert.Error(t, err)
}
