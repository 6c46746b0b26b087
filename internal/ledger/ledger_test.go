package ledger_test

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

var (
	program = authority.Address{0xAA}
	other   = authority.Address{0xBB}
	addrA   = authority.Address{1}
	addrB   = authority.Address{2}
)

type counter struct {
	N     uint64
	Label string
}

type counterLayout counter

func (c *counter) MarshalBinary() ([]byte, error) {
	return ledger.Encode("Counter", (*counterLayout)(c))
}

func (c *counter) UnmarshalBinary(data []byte) error {
	return ledger.Decode("Counter", data, (*counterLayout)(c))
}

type failingStore struct {
	*ledger.MemoryStore
	fail bool
}

func (f *failingStore) Commit(ctx context.Context, b ledger.Batch) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryStore.Commit(ctx, b)
}

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

func newLedger(t *testing.T, opts ...ledger.Option) *ledger.Ledger {
	t.Helper()
	base := []ledger.Option{ledger.WithLogger(zaptest.NewLogger(t)), ledger.WithClock(fixedClock)}
	return ledger.New(append(base, opts...)...)
}

func read(t *testing.T, l *ledger.Ledger, addr authority.Address) counter {
	t.Helper()
	var c counter
	require.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		return ledger.Load(tx, addr, program, &c)
	}))
	return c
}

func TestExecute_CommitsWrites(t *testing.T) {
	l := newLedger(t)
	err := l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		return ledger.Init(tx, addrA, program, &counter{N: 3, Label: "a"})
	})
	require.NoError(t, err)
	assert.Equal(t, counter{N: 3, Label: "a"}, read(t, l, addrA))
}

func TestExecute_ErrorRollsBackEverything(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		return ledger.Init(tx, addrA, program, &counter{N: 1})
	}))

	hookRan := false
	boom := errors.New("boom")
	err := l.Execute(context.Background(), "mutate", func(tx *ledger.Tx) error {
		require.NoError(t, ledger.Save(tx, addrA, program, &counter{N: 99}))
		require.NoError(t, ledger.Init(tx, addrB, program, &counter{N: 5}))
		tx.Emit(events.ClientCreated{ClientID: addrA})
		tx.AfterCommit(func() { hookRan = true })
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, uint64(1), read(t, l, addrA).N)
	assert.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		assert.False(t, tx.Exists(addrB))
		return nil
	}))
	assert.False(t, hookRan)
	assert.Equal(t, uint64(0), l.Seq())
}

func TestExecute_ReadsSeeOwnWrites(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		require.NoError(t, ledger.Init(tx, addrA, program, &counter{N: 1}))
		var c counter
		require.NoError(t, ledger.Load(tx, addrA, program, &c))
		c.N++
		return ledger.Save(tx, addrA, program, &c)
	}))
	assert.Equal(t, uint64(2), read(t, l, addrA).N)
}

func TestExecute_EventsPublishedOnlyOnCommit(t *testing.T) {
	bus := events.NewBus(zaptest.NewLogger(t))
	sub := bus.Subscribe(8, nil)
	defer sub.Close()
	store := ledger.NewMemoryStore()
	l := newLedger(t, ledger.WithBus(bus), ledger.WithStore(store))

	_ = l.Execute(context.Background(), "aborted", func(tx *ledger.Tx) error {
		tx.Emit(events.ClientCreated{ClientID: addrA})
		return errors.New("nope")
	})
	require.NoError(t, l.Execute(context.Background(), "ok", func(tx *ledger.Tx) error {
		tx.Emit(events.ClientCreated{ClientID: addrA, MaxResult: 10, Timestamp: tx.Unix()})
		tx.Emit(events.RandomnessRequested{ClientID: addrA, MaxResult: 10, Timestamp: tx.Unix()})
		return nil
	}))

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "ok", first.Op)
	assert.Equal(t, events.NameClientCreated, first.Event.Name())
	assert.Equal(t, int64(1700000000), first.Event.Unix())
	assert.Equal(t, uint64(2), second.Seq)
	assert.Len(t, sub.C(), 0)
	assert.Equal(t, uint64(2), l.Seq())

	logged, err := store.Since(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, logged, 2)
	assert.Equal(t, events.NameRandomnessRequested, logged[1].Name)
	assert.Equal(t, addrA, logged[1].Client)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(logged[0].Payload, &payload))
	assert.Equal(t, float64(10), payload["max_result"])
	assert.Equal(t, "ok", payload["op"])

	tail, err := store.Since(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Seq)
}

func TestExecute_StoreFailureAborts(t *testing.T) {
	store := &failingStore{MemoryStore: ledger.NewMemoryStore(), fail: true}
	l := newLedger(t, ledger.WithStore(store))
	hookRan := false
	err := l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return ledger.Init(tx, addrA, program, &counter{N: 1})
	})
	require.Error(t, err)
	assert.False(t, hookRan)
	assert.NoError(t, l.View(context.Background(), func(tx *ledger.Tx) error {
		assert.False(t, tx.Exists(addrA))
		return nil
	}))
}

func TestExecute_HooksRunAfterUnlock(t *testing.T) {
	l := newLedger(t)
	var seen uint64
	require.NoError(t, l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		tx.AfterCommit(func() {
			// Re-entering the ledger from a hook must not deadlock.
			seen = read(t, l, addrA).N
		})
		return ledger.Init(tx, addrA, program, &counter{N: 7})
	}))
	assert.Equal(t, uint64(7), seen)
}

func TestInit_RejectsExistingAccount(t *testing.T) {
	l := newLedger(t)
	op := func(tx *ledger.Tx) error { return ledger.Init(tx, addrA, program, &counter{}) }
	require.NoError(t, l.Execute(context.Background(), "init", op))
	err := l.Execute(context.Background(), "init", op)
	assert.ErrorIs(t, err, arenaerr.ErrAlreadyInitialized)
}

func TestLoad_ChecksOwnerAndExistence(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		return ledger.Init(tx, addrA, other, &counter{})
	}))
	err := l.View(context.Background(), func(tx *ledger.Tx) error {
		var c counter
		return ledger.Load(tx, addrA, program, &c)
	})
	assert.Equal(t, arenaerr.CodeOwnerMismatch, arenaerr.CodeOf(err))

	err = l.View(context.Background(), func(tx *ledger.Tx) error {
		var c counter
		return ledger.Load(tx, addrB, program, &c)
	})
	assert.ErrorIs(t, err, arenaerr.ErrNotFound)
}

func TestRestore_ReplaysStore(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := newLedger(t, ledger.WithStore(store))
	require.NoError(t, l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
		tx.Emit(events.ClientCreated{ClientID: addrA})
		return ledger.Init(tx, addrA, program, &counter{N: 42})
	}))

	restored := newLedger(t, ledger.WithStore(store))
	require.NoError(t, restored.Restore(context.Background()))
	assert.Equal(t, uint64(42), read(t, restored, addrA).N)
	assert.Equal(t, uint64(1), restored.Seq())
}

func TestExecute_ConcurrentSubscribersSeeIncreasingSeq(t *testing.T) {
	const (
		workers = 16
		perWork = 25
	)
	bus := events.NewBus(zaptest.NewLogger(t))
	sub := bus.Subscribe(workers*perWork, nil)
	defer sub.Close()
	l := newLedger(t, ledger.WithBus(bus))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				assert.NoError(t, l.Execute(context.Background(), "request", func(tx *ledger.Tx) error {
					tx.Emit(events.RandomnessRequested{ClientID: addrA, MaxResult: 10})
					return nil
				}))
			}
		}()
	}
	wg.Wait()

	require.Len(t, sub.C(), workers*perWork)
	var last uint64
	for i := 0; i < workers*perWork; i++ {
		env := <-sub.C()
		require.Greater(t, env.Seq, last, "envelope %d arrived out of order", i)
		last = env.Seq
	}
	assert.Equal(t, uint64(workers*perWork), last)
	assert.Zero(t, sub.Dropped())
}

func TestExecute_PanicReleasesLock(t *testing.T) {
	l := newLedger(t)
	assert.Panics(t, func() {
		_ = l.Execute(context.Background(), "explode", func(tx *ledger.Tx) error {
			require.NoError(t, ledger.Init(tx, addrA, program, &counter{N: 1}))
			panic("boom")
		})
	})

	done := make(chan error, 1)
	go func() {
		done <- l.Execute(context.Background(), "init", func(tx *ledger.Tx) error {
			return ledger.Init(tx, addrA, program, &counter{N: 2})
		})
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ledger still locked after a panicking operation")
	}
	assert.Equal(t, uint64(2), read(t, l, addrA).N)
}

func TestDiscriminator_IsAccountSighash(t *testing.T) {
	sum := sha256.Sum256([]byte("account:PlayerData"))
	d := ledger.Discriminator("PlayerData")
	assert.Equal(t, sum[:ledger.DiscriminatorSize], d[:])
}

func TestEncode_BorshLayout(t *testing.T) {
	data, err := (&counter{N: 258, Label: "hi"}).MarshalBinary()
	require.NoError(t, err)

	d := ledger.Discriminator("Counter")
	want := append([]byte(nil), d[:]...)
	want = append(want, 2, 1, 0, 0, 0, 0, 0, 0)
	want = append(want, 2, 0, 0, 0, 'h', 'i')
	assert.Equal(t, want, data)
}

func TestDecode_RejectsWrongDiscriminatorAndTruncation(t *testing.T) {
	data, err := (&counter{N: 1, Label: "x"}).MarshalBinary()
	require.NoError(t, err)

	var c counter
	err = ledger.Decode("Other", data, (*counterLayout)(&c))
	assert.Equal(t, arenaerr.CodeInvalidAccountData, arenaerr.CodeOf(err))

	err = c.UnmarshalBinary(data[:ledger.DiscriminatorSize-1])
	assert.Equal(t, arenaerr.CodeInvalidAccountData, arenaerr.CodeOf(err))

	err = c.UnmarshalBinary(data[:len(data)-1])
	assert.Equal(t, arenaerr.CodeInvalidAccountData, arenaerr.CodeOf(err))
	assert.ErrorIs(t, err, arenaerr.ErrValidation)

	err = c.UnmarshalBinary(append(data, 0))
	assert.Equal(t, arenaerr.CodeInvalidAccountData, arenaerr.CodeOf(err))
}
