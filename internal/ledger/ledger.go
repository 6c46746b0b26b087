// Package ledger is the serialized account store every arena operation runs
// against. Each operation executes atomically: its account writes and
// notifications are either all committed or all discarded.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
)

// Account is a ledger entry: an address, the program that owns its data, and
// the data itself.
type Account struct {
	Address authority.Address
	Owner   authority.Address
	Data    []byte
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	c := a
	c.Data = append([]byte(nil), a.Data...)
	return c
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore persists every committed operation to s.
func WithStore(s Store) Option { return func(l *Ledger) { l.store = s } }

// WithBus publishes committed notifications to b.
func WithBus(b *events.Bus) Option { return func(l *Ledger) { l.bus = b } }

// WithClock overrides the source of ledger time.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.clock = now } }

// WithLogger sets the logger for commit diagnostics.
func WithLogger(logger *zap.Logger) Option { return func(l *Ledger) { l.logger = logger } }

// Ledger holds all accounts and serializes operations against them.
type Ledger struct {
	mu       sync.Mutex
	accounts map[authority.Address]Account
	seq      uint64

	store  Store
	bus    *events.Bus
	clock  func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// New creates an empty ledger backed by a MemoryStore unless WithStore is given.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[authority.Address]Account),
		clock:    time.Now,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/cory-johannsen/goldarena/internal/ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	return l
}

// Restore replaces in-memory state with the store's snapshot.
//
// Precondition: no operation is executing.
func (l *Ledger) Restore(ctx context.Context) error {
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger snapshot: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[authority.Address]Account, len(snap.Accounts))
	for _, a := range snap.Accounts {
		l.accounts[a.Address] = a.Clone()
	}
	l.seq = snap.LastSeq
	l.logger.Info("ledger restored",
		zap.Int("accounts", len(snap.Accounts)),
		zap.Uint64("last_seq", snap.LastSeq),
	)
	return nil
}

// Execute runs fn as the atomic operation op.
//
// Precondition: fn must not call Execute or View on the same ledger.
// Postcondition: If fn or the store commit fails, no account changes, events
// or after-commit hooks take effect. Otherwise the writes are visible to later
// operations, events are published in sequence order before the next
// operation starts, and hooks run after the ledger lock is released.
func (l *Ledger) Execute(ctx context.Context, op string, fn func(*Tx) error) error {
	ctx, span := l.tracer.Start(ctx, "ledger.Execute", trace.WithAttributes(attribute.String("ledger.op", op)))
	defer span.End()

	batch, hooks, err := l.commit(ctx, op, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation aborted")
		return err
	}

	span.SetAttributes(
		attribute.Int("ledger.accounts_written", len(batch.Accounts)),
		attribute.Int("ledger.events", len(batch.Events)),
	)
	l.logger.Debug("operation committed",
		zap.String("op", op),
		zap.Int("accounts_written", len(batch.Accounts)),
		zap.Int("events", len(batch.Events)),
	)
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// commit runs fn under the ledger lock, persists its writes and publishes
// its events. Publishing happens before the lock is released so subscribers
// observe strictly increasing sequence numbers.
func (l *Ledger) commit(ctx context.Context, op string, fn func(*Tx) error) (Batch, []func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newTx(ctx, op, l.clock(), l.accounts)
	if err := fn(tx); err != nil {
		return Batch{}, nil, err
	}

	envs := make([]events.Envelope, len(tx.events))
	for i, ev := range tx.events {
		envs[i] = events.Envelope{Seq: l.seq + uint64(i) + 1, Op: op, Event: ev}
	}
	batch := Batch{Op: op, Accounts: tx.written(), Events: envs}
	if err := l.store.Commit(ctx, batch); err != nil {
		return Batch{}, nil, fmt.Errorf("committing %s: %w", op, err)
	}
	for _, a := range batch.Accounts {
		l.accounts[a.Address] = a
	}
	l.seq += uint64(len(envs))
	if l.bus != nil {
		l.bus.Publish(envs)
	}
	return batch, tx.hooks, nil
}

// View runs fn against a consistent snapshot. Writes made by fn are discarded.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(newTx(ctx, "view", l.clock(), l.accounts))
}

// Seq returns the sequence number of the last committed notification.
func (l *Ledger) Seq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}
