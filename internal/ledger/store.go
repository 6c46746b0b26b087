package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
)

// Snapshot is the persisted state a ledger is restored from.
type Snapshot struct {
	Accounts []Account
	LastSeq  uint64
}

// Batch is everything one committed operation changed.
type Batch struct {
	Op       string
	Accounts []Account
	Events   []events.Envelope
}

// Store persists committed operations.
type Store interface {
	// Load returns the full persisted state.
	Load(ctx context.Context) (Snapshot, error)
	// Commit persists b atomically. On error nothing in b may be visible to
	// a later Load.
	Commit(ctx context.Context, b Batch) error
}

// Notification is a persisted entry of the notification log.
type Notification struct {
	Seq    uint64
	Op     string
	Name   string
	Client authority.Address
	Unix   int64
	// Payload is the JSON rendering of the envelope.
	Payload []byte
}

// NotificationOf flattens env for persistence.
func NotificationOf(env events.Envelope) (Notification, error) {
	payload, err := env.Payload()
	if err != nil {
		return Notification{}, fmt.Errorf("encoding notification %d: %w", env.Seq, err)
	}
	return Notification{
		Seq:     env.Seq,
		Op:      env.Op,
		Name:    env.Event.Name(),
		Client:  env.Event.Client(),
		Unix:    env.Event.Unix(),
		Payload: payload,
	}, nil
}

// History is implemented by stores that can replay the notification log.
type History interface {
	// Since returns up to limit notifications with Seq > after in sequence
	// order. limit <= 0 means no limit.
	Since(ctx context.Context, after uint64, limit int) ([]Notification, error)
}

// MemoryStore keeps committed state in process. It is the default Store and
// the reference the durable stores are tested against.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[authority.Address]Account
	log      []events.Envelope
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[authority.Address]Account)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Accounts: make([]Account, 0, len(m.accounts))}
	for _, a := range m.accounts {
		snap.Accounts = append(snap.Accounts, a.Clone())
	}
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].Address.String() < snap.Accounts[j].Address.String()
	})
	if n := len(m.log); n > 0 {
		snap.LastSeq = m.log[n-1].Seq
	}
	return snap, nil
}

// Commit implements Store.
func (m *MemoryStore) Commit(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range b.Accounts {
		m.accounts[a.Address] = a.Clone()
	}
	m.log = append(m.log, b.Events...)
	return nil
}

// Since implements History.
func (m *MemoryStore) Since(_ context.Context, after uint64, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, env := range m.log {
		if env.Seq <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		n, err := NotificationOf(env)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
