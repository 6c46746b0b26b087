package ledger

import (
	"context"
	"time"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/events"
)

// Tx is the view of the ledger inside one operation. Reads see the
// operation's own writes. A Tx must not be retained after its operation ends.
type Tx struct {
	ctx    context.Context
	op     string
	now    time.Time
	base   map[authority.Address]Account
	writes map[authority.Address]Account
	order  []authority.Address
	events []events.Event
	hooks  []func()
}

func newTx(ctx context.Context, op string, now time.Time, base map[authority.Address]Account) *Tx {
	return &Tx{
		ctx:    ctx,
		op:     op,
		now:    now,
		base:   base,
		writes: make(map[authority.Address]Account),
	}
}

// Context returns the context the operation was started with.
func (tx *Tx) Context() context.Context { return tx.ctx }

// Op returns the operation name.
func (tx *Tx) Op() string { return tx.op }

// Now returns the ledger time fixed at the start of the operation.
func (tx *Tx) Now() time.Time { return tx.now }

// Unix returns Now in unix seconds.
func (tx *Tx) Unix() int64 { return tx.now.Unix() }

// Get returns a copy of the account at addr.
func (tx *Tx) Get(addr authority.Address) (Account, bool) {
	if a, ok := tx.writes[addr]; ok {
		return a.Clone(), true
	}
	a, ok := tx.base[addr]
	if !ok {
		return Account{}, false
	}
	return a.Clone(), true
}

// Exists reports whether an account is present at addr.
func (tx *Tx) Exists(addr authority.Address) bool {
	_, ok := tx.Get(addr)
	return ok
}

// Create adds a new account.
//
// Postcondition: Returns arenaerr.ErrAlreadyInitialized if the address is taken.
func (tx *Tx) Create(a Account) error {
	if tx.Exists(a.Address) {
		return arenaerr.State(arenaerr.CodeAlreadyInitialized, "account %s already initialized", a.Address)
	}
	tx.Put(a)
	return nil
}

// Put stores a, replacing any existing account at the same address.
func (tx *Tx) Put(a Account) {
	if _, ok := tx.writes[a.Address]; !ok {
		tx.order = append(tx.order, a.Address)
	}
	tx.writes[a.Address] = a.Clone()
}

// Emit queues ev for publication when the operation commits.
func (tx *Tx) Emit(ev events.Event) {
	tx.events = append(tx.events, ev)
}

// AfterCommit registers fn to run once the operation has committed. Hooks are
// dropped if the operation aborts.
func (tx *Tx) AfterCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}

func (tx *Tx) written() []Account {
	out := make([]Account, 0, len(tx.order))
	for _, addr := range tx.order {
		out = append(out, tx.writes[addr])
	}
	return out
}
