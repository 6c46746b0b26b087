// Package oracle simulates the external randomness oracle: queue and feed
// accounts, the signed request contract, and a node that fulfils requests
// and invokes the consumer's callback.
package oracle

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cory-johannsen/goldarena/internal/arenaerr"
	"github.com/cory-johannsen/goldarena/internal/authority"
	"github.com/cory-johannsen/goldarena/internal/ledger"
)

// ProgramID owns queue and feed accounts.
var ProgramID = authority.MustParse("SW1TCH7qEPTdLsDHRgPuMQjbQxKdH2aBStViMFnt64f")

// MaxCallbackAccounts bounds the accounts a feed callback may reference.
const MaxCallbackAccounts = 8

// FeedStatus is the request lifecycle of a feed.
type FeedStatus uint8

const (
	FeedIdle FeedStatus = iota + 1
	FeedPending
	FeedFulfilled
)

func (s FeedStatus) String() string {
	switch s {
	case FeedIdle:
		return "idle"
	case FeedPending:
		return "pending"
	case FeedFulfilled:
		return "fulfilled"
	default:
		return fmt.Sprintf("feed_status(%d)", uint8(s))
	}
}

// Queue groups feeds served by the same oracle node.
type Queue struct {
	Authority authority.Address
	Name      string
	// Unpermissioned queues accept feeds without the queue authority's signature.
	Unpermissioned bool
}

type queueLayout Queue

func (q *Queue) MarshalBinary() ([]byte, error) {
	return ledger.Encode("OracleQueue", (*queueLayout)(q))
}

func (q *Queue) UnmarshalBinary(data []byte) error {
	return ledger.Decode("OracleQueue", data, (*queueLayout)(q))
}

// Callback is the instruction a node invokes after fulfilling a feed.
type Callback struct {
	Program  authority.Address
	Accounts []authority.Address
}

// Feed is a randomness feed bound to one consumer.
type Feed struct {
	// Authority is the only identity that may request randomness.
	Authority authority.Address
	Queue     authority.Address
	Callback  Callback
	Result    [32]byte
	Counter   uint64
	Status    FeedStatus
	RequestID string
	Payer     authority.Address
}

type feedLayout Feed

func (f *Feed) MarshalBinary() ([]byte, error) {
	if len(f.Callback.Accounts) > MaxCallbackAccounts {
		return nil, arenaerr.Validation(arenaerr.CodeInvalidArgument, "callback references %d accounts, max %d", len(f.Callback.Accounts), MaxCallbackAccounts)
	}
	return ledger.Encode("OracleFeed", (*feedLayout)(f))
}

func (f *Feed) UnmarshalBinary(data []byte) error {
	if err := ledger.Decode("OracleFeed", data, (*feedLayout)(f)); err != nil {
		return err
	}
	if n := len(f.Callback.Accounts); n > MaxCallbackAccounts {
		return arenaerr.Validation(arenaerr.CodeInvalidAccountData, "feed callback has %d accounts", n)
	}
	return nil
}

// QueueAddress returns the queue account address for name.
func QueueAddress(name string) (authority.Address, error) {
	addr, _, err := authority.FindProgramAddress([][]byte{[]byte("queue"), []byte(name)}, ProgramID)
	return addr, err
}

// CreateQueue creates the named queue owned by signer's key.
//
// Postcondition: Returns arenaerr.ErrAlreadyInitialized if the queue exists.
func CreateQueue(tx *ledger.Tx, name string, unpermissioned bool, signer authority.Signer) (authority.Address, error) {
	addr, err := QueueAddress(name)
	if err != nil {
		return authority.Zero, err
	}
	if err := signer.Authorizes(signer.Key()); err != nil {
		return authority.Zero, err
	}
	q := &Queue{Authority: signer.Key(), Name: name, Unpermissioned: unpermissioned}
	if err := ledger.Init(tx, addr, ProgramID, q); err != nil {
		return authority.Zero, err
	}
	return addr, nil
}

// EnsureQueue returns the named queue, creating it if it does not exist.
func EnsureQueue(tx *ledger.Tx, name string, unpermissioned bool, signer authority.Signer) (authority.Address, error) {
	addr, err := QueueAddress(name)
	if err != nil {
		return authority.Zero, err
	}
	if tx.Exists(addr) {
		return addr, nil
	}
	return CreateQueue(tx, name, unpermissioned, signer)
}

// LoadQueue returns the queue at addr.
func LoadQueue(tx *ledger.Tx, addr authority.Address) (Queue, error) {
	var q Queue
	err := ledger.Load(tx, addr, ProgramID, &q)
	return q, err
}

// FeedParams describes a new feed.
type FeedParams struct {
	Address   authority.Address
	Authority authority.Address
	Queue     authority.Address
	Callback  Callback
	// QueueSigner must authorize the queue authority when the queue is
	// permissioned. It is ignored otherwise.
	QueueSigner authority.Signer
}

// CreateFeed creates a feed account.
//
// Precondition: signer must authorize p.Address.
// Postcondition: Returns an INVALID_ORACLE_ACCOUNT error if the queue is
// permissioned and QueueSigner does not authorize its authority.
func CreateFeed(tx *ledger.Tx, p FeedParams, signer authority.Signer) error {
	if err := signer.Authorizes(p.Address); err != nil {
		return err
	}
	q, err := LoadQueue(tx, p.Queue)
	if err != nil {
		return fmt.Errorf("loading queue: %w", err)
	}
	if !q.Unpermissioned {
		if p.QueueSigner == nil {
			return arenaerr.Authorization(arenaerr.CodeInvalidOracleAccount, "queue %s is permissioned", q.Name)
		}
		if err := p.QueueSigner.Authorizes(q.Authority); err != nil {
			return arenaerr.Wrap(arenaerr.KindAuthorization, arenaerr.CodeInvalidOracleAccount, err, "queue %s is permissioned", q.Name)
		}
	}
	if p.Callback.Program.IsZero() {
		return arenaerr.Validation(arenaerr.CodeInvalidArgument, "feed callback program is required")
	}
	return ledger.Init(tx, p.Address, ProgramID, &Feed{
		Authority: p.Authority,
		Queue:     p.Queue,
		Callback:  p.Callback,
		Status:    FeedIdle,
	})
}

// LoadFeed returns the feed at addr.
//
// Postcondition: Returns an INVALID_ORACLE_ACCOUNT error if addr is not a feed.
func LoadFeed(tx *ledger.Tx, addr authority.Address) (Feed, error) {
	var f Feed
	if err := ledger.Load(tx, addr, ProgramID, &f); err != nil {
		if arenaerr.KindOf(err) == arenaerr.KindNotFound {
			return Feed{}, err
		}
		return Feed{}, arenaerr.Wrap(arenaerr.KindValidation, arenaerr.CodeInvalidOracleAccount, err, "%s is not an oracle feed", addr)
	}
	return f, nil
}

// Dispatch is a committed request waiting for fulfilment.
type Dispatch struct {
	Feed      authority.Address
	RequestID string
	Counter   uint64
}

// Dispatcher receives committed requests.
type Dispatcher interface {
	Dispatch(d Dispatch)
}

// Request is an outbound randomness request.
type Request struct {
	Feed  authority.Address
	Queue authority.Address
	Payer authority.Address
	// Authority must authorize the feed's recorded authority.
	Authority authority.Signer
}

// RequestRandomness marks the feed pending under a fresh request id. If d is
// non-nil it receives the request once the operation commits.
//
// Postcondition: On success the feed's Counter is incremented and Status is
// FeedPending.
func RequestRandomness(tx *ledger.Tx, req Request, d Dispatcher) (Dispatch, error) {
	feed, err := LoadFeed(tx, req.Feed)
	if err != nil {
		return Dispatch{}, err
	}
	if err := req.Authority.Authorizes(feed.Authority); err != nil {
		return Dispatch{}, err
	}
	if feed.Queue != req.Queue {
		return Dispatch{}, arenaerr.Validation(arenaerr.CodeInvalidOracleAccount, "feed %s is on queue %s, not %s", req.Feed, feed.Queue, req.Queue)
	}
	if _, err := LoadQueue(tx, req.Queue); err != nil {
		return Dispatch{}, fmt.Errorf("loading queue: %w", err)
	}
	feed.Counter++
	feed.Status = FeedPending
	feed.RequestID = uuid.NewString()
	feed.Payer = req.Payer
	if err := ledger.Save(tx, req.Feed, ProgramID, &feed); err != nil {
		return Dispatch{}, err
	}
	disp := Dispatch{Feed: req.Feed, RequestID: feed.RequestID, Counter: feed.Counter}
	if d != nil {
		tx.AfterCommit(func() { d.Dispatch(disp) })
	}
	return disp, nil
}

// Fulfill writes result to the feed for the pending request d.
//
// Postcondition: Returns a StateError with INVALID_ORACLE_ACCOUNT if d is not
// the feed's current pending request.
func Fulfill(tx *ledger.Tx, d Dispatch, result [32]byte) (Feed, error) {
	feed, err := LoadFeed(tx, d.Feed)
	if err != nil {
		return Feed{}, err
	}
	if feed.Status != FeedPending || feed.RequestID != d.RequestID {
		return Feed{}, arenaerr.State(arenaerr.CodeInvalidOracleAccount,
			"request %s is not pending on feed %s (status %s, current %s)", d.RequestID, d.Feed, feed.Status, feed.RequestID)
	}
	feed.Result = result
	feed.Status = FeedFulfilled
	if err := ledger.Save(tx, d.Feed, ProgramID, &feed); err != nil {
		return Feed{}, err
	}
	return feed, nil
}
