// Package events defines the write-only notifications the arena emits for
// external indexers and the bus that fans them out.
package events

import (
	"encoding/base64"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"

	"github.com/cory-johannsen/goldarena/internal/authority"
)

// Notification names.
const (
	NameClientCreated       = "ClientCreated"
	NameRandomnessRequested = "RandomnessRequested"
	NameResultUpdated       = "ResultUpdated"
)

// Event is a notification emitted by a committed operation.
type Event interface {
	// Name is the notification name, e.g. "ResultUpdated".
	Name() string
	// Client is the randomness client record the notification concerns.
	Client() authority.Address
	// Unix is the ledger time of emission in unix seconds.
	Unix() int64
	// Fields returns the payload as JSON-compatible values.
	Fields() map[string]any
}

// ClientCreated is emitted once when a randomness client record is created.
type ClientCreated struct {
	ClientID  authority.Address
	MaxResult uint64
	Timestamp int64
}

func (e ClientCreated) Name() string              { return NameClientCreated }
func (e ClientCreated) Client() authority.Address { return e.ClientID }
func (e ClientCreated) Unix() int64               { return e.Timestamp }
func (e ClientCreated) Fields() map[string]any {
	return map[string]any{
		"client_id":  e.ClientID.String(),
		"max_result": e.MaxResult,
		"timestamp":  e.Timestamp,
	}
}

// RandomnessRequested is emitted for every outbound oracle request.
type RandomnessRequested struct {
	ClientID  authority.Address
	MaxResult uint64
	Timestamp int64
}

func (e RandomnessRequested) Name() string              { return NameRandomnessRequested }
func (e RandomnessRequested) Client() authority.Address { return e.ClientID }
func (e RandomnessRequested) Unix() int64               { return e.Timestamp }
func (e RandomnessRequested) Fields() map[string]any {
	return map[string]any{
		"client_id":  e.ClientID.String(),
		"max_result": e.MaxResult,
		"timestamp":  e.Timestamp,
	}
}

// ResultUpdated is emitted when a delivered buffer changes the stored result.
type ResultUpdated struct {
	ClientID     authority.Address
	MaxResult    uint64
	Result       uint128.Uint128
	ResultBuffer [32]byte
	Timestamp    int64
}

func (e ResultUpdated) Name() string              { return NameResultUpdated }
func (e ResultUpdated) Client() authority.Address { return e.ClientID }
func (e ResultUpdated) Unix() int64               { return e.Timestamp }
func (e ResultUpdated) Fields() map[string]any {
	return map[string]any{
		"client_id":     e.ClientID.String(),
		"max_result":    e.MaxResult,
		"result":        e.Result.String(),
		"result_buffer": base64.StdEncoding.EncodeToString(e.ResultBuffer[:]),
		"timestamp":     e.Timestamp,
	}
}

// Envelope is a committed event with its position in the notification log.
type Envelope struct {
	// Seq is the 1-based, gap-free position in the notification log.
	Seq uint64
	// Op is the name of the operation that emitted the event.
	Op    string
	Event Event
}

// Struct renders the envelope as a protobuf Struct, the shape used on the
// wire and in the persisted log.
func (e Envelope) Struct() (*structpb.Struct, error) {
	fields := e.Event.Fields()
	fields["name"] = e.Event.Name()
	fields["seq"] = e.Seq
	fields["op"] = e.Op
	return structpb.NewStruct(fields)
}

// Payload returns the JSON encoding of Struct.
func (e Envelope) Payload() ([]byte, error) {
	s, err := e.Struct()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}
