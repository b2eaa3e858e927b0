// Package codec encodes engine events for the journal, the outbox and
// Kafka. Event data values are strings so 128-bit volumes and native
// amounts survive every encoding exactly.
package codec

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrUnknownEncoding = errors.New("codec: unknown encoding")
	ErrMalformed       = errors.New("codec: malformed event")
)

// Event types.
const (
	TypeOrderPlaced    = "order_placed"
	TypeOrderCancelled = "order_cancelled"
	TypeOrderExpired   = "order_expired"
	TypeFill           = "fill"
	TypePosition       = "position"
	TypeAccountCreated = "account_created"
	TypeAccountResized = "account_resized"
	TypeAccountClosed  = "account_closed"
	TypeDelegateSet    = "delegate_set"
	TypeFeesExpired    = "fees_expired"
	TypeDeposit        = "deposit"
	TypeSettle         = "settle"
)

type Event struct {
	ID   uuid.UUID         `json:"id"`
	Seq  uint64            `json:"seq,string"`
	Type string            `json:"type"`
	Time int64             `json:"time,string"`
	Data map[string]string `json:"data,omitempty"`
}

func NewEvent(seq uint64, typ string, now int64, data map[string]string) *Event {
	return &Event{ID: uuid.New(), Seq: seq, Type: typ, Time: now, Data: data}
}

type Serializer interface {
	Name() string
	ContentType() string
	Encode(*Event) ([]byte, error)
	Decode([]byte) (*Event, error)
}

// New returns the serializer registered under name: "json" or "proto".
func New(name string) (Serializer, error) {
	switch name {
	case "json":
		return JSONSerializer{}, nil
	case "proto", "protobuf":
		return ProtoSerializer{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownEncoding, "%q", name)
	}
}
