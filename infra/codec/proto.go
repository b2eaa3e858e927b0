package codec

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoSerializer writes events as a google.protobuf.Struct so consumers
// need no generated types.
type ProtoSerializer struct{}

func (ProtoSerializer) Name() string        { return "proto" }
func (ProtoSerializer) ContentType() string { return "application/x-protobuf" }

func (ProtoSerializer) Encode(e *Event) ([]byte, error) {
	s, err := ToStruct(e)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func (ProtoSerializer) Decode(b []byte) (*Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%v", err)
	}
	return FromStruct(&s)
}

// ToStruct converts e to a Struct. The RPC layer uses it too.
func ToStruct(e *Event) (*structpb.Struct, error) {
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"id":   e.ID.String(),
		"seq":  strconv.FormatUint(e.Seq, 10),
		"type": e.Type,
		"time": strconv.FormatInt(e.Time, 10),
		"data": data,
	})
}

func FromStruct(s *structpb.Struct) (*Event, error) {
	f := s.GetFields()
	id, err := uuid.Parse(f["id"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "id: %v", err)
	}
	seq, err := strconv.ParseUint(f["seq"].GetStringValue(), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "seq: %v", err)
	}
	ts, err := strconv.ParseInt(f["time"].GetStringValue(), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "time: %v", err)
	}
	e := &Event{ID: id, Seq: seq, Type: f["type"].GetStringValue(), Time: ts}
	if d := f["data"].GetStructValue(); d != nil && len(d.GetFields()) > 0 {
		e.Data = make(map[string]string, len(d.GetFields()))
		for k, v := range d.GetFields() {
			e.Data[k] = v.GetStringValue()
		}
	}
	return e, nil
}
