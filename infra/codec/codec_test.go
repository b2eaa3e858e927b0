package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestSerializers(t *testing.T) {
	e := NewEvent(1<<60+3, TypeFill, 1_760_000_000_123_456_789, map[string]string{
		"maker_volume": "340282366920938463463374607431768211455",
		"price":        "-12",
	})

	for _, name := range []string{"json", "proto"} {
		t.Run(name, func(t *testing.T) {
			s, err := New(name)
			require.NoError(t, err)
			b, err := s.Encode(e)
			require.NoError(t, err)
			got, err := s.Decode(b)
			require.NoError(t, err)
			if diff := cmp.Diff(e, got); diff != "" {
				t.Fatalf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerializerErrors(t *testing.T) {
	_, err := New("xml")
	require.ErrorIs(t, err, ErrUnknownEncoding)

	_, err = JSONSerializer{}.Decode([]byte("{"))
	require.ErrorIs(t, err, ErrMalformed)

	b, err := ProtoSerializer{}.Encode(&Event{Type: TypeDeposit})
	require.NoError(t, err)
	_, err = ProtoSerializer{}.Decode(b)
	require.NoError(t, err)
	_, err = ProtoSerializer{}.Decode([]byte{0x0a, 0x02, 0x0a})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeErrorsKeepCause(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"id": "not-a-uuid", "seq": "1", "time": "1"})
	require.NoError(t, err)
	_, err = FromStruct(s)
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "id:")

	_, err = JSONSerializer{}.Decode([]byte(`{"seq":"x"}`))
	require.ErrorIs(t, err, ErrMalformed)
}
