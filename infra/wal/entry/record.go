package entry

import "time"

// RecordType names the command a journal record was produced by.
type RecordType uint8

const (
	RecordPlace RecordType = iota + 1
	RecordCancel
	RecordFill
	RecordExpire
	RecordFeeExpiry
	RecordAccount
	RecordFunds
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "place"
	case RecordCancel:
		return "cancel"
	case RecordFill:
		return "fill"
	case RecordExpire:
		return "expire"
	case RecordFeeExpiry:
		return "fee_expiry"
	case RecordAccount:
		return "account"
	case RecordFunds:
		return "funds"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
