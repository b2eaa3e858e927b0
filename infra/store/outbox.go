package store

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// OutboxState tracks an event through publication.
type OutboxState uint8

const (
	StateNew OutboxState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s OutboxState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type OutboxRecord struct {
	State       OutboxState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const outboxHeaderSize = 1 + 4 + 8

// encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeOutboxRecord(r OutboxRecord) []byte {
	buf := make([]byte, outboxHeaderSize+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[outboxHeaderSize:], r.Payload)
	return buf
}

func decodeOutboxRecord(b []byte) (OutboxRecord, error) {
	if len(b) < outboxHeaderSize {
		return OutboxRecord{}, errors.Newf("store: outbox record of %d bytes", len(b))
	}
	return OutboxRecord{
		State:       OutboxState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[outboxHeaderSize:]...),
	}, nil
}

func (s *Store) Event(seq uint64) (OutboxRecord, error) {
	val, err := s.get(outboxKey(seq))
	if err != nil {
		return OutboxRecord{}, err
	}
	return decodeOutboxRecord(val)
}

// UpdateState records a publication attempt for seq.
func (s *Store) UpdateState(seq uint64, state OutboxState, retries uint32) error {
	rec, err := s.Event(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return s.db.Set(outboxKey(seq), encodeOutboxRecord(rec), pebble.Sync)
}

// DeleteEvent removes an acknowledged event.
func (s *Store) DeleteEvent(seq uint64) error {
	return s.db.Delete(outboxKey(seq), pebble.Sync)
}

// ScanEvents calls fn for outbox records in one of the given states, in
// sequence order, stopping after limit records when limit > 0.
func (s *Store) ScanEvents(limit int, fn func(seq uint64, rec OutboxRecord) error, states ...OutboxState) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixOutbox),
		UpperBound: prefixUpperBound(prefixOutbox),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeOutboxRecord(iter.Value())
		if err != nil {
			return err
		}
		if !hasState(states, rec.State) {
			continue
		}
		seq, err := parseOutboxKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, rec); err != nil {
			return err
		}
		if n++; limit > 0 && n >= limit {
			break
		}
	}
	return iter.Error()
}

// LastEventSeq returns the highest sequence in the outbox, 0 if empty.
func (s *Store) LastEventSeq() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixOutbox),
		UpperBound: prefixUpperBound(prefixOutbox),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseOutboxKey(iter.Key())
}

func hasState(states []OutboxState, st OutboxState) bool {
	for _, s := range states {
		if s == st {
			return true
		}
	}
	return false
}
