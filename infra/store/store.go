// Package store persists engine state in pebble: the market record, both
// book sides and every open-orders account as raw buffers, plus an outbox
// of events waiting to be published. A command's changes are committed in
// a single batch so state and outbox never disagree.
package store

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/gagliardetto/solana-go"

	"clob/domain/ordertree"
)

var ErrNotFound = errors.New("store: not found")

const (
	keyMarket     = "market"
	keySeq        = "meta/seq"
	prefixBook    = "book/"
	prefixAccount = "account/"
	prefixOutbox  = "outbox/"
)

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open store at %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ─── keys ────────────────────────────────────────────────────

func bookKey(t ordertree.TreeType) []byte {
	if t == ordertree.Bids {
		return []byte(prefixBook + "bids")
	}
	return []byte(prefixBook + "asks")
}

func accountKey(addr solana.PublicKey) []byte {
	return append([]byte(prefixAccount), addr[:]...)
}

func outboxKey(seq uint64) []byte {
	k := make([]byte, len(prefixOutbox)+8)
	copy(k, prefixOutbox)
	binary.BigEndian.PutUint64(k[len(prefixOutbox):], seq)
	return k
}

func parseOutboxKey(k []byte) (uint64, error) {
	if len(k) != len(prefixOutbox)+8 {
		return 0, errors.Newf("store: malformed outbox key %q", k)
	}
	return binary.BigEndian.Uint64(k[len(prefixOutbox):]), nil
}

func parseAccountKey(k []byte) (solana.PublicKey, error) {
	if len(k) != len(prefixAccount)+solana.PublicKeyLength {
		return solana.PublicKey{}, errors.Newf("store: malformed account key %q", k)
	}
	return solana.PublicKeyFromBytes(k[len(prefixAccount):]), nil
}

// prefixUpperBound is the first key after every key starting with prefix.
func prefixUpperBound(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

// ─── reads ───────────────────────────────────────────────────

func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "key %q", key)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *Store) Market() ([]byte, error) { return s.get([]byte(keyMarket)) }

func (s *Store) Book(t ordertree.TreeType) ([]byte, error) { return s.get(bookKey(t)) }

func (s *Store) Account(addr solana.PublicKey) ([]byte, error) { return s.get(accountKey(addr)) }

// LastSeq is the sequence of the last committed command, 0 for a fresh
// store.
func (s *Store) LastSeq() (uint64, error) {
	b, err := s.get([]byte(keySeq))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, errors.Newf("store: malformed sequence of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// ScanAccounts calls fn for every stored account in address order. buf
// is a copy owned by fn.
func (s *Store) ScanAccounts(fn func(addr solana.PublicKey, buf []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixAccount),
		UpperBound: prefixUpperBound(prefixAccount),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := parseAccountKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(addr, append([]byte(nil), iter.Value()...)); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ─── writes ──────────────────────────────────────────────────

// Batch collects the writes of one command.
type Batch struct {
	b *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

func (b *Batch) PutMarket(buf []byte) error {
	return b.b.Set([]byte(keyMarket), buf, nil)
}

func (b *Batch) PutBook(t ordertree.TreeType, buf []byte) error {
	return b.b.Set(bookKey(t), buf, nil)
}

func (b *Batch) PutAccount(addr solana.PublicKey, buf []byte) error {
	return b.b.Set(accountKey(addr), buf, nil)
}

func (b *Batch) DeleteAccount(addr solana.PublicKey) error {
	return b.b.Delete(accountKey(addr), nil)
}

// PutSeq records the sequence of the command the batch commits.
func (b *Batch) PutSeq(seq uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], seq)
	return b.b.Set([]byte(keySeq), v[:], nil)
}

// PutEvent queues payload in the outbox under seq in state New.
func (b *Batch) PutEvent(seq uint64, payload []byte) error {
	return b.b.Set(outboxKey(seq), encodeOutboxRecord(OutboxRecord{State: StateNew, Payload: payload}), nil)
}

func (b *Batch) Len() int { return int(b.b.Count()) }

// Commit applies the batch atomically and syncs it to disk.
func (b *Batch) Commit() error {
	defer b.b.Close()
	return b.b.Commit(pebble.Sync)
}

func (b *Batch) Discard() error {
	return b.b.Close()
}
