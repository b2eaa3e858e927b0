package service

import (
	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
	"clob/infra/codec"
	entrywal "clob/infra/wal/entry"
)

type savedBuffer struct {
	live []byte
	copy *[]byte
}

type savedAccount struct {
	orig *account.Account
	copy *[]byte
}

// tx records what a command touched so it can be committed or undone.
type tx struct {
	e        *Engine
	market   market.Market
	now      uint64
	books    map[ordertree.TreeType]savedBuffer
	accounts map[solana.PublicKey]savedAccount
	created  map[solana.PublicKey]bool
	closed   map[solana.PublicKey]bool
	events   []*codec.Event
	// journaled is set once any event reached the journal; its sequence
	// numbers are then spent even if the command rolls back.
	journaled bool
}

func (e *Engine) begin() *tx {
	return &tx{
		e:        e,
		market:   *e.market,
		now:      e.nowSecs(),
		books:    make(map[ordertree.TreeType]savedBuffer, 2),
		accounts: make(map[solana.PublicKey]savedAccount),
		created:  make(map[solana.PublicKey]bool),
		closed:   make(map[solana.PublicKey]bool),
	}
}

// book returns a side for writing.
func (t *tx) book(side ordertree.Side) *ordertree.BookSide {
	b := t.e.book(side)
	tt := ordertree.TreeTypeFor(side)
	if _, ok := t.books[tt]; !ok {
		t.books[tt] = savedBuffer{live: b.Bytes(), copy: t.e.bufs.Copy(b.Bytes())}
	}
	return b
}

// account returns an account for writing.
func (t *tx) account(addr solana.PublicKey) (*account.Account, error) {
	a, ok := t.e.accounts[addr]
	if !ok {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", addr)
	}
	if _, saved := t.accounts[addr]; !saved && !t.created[addr] {
		t.accounts[addr] = savedAccount{orig: a, copy: t.e.bufs.Copy(a.Bytes())}
	}
	return a, nil
}

// authorized returns the account at addr if signer may act for it.
func (t *tx) authorized(addr, signer solana.PublicKey) (*account.Account, error) {
	a, err := t.account(addr)
	if err != nil {
		return nil, err
	}
	if !a.IsOwnerOrDelegate(signer) {
		return nil, errors.Wrapf(ErrUnauthorized, "signer %s on %s", signer, addr)
	}
	return a, nil
}

// replaceAccount swaps in a reallocated account. addr must have been
// fetched through account first.
func (t *tx) replaceAccount(addr solana.PublicKey, a *account.Account) {
	t.e.accounts[addr] = a
}

func (t *tx) addAccount(addr solana.PublicKey, a *account.Account) {
	t.e.accounts[addr] = a
	t.created[addr] = true
}

// closeAccount drops addr. It must have been fetched through account
// first.
func (t *tx) closeAccount(addr solana.PublicKey) {
	delete(t.e.accounts, addr)
	t.closed[addr] = true
}

func (t *tx) emit(typ string, data map[string]string) *codec.Event {
	ev := codec.NewEvent(t.e.seq.Next(), typ, t.e.clock().UnixNano(), data)
	t.events = append(t.events, ev)
	return ev
}

func (t *tx) rollback() {
	*t.e.market = t.market
	for _, s := range t.books {
		copy(s.live, *s.copy)
	}
	for addr, s := range t.accounts {
		buf := s.orig.Bytes()
		copy(buf, *s.copy)
		// the cached slot count may have moved with the bytes
		if a, err := account.FromBytes(buf); err == nil {
			t.e.accounts[addr] = a
		} else {
			t.e.accounts[addr] = s.orig
		}
	}
	for addr := range t.created {
		delete(t.e.accounts, addr)
	}
	if !t.journaled {
		for i := len(t.events) - 1; i >= 0; i-- {
			t.e.seq.Rewind(t.events[i].Seq)
		}
	}
	t.events = nil
}

// commit journals the events, then writes every touched buffer and the
// events' outbox entries in one batch.
func (t *tx) commit() error {
	payloads := make([][]byte, len(t.events))
	for i, ev := range t.events {
		b, err := t.e.codec.Encode(ev)
		if err != nil {
			return errors.Wrapf(err, "encode %s", ev.Type)
		}
		payloads[i] = b
	}

	if t.e.journal != nil && len(t.events) > 0 {
		t.journaled = true
		for i, ev := range t.events {
			rec := entrywal.NewRecord(recordType(ev.Type), ev.Seq, payloads[i])
			rec.Time = ev.Time
			if err := t.e.journal.Append(rec); err != nil {
				return err
			}
		}
		if err := t.e.journal.Sync(); err != nil {
			return err
		}
	}

	if t.e.store == nil {
		return nil
	}
	b := t.e.store.NewBatch()
	if err := t.fill(b.PutMarket, b.PutBook, b.PutAccount, b.DeleteAccount); err != nil {
		_ = b.Discard()
		return err
	}
	for i, ev := range t.events {
		if err := b.PutEvent(ev.Seq, payloads[i]); err != nil {
			_ = b.Discard()
			return err
		}
	}
	if n := len(t.events); n > 0 {
		if err := b.PutSeq(t.events[n-1].Seq); err != nil {
			_ = b.Discard()
			return err
		}
	}
	return b.Commit()
}

func (t *tx) fill(
	putMarket func([]byte) error,
	putBook func(ordertree.TreeType, []byte) error,
	putAccount func(solana.PublicKey, []byte) error,
	deleteAccount func(solana.PublicKey) error,
) error {
	if *t.e.market != t.market {
		mb, err := t.e.market.MarshalBinary()
		if err != nil {
			return err
		}
		if err := putMarket(mb); err != nil {
			return err
		}
	}
	for tt := range t.books {
		if err := putBook(tt, t.e.book(tt.Side()).Bytes()); err != nil {
			return err
		}
	}
	for addr := range t.accounts {
		if t.closed[addr] {
			if err := deleteAccount(addr); err != nil {
				return err
			}
			continue
		}
		if err := putAccount(addr, t.e.accounts[addr].Bytes()); err != nil {
			return err
		}
	}
	for addr := range t.created {
		if err := putAccount(addr, t.e.accounts[addr].Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) release() {
	for _, s := range t.books {
		t.e.bufs.Release(s.copy)
	}
	for _, s := range t.accounts {
		t.e.bufs.Release(s.copy)
	}
}

func recordType(eventType string) entrywal.RecordType {
	switch eventType {
	case codec.TypeOrderPlaced:
		return entrywal.RecordPlace
	case codec.TypeOrderCancelled:
		return entrywal.RecordCancel
	case codec.TypeOrderExpired:
		return entrywal.RecordExpire
	case codec.TypeFeesExpired:
		return entrywal.RecordFeeExpiry
	case codec.TypeAccountCreated, codec.TypeAccountResized, codec.TypeAccountClosed, codec.TypeDelegateSet:
		return entrywal.RecordAccount
	case codec.TypeDeposit, codec.TypeSettle:
		return entrywal.RecordFunds
	default:
		return entrywal.RecordFill
	}
}
