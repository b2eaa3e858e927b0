package service

import (
	"bytes"
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
	"clob/infra/store"
	"clob/snapshot"
)

// Snapshot copies the current state. Accounts are ordered by address.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mb, err := e.market.MarshalBinary()
	if err != nil {
		return nil, err
	}
	s := &snapshot.Snapshot{
		Seq:      e.seq.Current(),
		Created:  e.clock().UTC(),
		Market:   mb,
		Bids:     bytes.Clone(e.bids.Bytes()),
		Asks:     bytes.Clone(e.asks.Bytes()),
		Accounts: make([]snapshot.AccountEntry, 0, len(e.accounts)),
	}
	for addr, a := range e.accounts {
		s.Accounts = append(s.Accounts, snapshot.AccountEntry{Address: addr, Data: bytes.Clone(a.Bytes())})
	}
	sort.Slice(s.Accounts, func(i, j int) bool {
		return bytes.Compare(s.Accounts[i].Address[:], s.Accounts[j].Address[:]) < 0
	})
	return s, nil
}

// Restore replaces the engine state with s and persists it. The store,
// when present, must not hold any state yet.
func (e *Engine) Restore(ctx context.Context, s *snapshot.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if e.store != nil {
		if _, err := e.store.Market(); err == nil {
			return ErrStoreNotFresh
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	var m market.Market
	if err := m.UnmarshalBinary(s.Market); err != nil {
		return errors.Wrap(err, "snapshot market")
	}
	bids, err := ordertree.BookSideFromBytes(bytes.Clone(s.Bids))
	if err != nil {
		return errors.Wrap(err, "snapshot bids")
	}
	asks, err := ordertree.BookSideFromBytes(bytes.Clone(s.Asks))
	if err != nil {
		return errors.Wrap(err, "snapshot asks")
	}
	if bids.Side() != ordertree.Bid || asks.Side() != ordertree.Ask {
		return errors.New("snapshot: book sides swapped")
	}
	accounts := make(map[solana.PublicKey]*account.Account, len(s.Accounts))
	for _, entry := range s.Accounts {
		a, err := account.FromBytes(bytes.Clone(entry.Data))
		if err != nil {
			return errors.Wrapf(err, "snapshot account %s", entry.Address)
		}
		accounts[entry.Address] = a
	}

	e.market = &m
	e.bids = bids
	e.asks = asks
	e.accounts = accounts
	e.capacity = bids.Nodes().Capacity()
	e.seq.Advance(s.Seq)

	if e.store != nil {
		if err := e.persistAll(); err != nil {
			return errors.Wrap(err, "persist snapshot")
		}
	}
	e.updateGauges()
	e.log.Info("restored snapshot",
		zap.String("market", m.Name),
		zap.Uint64("seq", s.Seq),
		zap.Int("accounts", len(accounts)),
		zap.Time("created", s.Created),
	)
	return nil
}

// TruncateJournal drops closed journal segments whose records are all at
// or below seq.
func (e *Engine) TruncateJournal(seq uint64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.journal == nil {
		return 0, nil
	}
	return e.journal.TruncateBefore(seq)
}

// JournalSeq is the last sequence written to the journal, or the last
// issued sequence when there is no journal.
func (e *Engine) JournalSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.journal == nil {
		return e.seq.Current()
	}
	return e.journal.LastSeq()
}
