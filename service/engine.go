package service

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
	"clob/infra/codec"
	"clob/infra/memory"
	"clob/infra/sequence"
	"clob/infra/store"
	entrywal "clob/infra/wal/entry"
)

// Deps wires an Engine. Store and Journal are optional; without them the
// engine keeps state in memory only.
type Deps struct {
	// Market seeds a fresh store.
	Market       *market.Market
	BookCapacity int
	ProgramID    solana.PublicKey

	Store     *store.Store
	Journal   *entrywal.WAL
	Codec     codec.Serializer
	Sequencer *sequence.Sequencer
	Buffers   *memory.Buffers
	Metrics   *Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
}

type Engine struct {
	mu sync.Mutex

	market   *market.Market
	bids     *ordertree.BookSide
	asks     *ordertree.BookSide
	accounts map[solana.PublicKey]*account.Account

	programID solana.PublicKey
	capacity  int

	store   *store.Store
	journal *entrywal.WAL
	codec   codec.Serializer
	seq     *sequence.Sequencer
	bufs    *memory.Buffers
	metrics *Metrics
	log     *zap.Logger
	clock   func() time.Time
}

// New builds an engine over a fresh market. Call Recover to load
// persisted state before serving commands.
func New(d Deps) (*Engine, error) {
	if d.Market == nil {
		return nil, errors.New("service: market is required")
	}
	if err := d.Market.Validate(); err != nil {
		return nil, err
	}
	if d.BookCapacity == 0 {
		d.BookCapacity = ordertree.DefaultCapacity
	}
	if d.Codec == nil {
		d.Codec = codec.ProtoSerializer{}
	}
	if d.Sequencer == nil {
		d.Sequencer = sequence.New(0)
	}
	if d.Buffers == nil {
		d.Buffers = memory.NewBuffers()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	m := *d.Market
	return &Engine{
		market:    &m,
		bids:      ordertree.NewBookSide(ordertree.Bids, d.BookCapacity),
		asks:      ordertree.NewBookSide(ordertree.Asks, d.BookCapacity),
		accounts:  make(map[solana.PublicKey]*account.Account),
		programID: d.ProgramID,
		capacity:  d.BookCapacity,
		store:     d.Store,
		journal:   d.Journal,
		codec:     d.Codec,
		seq:       d.Sequencer,
		bufs:      d.Buffers,
		metrics:   d.Metrics,
		log:       d.Logger.Named("engine"),
		clock:     d.Clock,
	}, nil
}

// Recover loads the market, both book sides and every account from the
// store. A fresh store is seeded with the engine's initial state.
func (e *Engine) Recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := e.store.Market()
	if errors.Is(err, store.ErrNotFound) {
		e.log.Info("fresh store, seeding market", zap.String("market", e.market.Name))
		return e.persistAll()
	}
	if err != nil {
		return errors.Wrap(err, "load market")
	}
	var m market.Market
	if err := m.UnmarshalBinary(raw); err != nil {
		return err
	}

	books := make(map[ordertree.TreeType]*ordertree.BookSide, 2)
	for _, t := range []ordertree.TreeType{ordertree.Bids, ordertree.Asks} {
		buf, err := e.store.Book(t)
		if err != nil {
			return errors.Wrapf(err, "load %v", t.Side())
		}
		b, err := ordertree.BookSideFromBytes(buf)
		if err != nil {
			return errors.Wrapf(err, "load %v", t.Side())
		}
		books[t] = b
	}

	accounts := make(map[solana.PublicKey]*account.Account)
	err = e.store.ScanAccounts(func(addr solana.PublicKey, buf []byte) error {
		a, err := account.FromBytes(buf)
		if err != nil {
			return errors.Wrapf(err, "account %s", addr)
		}
		accounts[addr] = a
		return nil
	})
	if err != nil {
		return err
	}

	last, err := e.store.LastSeq()
	if err != nil {
		return err
	}
	e.seq.Advance(last)
	if e.journal != nil {
		if j := e.journal.LastSeq(); j > last {
			e.log.Warn("journal has records past the last commit",
				zap.Uint64("store_seq", last), zap.Uint64("journal_seq", j))
			e.seq.Advance(j)
		}
	}

	e.market = &m
	e.bids = books[ordertree.Bids]
	e.asks = books[ordertree.Asks]
	e.accounts = accounts
	e.capacity = e.bids.Nodes().Capacity()
	e.updateGauges()

	e.log.Info("recovered",
		zap.String("market", m.Name),
		zap.Int("accounts", len(accounts)),
		zap.Uint32("bids", e.bids.Root(ordertree.Fixed).LeafCount+e.bids.Root(ordertree.OraclePegged).LeafCount),
		zap.Uint32("asks", e.asks.Root(ordertree.Fixed).LeafCount+e.asks.Root(ordertree.OraclePegged).LeafCount),
		zap.Uint64("seq", e.seq.Current()),
	)
	return nil
}

func (e *Engine) persistAll() error {
	b := e.store.NewBatch()
	mb, err := e.market.MarshalBinary()
	if err != nil {
		_ = b.Discard()
		return err
	}
	for _, put := range []func() error{
		func() error { return b.PutMarket(mb) },
		func() error { return b.PutBook(ordertree.Bids, e.bids.Bytes()) },
		func() error { return b.PutBook(ordertree.Asks, e.asks.Bytes()) },
		func() error { return b.PutSeq(e.seq.Current()) },
	} {
		if err := put(); err != nil {
			_ = b.Discard()
			return err
		}
	}
	for addr, a := range e.accounts {
		if err := b.PutAccount(addr, a.Bytes()); err != nil {
			_ = b.Discard()
			return err
		}
	}
	return b.Commit()
}

func (e *Engine) book(side ordertree.Side) *ordertree.BookSide {
	if side == ordertree.Bid {
		return e.bids
	}
	return e.asks
}

// nowSecs is the book clock: unix seconds.
func (e *Engine) nowSecs() uint64 {
	return uint64(e.clock().Unix())
}

// run executes fn as one atomic command.
func (e *Engine) run(ctx context.Context, name string, fn func(t *tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	start := e.clock()
	t := e.begin()
	defer t.release()

	if err := fn(t); err != nil {
		t.rollback()
		e.metrics.rejected.WithLabelValues(name).Inc()
		e.log.Debug("command rejected", zap.String("command", name), zap.Error(err))
		return err
	}
	if err := t.commit(); err != nil {
		t.rollback()
		e.metrics.rejected.WithLabelValues(name).Inc()
		e.log.Error("commit failed", zap.String("command", name), zap.Error(err))
		return errors.Wrapf(err, "%s: commit", name)
	}
	e.metrics.commands.WithLabelValues(name).Inc()
	e.metrics.latency.WithLabelValues(name).Observe(e.clock().Sub(start).Seconds())
	e.updateGauges()
	return nil
}

func (e *Engine) updateGauges() {
	for _, b := range []*ordertree.BookSide{e.bids, e.asks} {
		side := b.Side().String()
		for _, c := range []ordertree.BookSideOrderTree{ordertree.Fixed, ordertree.OraclePegged} {
			e.metrics.leaves.WithLabelValues(side, c.String()).Set(float64(b.Root(c).LeafCount))
		}
		e.metrics.freeSlots.WithLabelValues(side).Set(float64(b.Nodes().FreeSlots()))
	}
	e.metrics.accounts.Set(float64(len(e.accounts)))
}

// Close syncs the journal. The store and journal are owned by the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.journal != nil {
		return e.journal.Sync()
	}
	return nil
}
