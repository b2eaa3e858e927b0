package service

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
	"clob/infra/store"
	entrywal "clob/infra/wal/entry"
)

var (
	programID = solana.MustPublicKeyFromBase58("opnb2LAfJYbRMAHHvqjCwQxanZn7ReEHp1k81EohpZb")
	alice     = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	bob       = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	carol     = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testMarket() *market.Market {
	return &market.Market{Name: "SOL-USDC", BaseLotSize: 1, QuoteLotSize: 1}
}

func newEngine(t testing.TB, opts ...func(*Deps)) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := Deps{
		Market:       testMarket(),
		BookCapacity: 64,
		ProgramID:    programID,
		Clock:        clock.Now,
	}
	for _, o := range opts {
		o(&d)
	}
	e, err := New(d)
	require.NoError(t, err)
	require.NoError(t, e.Recover(context.Background()))
	return e, clock
}

func withMarket(m *market.Market) func(*Deps) {
	return func(d *Deps) { d.Market = m }
}

func openAccount(t testing.TB, e *Engine, owner solana.PublicKey, base, quote uint64) solana.PublicKey {
	t.Helper()
	ctx := context.Background()
	addr, err := e.CreateAccount(ctx, CreateAccountArgs{Owner: owner, Name: "test", Slots: 4})
	require.NoError(t, err)
	require.NoError(t, e.Deposit(ctx, addr, base, quote))
	return addr
}

func limitOrder(addr, signer solana.PublicKey, side ordertree.Side, price, base int64) PlaceOrderArgs {
	return PlaceOrderArgs{
		Account:                   addr,
		Signer:                    signer,
		Side:                      side,
		Type:                      Limit,
		PriceLots:                 price,
		MaxBaseLots:               base,
		MaxQuoteLotsIncludingFees: math.MaxInt64 / 2,
	}
}

func place(t testing.TB, e *Engine, args PlaceOrderArgs) PlaceResult {
	t.Helper()
	res, err := e.PlaceOrder(context.Background(), args)
	require.NoError(t, err)
	return res
}

func position(t testing.TB, e *Engine, addr solana.PublicKey) AccountView {
	t.Helper()
	v, err := e.Account(addr)
	require.NoError(t, err)
	return v
}

func levels(e *Engine, side ordertree.Side) []Level {
	return e.Book(side, 0, ordertree.OraclePrice{}).Levels
}

func TestAccountAddressIsDerived(t *testing.T) {
	e, _ := newEngine(t)
	addr, err := e.CreateAccount(context.Background(), CreateAccountArgs{Owner: alice, AccountNum: 3, Slots: 2})
	require.NoError(t, err)

	want, _, err := AccountAddress(programID, alice, 3)
	require.NoError(t, err)
	require.Equal(t, want, addr)

	v := position(t, e, addr)
	assert.Equal(t, alice, v.Owner)
	assert.Equal(t, uint32(3), v.AccountNum)
	assert.Equal(t, 2, v.Slots)

	_, err = e.CreateAccount(context.Background(), CreateAccountArgs{Owner: alice, AccountNum: 3, Slots: 2})
	require.ErrorIs(t, err, ErrAccountExists)
	require.Equal(t, []solana.PublicKey{addr}, e.Accounts(alice))
}

func TestLimitOrderRestsAndMatches(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 1000)

	res := place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))
	require.True(t, res.Posted)
	require.Equal(t, 0, res.Slot)
	require.Empty(t, res.Fills)
	assert.Equal(t, int64(5), position(t, e, a).Position.AsksBaseLots)
	assert.Equal(t, uint64(95), position(t, e, a).Position.BaseFreeNative)

	res = place(t, e, limitOrder(b, bob, ordertree.Bid, 12, 3))
	require.False(t, res.Posted)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(10), res.Fills[0].Price)
	assert.Equal(t, int64(3), res.Fills[0].Quantity)
	assert.False(t, res.Fills[0].MakerOut)

	bp := position(t, e, b).Position
	assert.Equal(t, uint64(3), bp.BaseFreeNative)
	assert.Equal(t, uint64(970), bp.QuoteFreeNative)
	ap := position(t, e, a).Position
	assert.Equal(t, uint64(30), ap.QuoteFreeNative)
	assert.Equal(t, int64(2), ap.AsksBaseLots)
	require.Equal(t, []Level{{PriceLots: 10, Quantity: 2, Orders: 1}}, levels(e, ordertree.Ask))

	// below the best ask it rests
	res = place(t, e, limitOrder(b, bob, ordertree.Bid, 9, 4))
	require.True(t, res.Posted)
	bp = position(t, e, b).Position
	assert.Equal(t, uint64(934), bp.QuoteFreeNative)
	assert.Equal(t, int64(4), bp.BidsBaseLots)
	assert.Equal(t, int64(36), bp.BidsQuoteLots)

	// a market ask sweeps the bid and never rests
	res = place(t, e, PlaceOrderArgs{
		Account: a, Signer: alice, Side: ordertree.Ask, Type: Market,
		MaxBaseLots: 10, MaxQuoteLotsIncludingFees: math.MaxInt64 / 2,
	})
	require.False(t, res.Posted)
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].MakerOut)
	ap = position(t, e, a).Position
	assert.Equal(t, uint64(66), ap.QuoteFreeNative)
	assert.Equal(t, uint64(91), ap.BaseFreeNative)
	bp = position(t, e, b).Position
	assert.Equal(t, uint64(7), bp.BaseFreeNative)
	assert.Zero(t, bp.BidsBaseLots)
	assert.Empty(t, levels(e, ordertree.Bid))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.fills))
}

func TestFeesOnFill(t *testing.T) {
	m := testMarket()
	m.MakerFee = 1_000
	m.TakerFee = 2_000
	e, _ := newEngine(t, withMarket(m))
	a := openAccount(t, e, alice, 10, 0)
	b := openAccount(t, e, bob, 0, 1_000_000)

	place(t, e, limitOrder(a, alice, ordertree.Ask, 1000, 10))
	args := limitOrder(b, bob, ordertree.Bid, 1000, 10)
	args.MaxQuoteLotsIncludingFees = 1_000_000
	res := place(t, e, args)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(20), res.TakerFees)
	assert.Equal(t, uint64(20), res.ReferrerAmount)
	assert.Equal(t, uint64(10), res.Fills[0].MakerFee)

	assert.Equal(t, uint64(989_980), position(t, e, b).Position.QuoteFreeNative)
	assert.Equal(t, uint64(9_990), position(t, e, a).Position.QuoteFreeNative)
	assert.Equal(t, uint64(30), e.Market().FeesAccrued)

	// a resting bid locks its maker fee, cancelling returns it
	args = limitOrder(b, bob, ordertree.Bid, 900, 5)
	args.MaxQuoteLotsIncludingFees = 1_000_000
	res = place(t, e, args)
	require.True(t, res.Posted)
	assert.Equal(t, uint64(5), res.MakerFees)
	bp := position(t, e, b).Position
	assert.Equal(t, uint64(985_475), bp.QuoteFreeNative)
	assert.Equal(t, uint64(5), bp.LockedMakerFees)

	leaf, err := e.CancelOrder(context.Background(), b, bob, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), leaf.Quantity)
	bp = position(t, e, b).Position
	assert.Equal(t, uint64(989_980), bp.QuoteFreeNative)
	assert.Zero(t, bp.LockedMakerFees)
	assert.Zero(t, bp.BidsBaseLots)
}

func TestInsufficientFundsRollsBack(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 0)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))
	before := e.Market()

	_, err := e.PlaceOrder(context.Background(), limitOrder(b, bob, ordertree.Bid, 12, 3))
	require.ErrorIs(t, err, account.ErrInsufficientFunds)

	require.Equal(t, before, e.Market())
	ap := position(t, e, a).Position
	assert.Equal(t, int64(5), ap.AsksBaseLots)
	assert.Zero(t, ap.QuoteFreeNative)
	bp := position(t, e, b).Position
	assert.Zero(t, bp.BaseFreeNative)
	require.Equal(t, []Level{{PriceLots: 10, Quantity: 5, Orders: 1}}, levels(e, ordertree.Ask))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.rejected.WithLabelValues("place_order")))
}

func TestSelfTrade(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 1000)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))

	bid := limitOrder(a, alice, ordertree.Bid, 12, 2)
	bid.SelfTrade = AbortTransaction
	_, err := e.PlaceOrder(context.Background(), bid)
	require.ErrorIs(t, err, ErrWouldSelfTrade)
	assert.Equal(t, int64(5), position(t, e, a).Position.AsksBaseLots)

	bid.SelfTrade = DecrementTake
	res := place(t, e, bid)
	require.Len(t, res.Fills, 1)
	assert.Zero(t, res.TakerFees)
	p := position(t, e, a).Position
	assert.Equal(t, int64(3), p.AsksBaseLots)
	assert.Equal(t, uint64(97), p.BaseFreeNative)
	assert.Equal(t, uint64(1000), p.QuoteFreeNative)

	bid.SelfTrade = CancelProvide
	res = place(t, e, bid)
	require.Empty(t, res.Fills)
	require.True(t, res.Posted)
	p = position(t, e, a).Position
	assert.Zero(t, p.AsksBaseLots)
	assert.Equal(t, uint64(100), p.BaseFreeNative)
	assert.Equal(t, uint64(976), p.QuoteFreeNative)
	assert.Empty(t, levels(e, ordertree.Ask))
	require.Equal(t, []Level{{PriceLots: 12, Quantity: 2, Orders: 1}}, levels(e, ordertree.Bid))
}

func TestPostOnly(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 1000)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))

	args := limitOrder(b, bob, ordertree.Bid, 12, 1)
	args.Type = PostOnly
	res := place(t, e, args)
	assert.False(t, res.Posted)
	assert.Empty(t, res.Fills)
	assert.Equal(t, uint64(1000), position(t, e, b).Position.QuoteFreeNative)

	args.Type = PostOnlySlide
	res = place(t, e, args)
	require.True(t, res.Posted)
	require.Equal(t, []Level{{PriceLots: 9, Quantity: 1, Orders: 1}}, levels(e, ordertree.Bid))
	assert.Equal(t, uint64(991), position(t, e, b).Position.QuoteFreeNative)
}

func TestTakingOrderPaysPenalty(t *testing.T) {
	m := testMarket()
	m.FeePenalty = 5
	e, _ := newEngine(t, withMarket(m))
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 1000)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))

	args := limitOrder(b, bob, ordertree.Bid, 12, 2)
	args.Type = ImmediateOrCancel
	res := place(t, e, args)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(5), res.Penalty)
	assert.Equal(t, uint64(975), position(t, e, b).Position.QuoteFreeNative)
	assert.Equal(t, uint64(5), e.Market().QuoteFeesAccrued)

	// nothing to take, nothing charged
	args.PriceLots = 1
	res = place(t, e, args)
	assert.Zero(t, res.Penalty)
	assert.False(t, res.Posted)
}

func TestOrderValidation(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 100)

	bad := limitOrder(a, alice, ordertree.Ask, 0, 1)
	_, err := e.PlaceOrder(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidOrder)

	bad = limitOrder(a, alice, ordertree.Ask, 10, -1)
	_, err = e.PlaceOrder(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidOrder)

	pegged := limitOrder(a, alice, ordertree.Bid, 0, 1)
	pegged.Pegged = true
	pegged.PegOffsetLots = -1
	pegged.PegLimit = 20
	_, err = e.PlaceOrder(context.Background(), pegged)
	require.ErrorIs(t, err, ErrOracleRequired)

	pegged.Type = ImmediateOrCancel
	pegged.Oracle = ordertree.WithOracle(10)
	_, err = e.PlaceOrder(context.Background(), pegged)
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = e.PlaceOrder(context.Background(), limitOrder(a, bob, ordertree.Ask, 10, 1))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPeggedOrderFollowsOracle(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 0, 1000)

	bid := limitOrder(a, alice, ordertree.Bid, 0, 2)
	bid.Pegged = true
	bid.PegOffsetLots = -1
	bid.PegLimit = 20
	bid.Oracle = ordertree.WithOracle(10)
	res := place(t, e, bid)
	require.True(t, res.Posted)
	// quote is locked at the peg limit
	assert.Equal(t, uint64(960), position(t, e, a).Position.QuoteFreeNative)

	view := e.Book(ordertree.Bid, 0, ordertree.WithOracle(15))
	require.Len(t, view.Levels, 1)
	assert.Equal(t, int64(14), view.Levels[0].PriceLots)
	assert.Equal(t, ordertree.OraclePegged, view.Orders[0].Tree)

	// without an oracle pegged orders are not visible
	assert.Empty(t, levels(e, ordertree.Bid))

	_, err := e.CancelOrder(context.Background(), a, alice, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), position(t, e, a).Position.QuoteFreeNative)
}

func TestExpiry(t *testing.T) {
	e, clock := newEngine(t)
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 1000)
	now := uint64(clock.Now().Unix())

	past := limitOrder(a, alice, ordertree.Ask, 10, 5)
	past.ExpiryTimestamp = now - 1
	res := place(t, e, past)
	assert.True(t, res.Skipped)
	assert.False(t, res.Posted)

	ask := limitOrder(a, alice, ordertree.Ask, 10, 5)
	ask.ExpiryTimestamp = now + 10
	res = place(t, e, ask)
	require.True(t, res.Posted)
	assert.Len(t, levels(e, ordertree.Ask), 1)

	clock.advance(20 * time.Second)
	assert.Empty(t, levels(e, ordertree.Ask))

	// the taker drops the expired maker instead of filling it
	res = place(t, e, limitOrder(b, bob, ordertree.Bid, 12, 1))
	assert.Empty(t, res.Fills)
	assert.True(t, res.Posted)
	ap := position(t, e, a).Position
	assert.Equal(t, uint64(100), ap.BaseFreeNative)
	assert.Zero(t, ap.AsksBaseLots)
	assert.Empty(t, position(t, e, a).Orders)
}

func TestPruneExpired(t *testing.T) {
	e, clock := newEngine(t)
	a := openAccount(t, e, alice, 100, 100)
	now := uint64(clock.Now().Unix())

	for i, side := range []ordertree.Side{ordertree.Ask, ordertree.Bid, ordertree.Ask} {
		args := limitOrder(a, alice, side, int64(20+i), 1)
		if side == ordertree.Bid {
			args.PriceLots = 5
		}
		args.ExpiryTimestamp = now + 5
		place(t, e, args)
	}
	lasting := limitOrder(a, alice, ordertree.Ask, 30, 1)
	place(t, e, lasting)

	clock.advance(time.Minute)
	n, err := e.PruneExpired(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = e.PruneExpired(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v := position(t, e, a)
	require.Len(t, v.Orders, 1)
	assert.Equal(t, int64(1), v.Position.AsksBaseLots)
	assert.Equal(t, uint64(99), v.Position.BaseFreeNative)
	assert.Equal(t, uint64(100), v.Position.QuoteFreeNative)
}

func TestBookFullEvictsWorst(t *testing.T) {
	e, _ := newEngine(t, func(d *Deps) { d.BookCapacity = 4 })
	a := openAccount(t, e, alice, 100, 0)

	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 1))
	place(t, e, limitOrder(a, alice, ordertree.Ask, 11, 1))

	_, err := e.PlaceOrder(context.Background(), limitOrder(a, alice, ordertree.Ask, 12, 1))
	require.ErrorIs(t, err, ErrBookFull)

	res := place(t, e, limitOrder(a, alice, ordertree.Ask, 9, 1))
	require.True(t, res.Posted)
	require.Equal(t, []Level{
		{PriceLots: 9, Quantity: 1, Orders: 1},
		{PriceLots: 10, Quantity: 1, Orders: 1},
	}, levels(e, ordertree.Ask))
	p := position(t, e, a).Position
	assert.Equal(t, int64(2), p.AsksBaseLots)
	assert.Equal(t, uint64(98), p.BaseFreeNative)
}

func TestCancel(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a := openAccount(t, e, alice, 100, 100)

	first := limitOrder(a, alice, ordertree.Ask, 10, 1)
	first.ClientOrderID = 42
	place(t, e, first)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 11, 2))
	place(t, e, limitOrder(a, alice, ordertree.Bid, 5, 3))

	_, err := e.CancelOrderByClientID(ctx, a, alice, 7)
	require.ErrorIs(t, err, ErrOrderNotFound)
	leaf, err := e.CancelOrderByClientID(ctx, a, alice, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), leaf.ClientOrderID)

	_, err = e.CancelAllOrders(ctx, a, bob, nil, 0)
	require.ErrorIs(t, err, ErrUnauthorized)

	ask := ordertree.Ask
	n, err := e.CancelAllOrders(ctx, a, alice, &ask, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, levels(e, ordertree.Bid), 1)

	n, err = e.CancelAllOrders(ctx, a, alice, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	v := position(t, e, a)
	assert.Empty(t, v.Orders)
	assert.Equal(t, uint64(100), v.Position.BaseFreeNative)
	assert.Equal(t, uint64(100), v.Position.QuoteFreeNative)
}

func TestDelegate(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a := openAccount(t, e, alice, 100, 0)

	require.ErrorIs(t, e.SetDelegate(ctx, a, bob, bob), ErrUnauthorized)
	require.NoError(t, e.SetDelegate(ctx, a, alice, bob))

	res := place(t, e, limitOrder(a, bob, ordertree.Ask, 10, 1))
	require.True(t, res.Posted)

	_, err := e.SettleFunds(ctx, a, bob, carol)
	require.ErrorIs(t, err, ErrUnauthorized)
	s, err := e.SettleFunds(ctx, a, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), s.BaseNative)
	assert.Zero(t, position(t, e, a).Position.BaseFreeNative)
}

func TestExpandAndClose(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	a := openAccount(t, e, alice, 100, 0)

	require.NoError(t, e.ExpandAccount(ctx, a, alice, 8))
	assert.Equal(t, 8, position(t, e, a).Slots)
	require.ErrorIs(t, e.ExpandAccount(ctx, a, alice, 2), account.ErrShrink)

	require.ErrorIs(t, e.CloseAccount(ctx, a, alice), ErrAccountNotEmpty)
	_, err := e.SettleFunds(ctx, a, alice, alice)
	require.NoError(t, err)
	require.ErrorIs(t, e.CloseAccount(ctx, a, bob), ErrUnauthorized)
	require.NoError(t, e.CloseAccount(ctx, a, alice))

	_, err = e.Account(a)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestExpireBuybackFees(t *testing.T) {
	m := testMarket()
	m.FeesExpiryInterval = 3600
	e, clock := newEngine(t, withMarket(m))
	a := openAccount(t, e, alice, 0, 0)

	n, err := e.ExpireBuybackFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	next := position(t, e, a).Buyback.ExpiryTimestamp
	assert.Greater(t, next, uint64(clock.Now().Unix()))

	n, err = e.ExpireBuybackFees(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.advance(time.Hour)
	n, err = e.ExpireBuybackFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarketExpired(t *testing.T) {
	m := testMarket()
	m.TimeExpiry = time.Unix(1_700_000_100, 0).Unix()
	e, clock := newEngine(t, withMarket(m))
	a := openAccount(t, e, alice, 100, 0)

	clock.advance(time.Hour)
	_, err := e.PlaceOrder(context.Background(), limitOrder(a, alice, ordertree.Ask, 10, 1))
	require.ErrorIs(t, err, ErrMarketExpired)
	require.ErrorIs(t, e.Deposit(context.Background(), a, 1, 1), ErrMarketExpired)
}

func TestRecoverFromStore(t *testing.T) {
	dir := t.TempDir()
	open := func() (*Engine, *store.Store, *entrywal.WAL) {
		st, err := store.Open(filepath.Join(dir, "store"))
		require.NoError(t, err)
		last, err := entrywal.Replay(filepath.Join(dir, "journal"), func(*entrywal.Record) error { return nil })
		require.NoError(t, err)
		j, err := entrywal.Open(entrywal.Config{Dir: filepath.Join(dir, "journal")}, last)
		require.NoError(t, err)
		e, _ := newEngine(t, func(d *Deps) {
			d.Store = st
			d.Journal = j
			d.Metrics = NewMetrics(prometheus.NewRegistry())
		})
		return e, st, j
	}

	e, st, j := open()
	a := openAccount(t, e, alice, 100, 0)
	b := openAccount(t, e, bob, 0, 1000)
	place(t, e, limitOrder(a, alice, ordertree.Ask, 10, 5))
	place(t, e, limitOrder(b, bob, ordertree.Bid, 12, 2))
	place(t, e, limitOrder(b, bob, ordertree.Bid, 8, 3))

	wantMarket := e.Market()
	wantAsks := e.Book(ordertree.Ask, 0, ordertree.OraclePrice{})
	wantBids := e.Book(ordertree.Bid, 0, ordertree.OraclePrice{})
	wantA := position(t, e, a)
	wantB := position(t, e, b)

	storeSeq, err := st.LastSeq()
	require.NoError(t, err)
	require.Equal(t, storeSeq, j.LastSeq())
	require.Equal(t, storeSeq, e.seq.Current())

	outbox := 0
	require.NoError(t, st.ScanEvents(0, func(uint64, store.OutboxRecord) error {
		outbox++
		return nil
	}, store.StateNew))
	require.Equal(t, int(storeSeq), outbox)

	require.NoError(t, e.Close())
	require.NoError(t, j.Close())
	require.NoError(t, st.Close())

	e, st, j = open()
	defer st.Close()
	defer j.Close()

	require.Equal(t, wantMarket, e.Market())
	require.Equal(t, wantAsks, e.Book(ordertree.Ask, 0, ordertree.OraclePrice{}))
	require.Equal(t, wantBids, e.Book(ordertree.Bid, 0, ordertree.OraclePrice{}))
	require.Equal(t, wantA, position(t, e, a))
	require.Equal(t, wantB, position(t, e, b))
	require.Equal(t, storeSeq, e.seq.Current())

	// sequence numbers continue after the restart
	place(t, e, limitOrder(b, bob, ordertree.Bid, 7, 1))
	last, err := st.LastSeq()
	require.NoError(t, err)
	require.Greater(t, last, storeSeq)
}

func TestRejectedCommandKeepsSequence(t *testing.T) {
	e, _ := newEngine(t)
	a := openAccount(t, e, alice, 100, 0)
	before := e.seq.Current()

	_, err := e.PlaceOrder(context.Background(), limitOrder(a, alice, ordertree.Bid, 10, 1))
	require.ErrorIs(t, err, account.ErrInsufficientFunds)
	require.Equal(t, before, e.seq.Current())
}

func BenchmarkPlaceOrder(b *testing.B) {
	e, _ := newEngine(b, func(d *Deps) { d.BookCapacity = 1 << 14 })
	maker := openAccount(b, e, alice, math.MaxUint32, 0)
	taker := openAccount(b, e, bob, 0, math.MaxUint32)
	require.NoError(b, e.ExpandAccount(context.Background(), maker, alice, 64))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.PlaceOrder(context.Background(), limitOrder(maker, alice, ordertree.Ask, 100, 1)); err != nil {
			b.Fatal(err)
		}
		if _, err := e.PlaceOrder(context.Background(), limitOrder(taker, bob, ordertree.Bid, 100, 1)); err != nil {
			b.Fatal(err)
		}
	}
}
