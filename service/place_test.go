package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"clob/domain/market"
	"clob/domain/ordertree"
)

func lotMarket() *market.Market {
	return &market.Market{Name: "SOL-USDC", BaseLotSize: 2, QuoteLotSize: 4}
}

func TestOrderSizeBounds(t *testing.T) {
	m := lotMarket()
	maxBase := int64(math.MaxInt64 / 2)
	maxQuote := int64(math.MaxInt64 / 4)

	tests := []struct {
		name        string
		base, quote int64
		wantErr     error
	}{
		{name: "small", base: 10, quote: 100},
		{name: "base at limit", base: maxBase, quote: 100},
		{name: "base past limit", base: maxBase + 1, quote: 100, wantErr: ErrInvalidLotsSize},
		{name: "quote at limit", base: 10, quote: maxQuote},
		{name: "quote past limit", base: 10, quote: maxQuote + 1, wantErr: ErrInvalidLotsSize},
		{name: "negative", base: -1, quote: 100, wantErr: ErrInvalidOrder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := limitOrder(alice, alice, ordertree.Bid, 10, tc.base)
			args.MaxQuoteLotsIncludingFees = tc.quote
			err := args.validate(m)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPostAmountBounds(t *testing.T) {
	m := lotMarket()

	base, quote, err := postAmount(m, 10, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(20), base)
	require.Equal(t, uint64(400), quote)

	_, quote, err = postAmount(m, 1, m.MaxQuoteLots())
	require.NoError(t, err)
	require.Equal(t, uint64(m.MaxQuoteLots())*4, quote)

	for _, c := range [][2]int64{
		{1, m.MaxQuoteLots() + 1},
		{2, m.MaxQuoteLots()/2 + 1},
		{1 << 32, 1 << 32},
	} {
		_, _, err := postAmount(m, c[0], c[1])
		require.ErrorIs(t, err, ErrInvalidPostAmount, "%d lots at %d", c[0], c[1])
	}
}

func TestOversizedBidCannotTradeUnfunded(t *testing.T) {
	e, _ := newEngine(t, withMarket(lotMarket()))
	ctx := context.Background()

	a, err := e.CreateAccount(ctx, CreateAccountArgs{Owner: alice, Name: "empty", Slots: 4})
	require.NoError(t, err)
	b := openAccount(t, e, bob, 20, 0)

	huge := limitOrder(a, alice, ordertree.Bid, 1<<62, 1)
	_, err = e.PlaceOrder(ctx, huge)
	require.ErrorIs(t, err, ErrInvalidLotsSize)

	// the largest accepted quote budget cannot buy a single lot at that price
	m := e.Market()
	huge.MaxQuoteLotsIncludingFees = m.MaxQuoteLots()
	res, err := e.PlaceOrder(ctx, huge)
	require.NoError(t, err)
	require.False(t, res.Posted)
	require.Empty(t, levels(e, ordertree.Bid))

	sell := PlaceOrderArgs{
		Account: b, Signer: bob, Side: ordertree.Ask, Type: Market,
		MaxBaseLots: 10, MaxQuoteLotsIncludingFees: m.MaxQuoteLots(),
	}
	res = place(t, e, sell)
	require.Empty(t, res.Fills)
	require.Equal(t, uint64(20), position(t, e, b).Position.BaseFreeNative)
	require.Zero(t, position(t, e, a).Position.BaseFreeNative)
}

func TestFillsScaleByLotSize(t *testing.T) {
	e, _ := newEngine(t, withMarket(lotMarket()))
	a := openAccount(t, e, alice, 0, 400)
	b := openAccount(t, e, bob, 20, 0)

	bid := limitOrder(a, alice, ordertree.Bid, 10, 10)
	bid.MaxQuoteLotsIncludingFees = 100
	res := place(t, e, bid)
	require.True(t, res.Posted)
	require.Zero(t, position(t, e, a).Position.QuoteFreeNative)

	m := e.Market()
	res = place(t, e, PlaceOrderArgs{
		Account: b, Signer: bob, Side: ordertree.Ask, Type: Market,
		MaxBaseLots: 10, MaxQuoteLotsIncludingFees: m.MaxQuoteLots(),
	})
	require.Len(t, res.Fills, 1)
	require.Equal(t, uint64(20), res.TotalBaseTakenNative)
	require.Equal(t, uint64(400), res.TotalQuoteTakenNative)
	require.Equal(t, uint64(400), position(t, e, b).Position.QuoteFreeNative)
	require.Equal(t, uint64(20), position(t, e, a).Position.BaseFreeNative)
}
