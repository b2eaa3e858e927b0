package ordertree

import (
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

// bookSideSetup builds a bid side with two fixed orders (100, 120 expiring
// at 1005) and three pegged orders (-10 limited to 100, -15 unlimited, -20
// limited to 95 expiring at 1007).
func bookSideSetup(t *testing.T) *BookSide {
	b := NewBookSide(Bids, 64)
	addFixed := func(price int64, tif uint16) {
		data, err := FixedPriceData(price)
		require.NoError(t, err)
		leaf := NewLeafNode(0, NewNodeKey(Bid, data, 0), solana.PublicKey{}, 0, 1000, tif, -1, 0)
		_, _, err = b.InsertLeaf(Fixed, &leaf)
		require.NoError(t, err)
	}
	addPegged := func(offset int64, tif uint16, pegLimit int64) {
		leaf := NewLeafNode(0, NewNodeKey(Bid, OraclePeggedPriceData(offset), 0), solana.PublicKey{}, 0, 1000, tif, pegLimit, 0)
		_, _, err := b.InsertLeaf(OraclePegged, &leaf)
		require.NoError(t, err)
	}
	addFixed(100, 0)
	addFixed(120, 5)
	addPegged(-10, 0, 100)
	addPegged(-15, 0, -1)
	addPegged(-20, 7, 95)
	return b
}

func validPrices(b *BookSide, now uint64, oracle int64) []int64 {
	out := []int64{}
	for item := range b.IterValid(now, WithOracle(oracle)) {
		out = append(out, item.PriceLots)
	}
	return out
}

func TestBookSideOrderFiltering(t *testing.T) {
	b := bookSideSetup(t)

	for _, tt := range []struct {
		now    uint64
		oracle int64
		want   []int64
	}{
		{0, 100, []int64{120, 100, 90, 85, 80}},
		{1004, 100, []int64{120, 100, 90, 85, 80}},
		{1005, 100, []int64{100, 90, 85, 80}},
		{1006, 100, []int64{100, 90, 85, 80}},
		{1007, 100, []int64{100, 90, 85}},
		{0, 110, []int64{120, 100, 100, 95, 90}},
		{0, 111, []int64{120, 100, 96, 91}},
		{0, 115, []int64{120, 100, 100, 95}},
		{0, 116, []int64{120, 101, 100}},
		{0, 2015, []int64{2000, 120, 100}},
		{1010, 2015, []int64{2000, 100}},
	} {
		assert.Equal(t, tt.want, validPrices(b, tt.now, tt.oracle), "now=%d oracle=%d", tt.now, tt.oracle)
	}
}

func TestBookSideRemoveWorst(t *testing.T) {
	b := bookSideSetup(t)

	require.Equal(t, []int64{120, 100, 90, 85, 80}, validPrices(b, 0, 100))
	_, p, ok := b.RemoveWorst(0, WithOracle(100))
	require.True(t, ok)
	require.Equal(t, int64(80), p)
	require.Equal(t, []int64{120, 100, 90, 85}, validPrices(b, 0, 100))

	// the pegged order at 200-10 is beyond its peg limit
	require.Equal(t, []int64{185, 120, 100}, validPrices(b, 0, 200))
	_, p, ok = b.RemoveWorst(0, WithOracle(200))
	require.True(t, ok)
	require.Equal(t, int64(100), p)
	require.Equal(t, []int64{185, 120}, validPrices(b, 0, 200))

	require.Equal(t, []int64{120, 90, 85}, validPrices(b, 0, 100))
	for _, want := range []int64{85, 90, 120} {
		_, p, ok = b.RemoveWorst(0, WithOracle(100))
		require.True(t, ok)
		require.Equal(t, want, p)
	}
	require.Empty(t, validPrices(b, 0, 100))
	require.True(t, b.IsEmpty())

	_, _, ok = b.RemoveWorst(0, WithOracle(100))
	require.False(t, ok)
}

func TestBookSideWithoutOracle(t *testing.T) {
	b := bookSideSetup(t)

	var got []int64
	for item := range b.IterValid(0, NoOracle) {
		require.Equal(t, Fixed, item.Tree)
		got = append(got, item.PriceLots)
	}
	require.Equal(t, []int64{120, 100}, got)

	_, p, ok := b.RemoveWorst(0, NoOracle)
	require.True(t, ok)
	require.Equal(t, int64(100), p)
	require.Equal(t, uint32(3), b.Root(OraclePegged).LeafCount)
}

func TestBookSideQueries(t *testing.T) {
	b := NewBookSide(Asks, 64)
	for i, o := range []struct {
		price, qty int64
	}{{10, 5}, {11, 3}, {11, 2}, {14, 10}} {
		data, err := FixedPriceData(o.price)
		require.NoError(t, err)
		leaf := NewLeafNode(uint8(i), NewNodeKey(Ask, data, uint64(i)), solana.PublicKey{}, o.qty, 0, 0, -1, 0)
		_, _, err = b.InsertLeaf(Fixed, &leaf)
		require.NoError(t, err)
	}

	best, ok := b.BestPrice(0, NoOracle)
	require.True(t, ok)
	require.Equal(t, int64(10), best)

	require.Equal(t, int64(0), b.QuantityAtPrice(9, 0, NoOracle))
	require.Equal(t, int64(10), b.QuantityAtPrice(11, 0, NoOracle))
	require.Equal(t, int64(20), b.QuantityAtPrice(100, 0, NoOracle))

	impact, ok := b.ImpactPrice(8, 0, NoOracle)
	require.True(t, ok)
	require.Equal(t, int64(11), impact)
	_, ok = b.ImpactPrice(21, 0, NoOracle)
	require.False(t, ok)

	_, ok = NewBookSide(Bids, 4).BestPrice(0, NoOracle)
	require.False(t, ok)
}

func TestBookSideRemoveOneExpired(t *testing.T) {
	b := bookSideSetup(t)

	_, ok := b.RemoveOneExpired(Fixed, 1004)
	require.False(t, ok)

	// nothing expired in the pegged tree yet, falls back to fixed
	leaf, ok := b.RemoveOneExpired(OraclePegged, 1005)
	require.True(t, ok)
	require.Equal(t, uint64(120), leaf.PriceData())
	require.Equal(t, uint32(1), b.Root(Fixed).LeafCount)

	leaf, ok = b.RemoveOneExpired(Fixed, 1007)
	require.True(t, ok)
	require.Equal(t, int64(-20), OraclePeggedPriceOffset(leaf.PriceData()))
	require.Equal(t, uint32(2), b.Root(OraclePegged).LeafCount)
}

func TestBookSideFromBytes(t *testing.T) {
	b := bookSideSetup(t)
	view, err := BookSideFromBytes(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, b.Root(Fixed), view.Root(Fixed))
	require.Equal(t, validPrices(b, 0, 100), validPrices(view, 0, 100))
	require.Equal(t, BookSideSize(64), len(view.Bytes()))
	require.Equal(t, 90944, BookSideSize(DefaultCapacity))
	require.Equal(t, 90640, NodesSize(DefaultCapacity))

	_, err = BookSideFromBytes(make([]byte, 100))
	require.ErrorIs(t, err, ErrBufferSize)
}

func TestBookSideIterationRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, side := range []Side{Bid, Ask} {
		b := NewBookSide(TreeTypeFor(side), 512)
		seen := map[uint128.Uint128]bool{}
		add := func(c BookSideOrderTree, key uint128.Uint128) {
			seen[key] = true
			leaf := NewLeafNode(0, key, solana.PublicKey{}, 0, 1, 0, -1, 0)
			_, _, err := b.InsertLeaf(c, &leaf)
			require.NoError(t, err)
		}

		// keeps one pegged order visible even at oracle price 1
		add(OraclePegged, NewNodeKey(side, OraclePeggedPriceData(20), 0))
		for b.Root(OraclePegged).LeafCount < 100 {
			key := NewNodeKey(side, OraclePeggedPriceData(rng.Int63n(40)-20), uint64(rng.Intn(1000)))
			if !seen[key] {
				add(OraclePegged, key)
			}
		}
		for b.Root(Fixed).LeafCount < 100 {
			key := NewNodeKey(side, uint64(rng.Intn(49)+1), uint64(rng.Intn(1000)))
			if !seen[key] {
				add(Fixed, key)
			}
		}

		for oracle := int64(1); oracle < 40; oracle++ {
			total := 0
			last := int64(0)
			if side == Bid {
				last = 1<<63 - 1
			}
			for item := range b.Iter(0, WithOracle(oracle)).All() {
				if side == Ask {
					require.GreaterOrEqual(t, item.PriceLots, last)
				} else {
					require.LessOrEqual(t, item.PriceLots, last)
				}
				last = item.PriceLots
				total++
			}
			require.GreaterOrEqual(t, total, 101)
			if oracle > 20 {
				require.Equal(t, 200, total)
			}
		}
	}
}
