package ordertree

import (
	"iter"
	"math"
)

// OraclePrice is an optional oracle price in lots. Oracle pegged orders are
// not visible without one.
type OraclePrice struct {
	Lots  int64
	Valid bool
}

func WithOracle(lots int64) OraclePrice { return OraclePrice{Lots: lots, Valid: true} }

var NoOracle = OraclePrice{}

type OrderState uint8

const (
	Valid OrderState = iota
	// Invalid orders are expired or beyond their peg limit and should be
	// removed from the book.
	Invalid
	// Skipped orders have a pegged price outside 1..MaxInt64 at the current
	// oracle price. They may become valid later.
	Skipped
)

func (s OrderState) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "skipped"
	}
}

type BookSideItem struct {
	Handle    NodeHandle
	Tree      BookSideOrderTree
	Leaf      LeafNode
	PriceLots int64
	State     OrderState
}

func (i BookSideItem) IsValid() bool { return i.State == Valid }

type candidate struct {
	handle NodeHandle
	leaf   LeafNode
}

// BookSideIter merges the fixed and pegged trees of a book side.
type BookSideIter struct {
	fixed  *Iter
	pegged *Iter
	now    uint64
	oracle OraclePrice
}

func newBookSideIter(b *BookSide, now uint64, oracle OraclePrice) *BookSideIter {
	it := &BookSideIter{
		fixed:  b.nodes.Iter(b.Root(Fixed)),
		now:    now,
		oracle: oracle,
	}
	if oracle.Valid {
		it.pegged = b.nodes.Iter(b.Root(OraclePegged))
	}
	return it
}

// Err reports corruption found by either tree walk.
func (it *BookSideIter) Err() error {
	if err := it.fixed.Err(); err != nil {
		return err
	}
	if it.pegged != nil {
		return it.pegged.Err()
	}
	return nil
}

func (it *BookSideIter) Next() (BookSideItem, bool) {
	side := it.fixed.Side()

	var pegged *candidate
	if it.pegged != nil {
		for {
			h, leaf, ok := it.pegged.Peek()
			if !ok {
				break
			}
			if st, _ := oraclePeggedPrice(it.oracle.Lots, leaf, side); st != Skipped {
				pegged = &candidate{handle: h, leaf: leaf}
				break
			}
			it.pegged.Next()
		}
	}
	var fixed *candidate
	if h, leaf, ok := it.fixed.Peek(); ok {
		fixed = &candidate{handle: h, leaf: leaf}
	}

	better, ok := rankOrders(side, fixed, pegged, false, it.now, it.oracle.Lots)
	if !ok {
		return BookSideItem{}, false
	}
	if better.Tree == Fixed {
		it.fixed.Next()
	} else {
		it.pegged.Next()
	}
	return better, true
}

func (it *BookSideIter) All() iter.Seq[BookSideItem] {
	return func(yield func(BookSideItem) bool) {
		for {
			item, ok := it.Next()
			if !ok || !yield(item) {
				return
			}
		}
	}
}

// oraclePeggedPrice returns the state and current price of a pegged order.
// Prices outside 1..MaxInt64 are Skipped and clamped to at least 1.
func oraclePeggedPrice(oracleLots int64, leaf LeafNode, side Side) (OrderState, int64) {
	offset := OraclePeggedPriceOffset(leaf.PriceData())
	price := saturatingAdd(oracleLots, offset)
	if price >= 1 && price < math.MaxInt64 {
		if leaf.PegLimit != -1 && side.IsPriceBetter(price, leaf.PegLimit) {
			return Invalid, price
		}
		return Valid, price
	}
	return Skipped, max(price, 1)
}

func saturatingAdd(a, b int64) int64 {
	s := a + b
	switch {
	case b > 0 && s < a:
		return math.MaxInt64
	case b < 0 && s > a:
		return math.MinInt64
	}
	return s
}

func fixedItem(c *candidate, now uint64) BookSideItem {
	state := Valid
	if c.leaf.IsExpired(now) {
		state = Invalid
	}
	return BookSideItem{
		Handle:    c.handle,
		Tree:      Fixed,
		Leaf:      c.leaf,
		PriceLots: FixedPriceLots(c.leaf.PriceData()),
		State:     state,
	}
}

func peggedItem(c *candidate, side Side, oracleLots int64, now uint64) BookSideItem {
	state, price := oraclePeggedPrice(oracleLots, c.leaf, side)
	if c.leaf.IsExpired(now) {
		state = Invalid
	}
	return BookSideItem{
		Handle:    c.handle,
		Tree:      OraclePegged,
		Leaf:      c.leaf,
		PriceLots: price,
		State:     state,
	}
}

// rankOrders returns whichever of the two candidates matches first, or the
// one that matches last when returnWorse is set.
func rankOrders(side Side, fixed, pegged *candidate, returnWorse bool, now uint64, oracleLots int64) (BookSideItem, bool) {
	switch {
	case fixed != nil && pegged != nil:
		p := peggedItem(pegged, side, oracleLots, now)
		peggedKey := keyForFixedPrice(pegged.leaf.Key, p.PriceLots)
		var better bool
		if side == Bid {
			better = fixed.leaf.Key.Cmp(peggedKey) > 0
		} else {
			better = fixed.leaf.Key.Cmp(peggedKey) < 0
		}
		if better != returnWorse {
			return fixedItem(fixed, now), true
		}
		return p, true
	case pegged != nil:
		return peggedItem(pegged, side, oracleLots, now), true
	case fixed != nil:
		return fixedItem(fixed, now), true
	}
	return BookSideItem{}, false
}
