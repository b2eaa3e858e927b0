package ordertree

import (
	"iter"

	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"
)

const (
	offRoots         = 0
	reservedRoots    = 4
	bookSideReserved = 256
	bookSideHeader   = (2+reservedRoots)*RootSize + bookSideReserved
)

// BookSideSize returns the byte size of a book side with capacity slots.
func BookSideSize(capacity int) int { return bookSideHeader + NodesSize(capacity) }

// BookSide holds the resting orders of one side of a market: a fixed price
// tree and an oracle pegged tree sharing one arena.
type BookSide struct {
	buf   []byte
	nodes *Nodes
}

func NewBookSide(t TreeType, capacity int) *BookSide {
	buf := make([]byte, BookSideSize(capacity))
	buf[bookSideHeader+offTreeType] = byte(t)
	return &BookSide{buf: buf, nodes: &Nodes{buf: buf[bookSideHeader:]}}
}

// BookSideFromBytes views buf as a book side without copying it.
func BookSideFromBytes(buf []byte) (*BookSide, error) {
	if len(buf) <= bookSideHeader {
		return nil, errors.Wrapf(ErrBufferSize, "book side of %d bytes", len(buf))
	}
	nodes, err := NodesFromBytes(buf[bookSideHeader:])
	if err != nil {
		return nil, err
	}
	return &BookSide{buf: buf, nodes: nodes}, nil
}

func (b *BookSide) Bytes() []byte { return b.buf }

func (b *BookSide) Nodes() *Nodes { return b.nodes }

func (b *BookSide) Side() Side { return b.nodes.TreeType().Side() }

func (b *BookSide) Root(c BookSideOrderTree) Root {
	return decodeRoot(b.buf[offRoots+int(c)*RootSize:])
}

func (b *BookSide) setRoot(c BookSideOrderTree, r Root) {
	r.encode(b.buf[offRoots+int(c)*RootSize:])
}

func (b *BookSide) Node(h NodeHandle) (NodeRef, error) { return b.nodes.Node(h) }

func (b *BookSide) IsFull() bool { return b.nodes.IsFull() }

func (b *BookSide) IsEmpty() bool {
	return b.Root(Fixed).LeafCount == 0 && b.Root(OraclePegged).LeafCount == 0
}

func (b *BookSide) InsertLeaf(c BookSideOrderTree, leaf *LeafNode) (NodeHandle, *LeafNode, error) {
	root := b.Root(c)
	h, old, err := b.nodes.InsertLeaf(&root, leaf)
	b.setRoot(c, root)
	return h, old, err
}

func (b *BookSide) SetLeafQuantity(h NodeHandle, quantity int64) error {
	return b.nodes.SetLeafQuantity(h, quantity)
}

func (b *BookSide) RemoveByKey(c BookSideOrderTree, key uint128.Uint128) (LeafNode, error) {
	root := b.Root(c)
	leaf, err := b.nodes.RemoveByKey(&root, key)
	b.setRoot(c, root)
	return leaf, err
}

// RemoveWorst removes the order furthest from the top of the book across
// both trees and returns it with its current price. Pegged orders are only
// candidates when an oracle price is available.
func (b *BookSide) RemoveWorst(now uint64, oracle OraclePrice) (LeafNode, int64, bool) {
	fh, fl, fok := b.nodes.FindWorst(b.Root(Fixed))
	var pegged *candidate
	if oracle.Valid {
		if ph, pl, ok := b.nodes.FindWorst(b.Root(OraclePegged)); ok {
			pegged = &candidate{handle: ph, leaf: pl}
		}
	}
	var fixed *candidate
	if fok {
		fixed = &candidate{handle: fh, leaf: fl}
	}
	worse, ok := rankOrders(b.Side(), fixed, pegged, true, now, oracle.Lots)
	if !ok {
		return LeafNode{}, 0, false
	}
	leaf, err := b.RemoveByKey(worse.Tree, worse.Leaf.Key)
	if err != nil {
		return LeafNode{}, 0, false
	}
	return leaf, worse.PriceLots, true
}

// RemoveOneExpired removes the earliest expired order of component c, or
// failing that of the other component.
func (b *BookSide) RemoveOneExpired(c BookSideOrderTree, now uint64) (LeafNode, bool) {
	for _, tree := range []BookSideOrderTree{c, c.other()} {
		root := b.Root(tree)
		leaf, ok := b.nodes.RemoveOneExpired(&root, now)
		if ok {
			b.setRoot(tree, root)
			return leaf, true
		}
	}
	return LeafNode{}, false
}

// Iter walks both trees merged in matching order, including invalid orders.
func (b *BookSide) Iter(now uint64, oracle OraclePrice) *BookSideIter {
	return newBookSideIter(b, now, oracle)
}

// IterValid walks both trees merged in matching order, yielding only orders
// that can currently be matched.
func (b *BookSide) IterValid(now uint64, oracle OraclePrice) iter.Seq[BookSideItem] {
	return func(yield func(BookSideItem) bool) {
		for item := range b.Iter(now, oracle).All() {
			if item.IsValid() && !yield(item) {
				return
			}
		}
	}
}

// BestPrice returns the price of the order closest to the spread.
func (b *BookSide) BestPrice(now uint64, oracle OraclePrice) (int64, bool) {
	for item := range b.IterValid(now, oracle) {
		return item.PriceLots, true
	}
	return 0, false
}

// QuantityAtPrice returns the quantity an order at limitPriceLots could
// match against.
func (b *BookSide) QuantityAtPrice(limitPriceLots int64, now uint64, oracle OraclePrice) int64 {
	side := b.Side()
	var sum int64
	for item := range b.IterValid(now, oracle) {
		if side.IsPriceBetter(limitPriceLots, item.PriceLots) {
			break
		}
		sum += item.Leaf.Quantity
	}
	return sum
}

// ImpactPrice walks the book for quantity lots and returns the price of
// the level where it is filled.
func (b *BookSide) ImpactPrice(quantity int64, now uint64, oracle OraclePrice) (int64, bool) {
	var sum int64
	for item := range b.IterValid(now, oracle) {
		sum += item.Leaf.Quantity
		if sum >= quantity {
			return item.PriceLots, true
		}
	}
	return 0, false
}
