package ordertree

import "iter"

// Iter walks the leaves of one tree in price-time priority: descending
// keys for bids, ascending keys for asks. It is single pass.
type Iter struct {
	nodes *Nodes
	side  Side
	// stack holds inner nodes whose far child is still to be visited.
	stack []InnerNode
	next  struct {
		handle NodeHandle
		leaf   LeafNode
		ok     bool
	}
	left, right int
	err         error
}

func newIter(nodes *Nodes, root Root) *Iter {
	it := &Iter{nodes: nodes, side: nodes.TreeType().Side(), left: 0, right: 1}
	if it.side == Bid {
		it.left, it.right = 1, 0
	}
	if h, ok := root.Node(); ok {
		it.findLeftmostLeaf(h)
	}
	return it
}

func (it *Iter) Side() Side { return it.side }

// Err reports a structural problem that ended the walk early.
func (it *Iter) Err() error { return it.err }

func (it *Iter) findLeftmostLeaf(start NodeHandle) {
	h := start
	for {
		ref, err := it.nodes.Node(h)
		if err != nil {
			it.err = err
			it.next.ok = false
			return
		}
		if ref.IsLeaf() {
			it.next.handle, it.next.leaf, it.next.ok = h, ref.Leaf, true
			return
		}
		it.stack = append(it.stack, ref.Inner)
		h = ref.Inner.Children[it.left]
	}
}

// Peek returns the leaf the next call to Next will return.
func (it *Iter) Peek() (NodeHandle, LeafNode, bool) {
	return it.next.handle, it.next.leaf, it.next.ok
}

// Next returns the current leaf and advances.
func (it *Iter) Next() (NodeHandle, LeafNode, bool) {
	if !it.next.ok {
		return 0, LeafNode{}, false
	}
	h, leaf := it.next.handle, it.next.leaf
	it.next.ok = false
	if n := len(it.stack); n > 0 {
		parent := it.stack[n-1]
		it.stack = it.stack[:n-1]
		it.findLeftmostLeaf(parent.Children[it.right])
	}
	return h, leaf, true
}

// All adapts the remaining leaves to a range-over-func sequence.
func (it *Iter) All() iter.Seq2[NodeHandle, LeafNode] {
	return func(yield func(NodeHandle, LeafNode) bool) {
		for {
			h, leaf, ok := it.Next()
			if !ok || !yield(h, leaf) {
				return
			}
		}
	}
}
