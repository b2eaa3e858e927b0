package ordertree

import (
	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"
)

// DefaultCapacity is the number of node slots in a book side arena.
const DefaultCapacity = 1024

const (
	offTreeType     = 0
	offBumpIndex    = 4
	offFreeListLen  = 8
	offFreeListHead = 12
	nodesHeaderSize = 528
)

// NodesSize returns the byte size of an arena holding capacity slots.
func NodesSize(capacity int) int { return nodesHeaderSize + capacity*NodeSize }

// Nodes is an arena of node slots viewed in place over a byte buffer. Any
// number of trees may share one arena, each identified by its Root.
type Nodes struct {
	buf []byte
}

func NewNodes(t TreeType, capacity int) *Nodes {
	n := &Nodes{buf: make([]byte, NodesSize(capacity))}
	n.buf[offTreeType] = byte(t)
	return n
}

// NodesFromBytes views buf as an arena. The capacity follows from the
// buffer length. buf is not copied.
func NodesFromBytes(buf []byte) (*Nodes, error) {
	if len(buf) < NodesSize(1) || (len(buf)-nodesHeaderSize)%NodeSize != 0 {
		return nil, errors.Wrapf(ErrBufferSize, "arena of %d bytes", len(buf))
	}
	if !TreeType(buf[offTreeType]).Valid() {
		return nil, errors.Wrapf(ErrInvalidTreeType, "tag %d", buf[offTreeType])
	}
	n := &Nodes{buf: buf}
	if int(n.bumpIndex()) > n.Capacity() || int(n.freeListLen()) > n.Capacity() {
		return nil, errors.Wrapf(ErrCorrupt, "bump %d free %d capacity %d",
			n.bumpIndex(), n.freeListLen(), n.Capacity())
	}
	return n, nil
}

func (n *Nodes) Bytes() []byte { return n.buf }

func (n *Nodes) TreeType() TreeType { return TreeType(n.buf[offTreeType]) }

func (n *Nodes) Capacity() int { return (len(n.buf) - nodesHeaderSize) / NodeSize }

// FreeSlots is the number of slots still available for allocation.
func (n *Nodes) FreeSlots() int {
	return n.Capacity() - int(n.bumpIndex()) + int(n.freeListLen())
}

// IsFull reports whether an insert might fail. An insert needs up to two
// slots.
func (n *Nodes) IsFull() bool {
	return n.freeListLen() <= 1 && int(n.bumpIndex()) >= n.Capacity()-1
}

func (n *Nodes) bumpIndex() uint32       { return le.Uint32(n.buf[offBumpIndex:]) }
func (n *Nodes) setBumpIndex(v uint32)   { le.PutUint32(n.buf[offBumpIndex:], v) }
func (n *Nodes) freeListLen() uint32     { return le.Uint32(n.buf[offFreeListLen:]) }
func (n *Nodes) setFreeListLen(v uint32) { le.PutUint32(n.buf[offFreeListLen:], v) }
func (n *Nodes) freeListHead() NodeHandle {
	return NodeHandle(le.Uint32(n.buf[offFreeListHead:]))
}
func (n *Nodes) setFreeListHead(h NodeHandle) {
	le.PutUint32(n.buf[offFreeListHead:], uint32(h))
}

func (n *Nodes) slot(h NodeHandle) []byte {
	off := nodesHeaderSize + int(h)*NodeSize
	return n.buf[off : off+NodeSize]
}

// Node decodes the inner or leaf node at h.
func (n *Nodes) Node(h NodeHandle) (NodeRef, error) {
	if int(h) >= n.Capacity() {
		return NodeRef{}, errors.Wrapf(ErrInvalidHandle, "handle %d out of range", h)
	}
	s := n.slot(h)
	switch tag := NodeTag(s[offTag]); tag {
	case TagInner:
		return NodeRef{Tag: tag, Inner: decodeInner(s)}, nil
	case TagLeaf:
		return NodeRef{Tag: tag, Leaf: decodeLeaf(s)}, nil
	default:
		return NodeRef{}, errors.Wrapf(ErrInvalidHandle, "handle %d has tag %d", h, tag)
	}
}

// SetLeafQuantity rewrites the quantity of the leaf at h in place. The
// key and expiry are unchanged, so the tree stays valid.
func (n *Nodes) SetLeafQuantity(h NodeHandle, quantity int64) error {
	if int(h) >= n.Capacity() {
		return errors.Wrapf(ErrInvalidHandle, "handle %d out of range", h)
	}
	s := n.slot(h)
	if NodeTag(s[offTag]) != TagLeaf {
		return errors.Wrapf(ErrInvalidHandle, "handle %d is not a leaf", h)
	}
	le.PutUint64(s[offQuantity:], uint64(quantity))
	return nil
}

// ─── allocation ──────────────────────────────────────────────

func (n *Nodes) alloc(raw *rawNode) (NodeHandle, error) {
	free := n.freeListLen()
	if free == 0 {
		bump := n.bumpIndex()
		if int(bump) >= n.Capacity() {
			return 0, ErrOutOfSpace
		}
		copy(n.slot(NodeHandle(bump)), raw[:])
		n.setBumpIndex(bump + 1)
		return NodeHandle(bump), nil
	}

	h := n.freeListHead()
	s := n.slot(h)
	switch NodeTag(s[offTag]) {
	case TagFree:
		if free <= 1 {
			return 0, errors.Wrapf(ErrCorrupt, "free node %d with free list length %d", h, free)
		}
	case TagLastFree:
		if free != 1 {
			return 0, errors.Wrapf(ErrCorrupt, "last free node %d with free list length %d", h, free)
		}
	default:
		return 0, errors.Wrapf(ErrCorrupt, "free list head %d is in use", h)
	}
	n.setFreeListHead(NodeHandle(le.Uint32(s[offFreeNext:])))
	n.setFreeListLen(free - 1)
	copy(s, raw[:])
	return h, nil
}

// release returns the slot to the free list and hands back its contents.
func (n *Nodes) release(h NodeHandle) (rawNode, error) {
	var old rawNode
	s := n.slot(h)
	copy(old[:], s)
	if t := old.tag(); t != TagInner && t != TagLeaf {
		return old, errors.Wrapf(ErrCorrupt, "release of handle %d with tag %d", h, t)
	}
	tag := TagFree
	if n.freeListLen() == 0 {
		tag = TagLastFree
	}
	encodeFree(s, tag, n.freeListHead())
	n.setFreeListLen(n.freeListLen() + 1)
	n.setFreeListHead(h)
	return old, nil
}

// ─── tree operations ─────────────────────────────────────────

type pathStep struct {
	handle NodeHandle
	crit   int
}

// InsertLeaf adds leaf to the tree at root. It returns the handle of the
// leaf and, if a leaf with the same key was already present, the leaf it
// replaced.
func (n *Nodes) InsertLeaf(root *Root, leaf *LeafNode) (NodeHandle, *LeafNode, error) {
	var leafRaw rawNode
	leaf.encode(leafRaw[:])

	parent, ok := root.Node()
	if !ok {
		h, err := n.alloc(&leafRaw)
		if err != nil {
			return 0, nil, err
		}
		root.MaybeNode = h
		root.LeafCount = 1
		return h, nil, nil
	}

	var stack []pathStep
	for {
		if int(parent) >= n.Capacity() {
			return 0, nil, errors.Wrapf(ErrCorrupt, "child handle %d out of range", parent)
		}
		var parentRaw rawNode
		copy(parentRaw[:], n.slot(parent))
		tag := parentRaw.tag()
		if tag != TagInner && tag != TagLeaf {
			return 0, nil, errors.Wrapf(ErrCorrupt, "node %d has tag %d", parent, tag)
		}
		parentKey := parentRaw.key()

		if tag == TagLeaf && parentKey.Equals(leaf.Key) {
			old := decodeLeaf(parentRaw[:])
			copy(n.slot(parent), leafRaw[:])
			n.updateParentEarliestExpiry(stack, old.Expiry(), leaf.Expiry())
			return parent, &old, nil
		}

		shared := uint32(parentKey.Xor(leaf.Key).LeadingZeros())
		if tag == TagInner {
			inner := decodeInner(parentRaw[:])
			if shared >= inner.PrefixLen {
				child, crit := inner.walkDown(leaf.Key)
				stack = append(stack, pathStep{handle: parent, crit: crit})
				parent = child
				continue
			}
		}

		// The new key leaves the shared prefix of parent here: parent moves
		// to a fresh slot and its own slot becomes the new inner node.
		newCrit := critBit(leaf.Key, shared)
		oldCrit := 1 - newCrit

		leafHandle, err := n.alloc(&leafRaw)
		if err != nil {
			return 0, nil, err
		}
		movedHandle, err := n.alloc(&parentRaw)
		if err != nil {
			if _, rerr := n.release(leafHandle); rerr != nil {
				return 0, nil, errors.CombineErrors(err, rerr)
			}
			return 0, nil, err
		}

		leafExpiry := leaf.Expiry()
		movedExpiry := parentRaw.earliestExpiry()
		inner := NewInnerNode(shared, leaf.Key)
		inner.Children[newCrit] = leafHandle
		inner.Children[oldCrit] = movedHandle
		inner.ChildEarliestExpiry[newCrit] = leafExpiry
		inner.ChildEarliestExpiry[oldCrit] = movedExpiry
		inner.encode(n.slot(parent))

		if leafExpiry < movedExpiry {
			n.updateParentEarliestExpiry(stack, movedExpiry, leafExpiry)
		}
		root.LeafCount++
		return leafHandle, nil, nil
	}
}

// RemoveByKey removes the leaf with the given key and returns it.
func (n *Nodes) RemoveByKey(root *Root, key uint128.Uint128) (LeafNode, error) {
	parent, ok := root.Node()
	if !ok {
		return LeafNode{}, ErrKeyNotFound
	}
	top, err := n.Node(parent)
	if err != nil {
		return LeafNode{}, errors.Wrapf(ErrCorrupt, "%v", err)
	}
	if top.IsLeaf() {
		if !top.Leaf.Key.Equals(key) {
			return LeafNode{}, ErrKeyNotFound
		}
		if root.LeafCount != 1 {
			return LeafNode{}, errors.Wrapf(ErrCorrupt, "leaf root with leaf count %d", root.LeafCount)
		}
		if _, err := n.release(parent); err != nil {
			return LeafNode{}, err
		}
		root.MaybeNode = 0
		root.LeafCount = 0
		return top.Leaf, nil
	}

	child, crit := top.Inner.walkDown(key)
	stack := []pathStep{{handle: parent, crit: crit}}
	parentInner := top.Inner
	for {
		ref, err := n.Node(child)
		if err != nil {
			return LeafNode{}, errors.Wrapf(ErrCorrupt, "%v", err)
		}
		if ref.IsLeaf() {
			if !ref.Leaf.Key.Equals(key) {
				return LeafNode{}, ErrKeyNotFound
			}
			break
		}
		parent = child
		parentInner = ref.Inner
		child, crit = ref.Inner.walkDown(key)
		stack = append(stack, pathStep{handle: parent, crit: crit})
	}

	// Splice parent out: the sibling's contents move into the parent slot.
	sibling, err := n.release(parentInner.Children[1-crit])
	if err != nil {
		return LeafNode{}, err
	}
	copy(n.slot(parent), sibling[:])
	removedRaw, err := n.release(child)
	if err != nil {
		return LeafNode{}, err
	}
	root.LeafCount--

	removed := decodeLeaf(removedRaw[:])
	n.updateParentEarliestExpiry(stack[:len(stack)-1], removed.Expiry(), sibling.earliestExpiry())
	return removed, nil
}

// updateParentEarliestExpiry walks the path back up, replacing the cached
// subtree expiry while it still equals the outdated value.
func (n *Nodes) updateParentEarliestExpiry(stack []pathStep, outdated, updated uint64) {
	for i := len(stack) - 1; i >= 0; i-- {
		s := n.slot(stack[i].handle)
		inner := decodeInner(s)
		crit := stack[i].crit
		if inner.ChildEarliestExpiry[crit] != outdated {
			break
		}
		outdated = inner.EarliestExpiry()
		inner.ChildEarliestExpiry[crit] = updated
		le.PutUint64(s[offChildExpiry+crit*childExpiryStride:], updated)
		updated = inner.EarliestExpiry()
	}
}

// leafMinMax descends always left (min) or always right (max).
func (n *Nodes) leafMinMax(root Root, findMax bool) (NodeHandle, LeafNode, bool) {
	h, ok := root.Node()
	if !ok {
		return 0, LeafNode{}, false
	}
	dir := 0
	if findMax {
		dir = 1
	}
	for {
		ref, err := n.Node(h)
		if err != nil {
			return 0, LeafNode{}, false
		}
		if ref.IsLeaf() {
			return h, ref.Leaf, true
		}
		h = ref.Inner.Children[dir]
	}
}

func (n *Nodes) MinLeaf(root Root) (NodeHandle, LeafNode, bool) { return n.leafMinMax(root, false) }

func (n *Nodes) MaxLeaf(root Root) (NodeHandle, LeafNode, bool) { return n.leafMinMax(root, true) }

// FindWorst returns the order furthest from the top of the book.
func (n *Nodes) FindWorst(root Root) (NodeHandle, LeafNode, bool) {
	if n.TreeType() == Bids {
		return n.MinLeaf(root)
	}
	return n.MaxLeaf(root)
}

func (n *Nodes) RemoveWorst(root *Root) (LeafNode, bool) {
	_, worst, ok := n.FindWorst(*root)
	if !ok {
		return LeafNode{}, false
	}
	leaf, err := n.RemoveByKey(root, worst.Key)
	return leaf, err == nil
}

// FindEarliestExpiry returns the handle and expiry of the leaf that
// expires first, following the cached subtree expiries.
func (n *Nodes) FindEarliestExpiry(root Root) (NodeHandle, uint64, bool) {
	h, ok := root.Node()
	if !ok {
		return 0, 0, false
	}
	for {
		ref, err := n.Node(h)
		if err != nil {
			return 0, 0, false
		}
		if ref.IsLeaf() {
			return h, ref.Leaf.Expiry(), true
		}
		exp := ref.Inner.ChildEarliestExpiry
		if exp[0] > exp[1] {
			h = ref.Inner.Children[1]
		} else {
			h = ref.Inner.Children[0]
		}
	}
}

// RemoveOneExpired removes the earliest expiring leaf if it has expired by
// now.
func (n *Nodes) RemoveOneExpired(root *Root, now uint64) (LeafNode, bool) {
	h, expiry, ok := n.FindEarliestExpiry(*root)
	if !ok || now < expiry {
		return LeafNode{}, false
	}
	ref, err := n.Node(h)
	if err != nil {
		return LeafNode{}, false
	}
	leaf, err := n.RemoveByKey(root, ref.Leaf.Key)
	return leaf, err == nil
}

// Iter returns an in-order iterator over the tree at root, best price
// first for the arena's side.
func (n *Nodes) Iter(root Root) *Iter {
	return newIter(n, root)
}
