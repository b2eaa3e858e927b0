package ordertree

import (
	"encoding/binary"
	"math"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// NodeHandle is the index of a slot in an arena.
type NodeHandle uint32

type NodeTag uint8

const (
	TagUninitialized NodeTag = iota
	TagInner
	TagLeaf
	TagFree
	TagLastFree
)

// NodeSize is the size of every node slot.
const NodeSize = 88

const (
	offTag            = 0
	offOwnerSlot      = 1
	offTimeInForce    = 2
	offPrefixLen      = 4
	offFreeNext       = 4
	offKey            = 8
	offChildren       = 24
	offChildExpiry    = 32
	offOwner          = 24
	offQuantity       = 56
	offTimestamp      = 64
	offPegLimit       = 72
	offClientOrderID  = 80
	childExpiryStride = 8
)

var le = binary.LittleEndian

// InnerNode is a crit-bit node. Both children share the top PrefixLen bits
// of their keys; children[0] has a 0 at the next bit, children[1] a 1.
type InnerNode struct {
	PrefixLen uint32
	Key       uint128.Uint128
	Children  [2]NodeHandle
	// ChildEarliestExpiry caches the smallest leaf expiry of each subtree.
	ChildEarliestExpiry [2]uint64
}

func NewInnerNode(prefixLen uint32, key uint128.Uint128) InnerNode {
	return InnerNode{
		PrefixLen:           prefixLen,
		Key:                 key,
		ChildEarliestExpiry: [2]uint64{math.MaxUint64, math.MaxUint64},
	}
}

func (n InnerNode) EarliestExpiry() uint64 {
	return min(n.ChildEarliestExpiry[0], n.ChildEarliestExpiry[1])
}

// walkDown returns the child the key descends into and its index.
func (n InnerNode) walkDown(key uint128.Uint128) (NodeHandle, int) {
	crit := critBit(key, n.PrefixLen)
	return n.Children[crit], crit
}

func critBit(key uint128.Uint128, prefixLen uint32) int {
	mask := uint128.From64(1).Lsh(127 - uint(prefixLen))
	if key.And(mask).IsZero() {
		return 0
	}
	return 1
}

func (n InnerNode) encode(b []byte) {
	clear(b[:NodeSize])
	b[offTag] = byte(TagInner)
	le.PutUint32(b[offPrefixLen:], n.PrefixLen)
	n.Key.PutBytes(b[offKey:])
	le.PutUint32(b[offChildren:], uint32(n.Children[0]))
	le.PutUint32(b[offChildren+4:], uint32(n.Children[1]))
	le.PutUint64(b[offChildExpiry:], n.ChildEarliestExpiry[0])
	le.PutUint64(b[offChildExpiry+childExpiryStride:], n.ChildEarliestExpiry[1])
}

func decodeInner(b []byte) InnerNode {
	return InnerNode{
		PrefixLen: le.Uint32(b[offPrefixLen:]),
		Key:       uint128.FromBytes(b[offKey:]),
		Children: [2]NodeHandle{
			NodeHandle(le.Uint32(b[offChildren:])),
			NodeHandle(le.Uint32(b[offChildren+4:])),
		},
		ChildEarliestExpiry: [2]uint64{
			le.Uint64(b[offChildExpiry:]),
			le.Uint64(b[offChildExpiry+childExpiryStride:]),
		},
	}
}

// LeafNode is a resting order.
type LeafNode struct {
	// OwnerSlot is the index of the order in the owner's open-orders account.
	OwnerSlot uint8
	// TimeInForce is in seconds after Timestamp; 0 means the order never
	// expires.
	TimeInForce uint16
	Key         uint128.Uint128
	Owner       solana.PublicKey
	Quantity    int64
	Timestamp   uint64
	// PegLimit is the worst price an oracle pegged order may trade at, -1
	// for none.
	PegLimit      int64
	ClientOrderID uint64
}

func NewLeafNode(ownerSlot uint8, key uint128.Uint128, owner solana.PublicKey, quantity int64,
	timestamp uint64, timeInForce uint16, pegLimit int64, clientOrderID uint64) LeafNode {
	return LeafNode{
		OwnerSlot:     ownerSlot,
		TimeInForce:   timeInForce,
		Key:           key,
		Owner:         owner,
		Quantity:      quantity,
		Timestamp:     timestamp,
		PegLimit:      pegLimit,
		ClientOrderID: clientOrderID,
	}
}

// PriceData is the upper 64 bits of the key.
func (l LeafNode) PriceData() uint64 { return l.Key.Hi }

// Expiry is the first timestamp at which the order is expired.
func (l LeafNode) Expiry() uint64 {
	if l.TimeInForce == 0 {
		return math.MaxUint64
	}
	return l.Timestamp + uint64(l.TimeInForce)
}

func (l LeafNode) IsExpired(now uint64) bool {
	return l.TimeInForce > 0 && now >= l.Timestamp+uint64(l.TimeInForce)
}

func (l LeafNode) encode(b []byte) {
	clear(b[:NodeSize])
	b[offTag] = byte(TagLeaf)
	b[offOwnerSlot] = l.OwnerSlot
	le.PutUint16(b[offTimeInForce:], l.TimeInForce)
	l.Key.PutBytes(b[offKey:])
	copy(b[offOwner:offOwner+32], l.Owner[:])
	le.PutUint64(b[offQuantity:], uint64(l.Quantity))
	le.PutUint64(b[offTimestamp:], l.Timestamp)
	le.PutUint64(b[offPegLimit:], uint64(l.PegLimit))
	le.PutUint64(b[offClientOrderID:], l.ClientOrderID)
}

func decodeLeaf(b []byte) LeafNode {
	l := LeafNode{
		OwnerSlot:     b[offOwnerSlot],
		TimeInForce:   le.Uint16(b[offTimeInForce:]),
		Key:           uint128.FromBytes(b[offKey:]),
		Quantity:      int64(le.Uint64(b[offQuantity:])),
		Timestamp:     le.Uint64(b[offTimestamp:]),
		PegLimit:      int64(le.Uint64(b[offPegLimit:])),
		ClientOrderID: le.Uint64(b[offClientOrderID:]),
	}
	copy(l.Owner[:], b[offOwner:offOwner+32])
	return l
}

func encodeFree(b []byte, tag NodeTag, next NodeHandle) {
	clear(b[:NodeSize])
	b[offTag] = byte(tag)
	le.PutUint32(b[offFreeNext:], uint32(next))
}

// rawNode is an owned copy of a slot, used to move nodes between slots.
type rawNode [NodeSize]byte

func (r *rawNode) tag() NodeTag { return NodeTag(r[offTag]) }

func (r *rawNode) key() uint128.Uint128 { return uint128.FromBytes(r[offKey:]) }

func (r *rawNode) earliestExpiry() uint64 {
	if r.tag() == TagLeaf {
		return decodeLeaf(r[:]).Expiry()
	}
	return decodeInner(r[:]).EarliestExpiry()
}

// NodeRef is a decoded, tagged view of an inner or leaf slot.
type NodeRef struct {
	Tag   NodeTag
	Inner InnerNode
	Leaf  LeafNode
}

func (r NodeRef) IsLeaf() bool { return r.Tag == TagLeaf }

func (r NodeRef) Key() uint128.Uint128 {
	if r.IsLeaf() {
		return r.Leaf.Key
	}
	return r.Inner.Key
}

func (r NodeRef) EarliestExpiry() uint64 {
	if r.IsLeaf() {
		return r.Leaf.Expiry()
	}
	return r.Inner.EarliestExpiry()
}

// Root points at the top node of one tree in an arena.
type Root struct {
	MaybeNode NodeHandle
	LeafCount uint32
}

// RootSize is the encoded size of a Root.
const RootSize = 8

func (r Root) Node() (NodeHandle, bool) {
	if r.LeafCount == 0 {
		return 0, false
	}
	return r.MaybeNode, true
}

func (r Root) encode(b []byte) {
	le.PutUint32(b[0:], uint32(r.MaybeNode))
	le.PutUint32(b[4:], r.LeafCount)
}

func decodeRoot(b []byte) Root {
	return Root{MaybeNode: NodeHandle(le.Uint32(b[0:])), LeafCount: le.Uint32(b[4:])}
}
