package account

import (
	"lukechampine.com/uint128"

	"clob/domain/ordertree"
)

// OpenOrder is one slot of the order table. A zero ID marks a free slot.
type OpenOrder struct {
	SideAndTree ordertree.SideAndOrderTree
	// ID is the key of the order in the book.
	ID       uint128.Uint128
	ClientID uint64
	// PegLimit is the peg limit of an oracle pegged order, -1 for none.
	PegLimit int64
}

const (
	ooSideAndTree = 0
	ooID          = 8
	ooClientID    = 24
	ooPegLimit    = 32
)

func (o OpenOrder) IsFree() bool { return o.ID.IsZero() }

func (o OpenOrder) Side() ordertree.Side { return o.SideAndTree.Side() }

func (o OpenOrder) OrderTree() ordertree.BookSideOrderTree { return o.SideAndTree.OrderTree() }

// LockedPrice is the price, in lots, at which funds were locked for the
// order: the peg limit of pegged orders, the price of fixed ones.
func (o OpenOrder) LockedPrice() int64 {
	if o.OrderTree() == ordertree.OraclePegged {
		return o.PegLimit
	}
	return ordertree.FixedPriceLots(o.ID.Hi)
}

func (o OpenOrder) encode(b []byte) {
	clear(b[:OpenOrderSize])
	b[ooSideAndTree] = byte(o.SideAndTree)
	o.ID.PutBytes(b[ooID:])
	le.PutUint64(b[ooClientID:], o.ClientID)
	le.PutUint64(b[ooPegLimit:], uint64(o.PegLimit))
}

func decodeOpenOrder(b []byte) OpenOrder {
	return OpenOrder{
		SideAndTree: ordertree.SideAndOrderTree(b[ooSideAndTree]),
		ID:          uint128.FromBytes(b[ooID:]),
		ClientID:    le.Uint64(b[ooClientID:]),
		PegLimit:    int64(le.Uint64(b[ooPegLimit:])),
	}
}
