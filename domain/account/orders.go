package account

import (
	"iter"

	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"

	"clob/domain/market"
	"clob/domain/ordertree"
)

var ErrOrderSlotInUse = errors.New("account: order slot in use")

func (a *Account) slot(i int) []byte {
	off := ordersOff + i*OpenOrderSize
	return a.buf[off : off+OpenOrderSize]
}

// OrderByRawIndex decodes slot i. The caller keeps i < OOCount().
func (a *Account) OrderByRawIndex(i int) OpenOrder {
	return decodeOpenOrder(a.slot(i))
}

// SetOrderByRawIndex overwrites slot i. The caller keeps i < OOCount().
func (a *Account) SetOrderByRawIndex(i int, oo OpenOrder) {
	oo.encode(a.slot(i))
}

func (a *Account) checkSlot(i int) error {
	if i < 0 || i >= a.ooCount {
		return errors.Wrapf(ErrSlotOutOfRange, "slot %d of %d", i, a.ooCount)
	}
	return nil
}

// AllOrders yields every slot, free or not, in index order.
func (a *Account) AllOrders() iter.Seq2[int, OpenOrder] {
	return func(yield func(int, OpenOrder) bool) {
		for i := 0; i < a.ooCount; i++ {
			if !yield(i, a.OrderByRawIndex(i)) {
				return
			}
		}
	}
}

func (a *Account) AllOrdersInUse() iter.Seq2[int, OpenOrder] {
	return func(yield func(int, OpenOrder) bool) {
		for i, oo := range a.AllOrders() {
			if !oo.IsFree() && !yield(i, oo) {
				return
			}
		}
	}
}

func (a *Account) HasNoOrders() bool {
	for range a.AllOrdersInUse() {
		return false
	}
	return true
}

// NextOrderSlot returns the lowest free slot.
func (a *Account) NextOrderSlot() (int, error) {
	for i, oo := range a.AllOrders() {
		if oo.IsFree() {
			return i, nil
		}
	}
	return 0, ErrNoFreeOrderIndex
}

func (a *Account) FindOrderWithClientOrderID(clientOrderID uint64) (int, OpenOrder, bool) {
	for i, oo := range a.AllOrdersInUse() {
		if oo.ClientID == clientOrderID {
			return i, oo, true
		}
	}
	return 0, OpenOrder{}, false
}

func (a *Account) FindOrderWithOrderID(id uint128.Uint128) (int, OpenOrder, bool) {
	for i, oo := range a.AllOrdersInUse() {
		if oo.ID.Equals(id) {
			return i, oo, true
		}
	}
	return 0, OpenOrder{}, false
}

// AddOrder records a resting order in slot leaf.OwnerSlot and locks its
// base lots, plus quote lots for bids at the order's locked price.
func (a *Account) AddOrder(side ordertree.Side, tree ordertree.BookSideOrderTree, leaf *ordertree.LeafNode,
	clientOrderID uint64, pegLimit int64) error {
	slot := int(leaf.OwnerSlot)
	if err := a.checkSlot(slot); err != nil {
		return err
	}
	if !a.OrderByRawIndex(slot).IsFree() {
		return errors.Wrapf(ErrOrderSlotInUse, "slot %d", slot)
	}
	oo := OpenOrder{
		SideAndTree: ordertree.NewSideAndOrderTree(side, tree),
		ID:          leaf.Key,
		ClientID:    clientOrderID,
		PegLimit:    pegLimit,
	}
	lockedPrice := oo.LockedPrice()
	a.updatePosition(func(p *Position) {
		if side == ordertree.Bid {
			p.BidsBaseLots += leaf.Quantity
			p.BidsQuoteLots += leaf.Quantity * lockedPrice
		} else {
			p.AsksBaseLots += leaf.Quantity
		}
	})
	a.SetOrderByRawIndex(slot, oo)
	return nil
}

// RemoveOrder unlocks baseQuantity lots of the order in slot and frees
// the slot.
func (a *Account) RemoveOrder(slot int, baseQuantity, lockedPrice int64) error {
	if err := a.checkSlot(slot); err != nil {
		return err
	}
	oo := a.OrderByRawIndex(slot)
	if oo.IsFree() {
		return errors.Wrapf(ErrOrderSlotFree, "slot %d", slot)
	}
	a.updatePosition(func(p *Position) {
		if oo.Side() == ordertree.Bid {
			p.BidsBaseLots -= baseQuantity
			p.BidsQuoteLots -= baseQuantity * lockedPrice
		} else {
			p.AsksBaseLots -= baseQuantity
		}
	})
	a.SetOrderByRawIndex(slot, OpenOrder{})
	return nil
}

// CancelOrder returns the funds locked by baseQuantity lots of the order
// in slot to the free balances, then removes it.
func (a *Account) CancelOrder(slot int, baseQuantity int64, m *market.Market) error {
	if err := a.checkSlot(slot); err != nil {
		return err
	}
	oo := a.OrderByRawIndex(slot)
	if oo.IsFree() {
		return errors.Wrapf(ErrOrderSlotFree, "slot %d", slot)
	}
	price := oo.LockedPrice()
	baseNative := uint64(baseQuantity * m.BaseLotSize)
	a.updatePosition(func(p *Position) {
		if oo.Side() == ordertree.Bid {
			quoteNative := uint64(baseQuantity * price * m.QuoteLotSize)
			fees := m.MakerFeesCeil(quoteNative)
			p.QuoteFreeNative += quoteNative + fees
			p.LockedMakerFees -= fees
		} else {
			p.BaseFreeNative += baseNative
		}
	})
	return a.RemoveOrder(slot, baseQuantity, price)
}
