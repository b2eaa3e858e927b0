package service

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"clob/domain/account"
	"clob/domain/ordertree"
)

// CancelOrder removes the order with id from the book and frees its
// funds on the account at addr.
func (e *Engine) CancelOrder(ctx context.Context, addr, signer solana.PublicKey, id uint128.Uint128) (ordertree.LeafNode, error) {
	var leaf ordertree.LeafNode
	err := e.run(ctx, "cancel_order", func(t *tx) error {
		a, err := t.authorized(addr, signer)
		if err != nil {
			return err
		}
		slot, oo, ok := a.FindOrderWithOrderID(id)
		if !ok {
			return errors.Wrapf(ErrOrderNotFound, "order %s", id)
		}
		leaf, err = t.cancel(addr, a, slot, oo)
		return err
	})
	return leaf, err
}

// CancelOrderByClientID cancels the first order of the account at addr
// carrying clientOrderID.
func (e *Engine) CancelOrderByClientID(ctx context.Context, addr, signer solana.PublicKey, clientOrderID uint64) (ordertree.LeafNode, error) {
	var leaf ordertree.LeafNode
	err := e.run(ctx, "cancel_order_by_client_id", func(t *tx) error {
		a, err := t.authorized(addr, signer)
		if err != nil {
			return err
		}
		slot, oo, ok := a.FindOrderWithClientOrderID(clientOrderID)
		if !ok {
			return errors.Wrapf(ErrOrderNotFound, "client order id %d", clientOrderID)
		}
		leaf, err = t.cancel(addr, a, slot, oo)
		return err
	})
	return leaf, err
}

// CancelAllOrders cancels up to limit orders of the account at addr, all
// of them when limit is 0. A nil side cancels both sides. It returns the
// total base lots cancelled.
func (e *Engine) CancelAllOrders(ctx context.Context, addr, signer solana.PublicKey, side *ordertree.Side, limit int) (int64, error) {
	var total int64
	err := e.run(ctx, "cancel_all_orders", func(t *tx) error {
		total = 0
		a, err := t.authorized(addr, signer)
		if err != nil {
			return err
		}
		n := 0
		for slot, oo := range a.AllOrdersInUse() {
			if side != nil && oo.Side() != *side {
				continue
			}
			if limit > 0 && n == limit {
				break
			}
			leaf, err := t.cancel(addr, a, slot, oo)
			if errors.Is(err, ErrOrderNotFound) {
				e.log.Warn("open order missing from book", zap.Stringer("account", addr), zap.Stringer("order", oo.ID))
				continue
			}
			if err != nil {
				return err
			}
			total += leaf.Quantity
			n++
		}
		return nil
	})
	return total, err
}

func (t *tx) cancel(addr solana.PublicKey, a *account.Account, slot int, oo account.OpenOrder) (ordertree.LeafNode, error) {
	side := oo.Side()
	tree := oo.OrderTree()
	leaf, err := t.book(side).RemoveByKey(tree, oo.ID)
	if errors.Is(err, ordertree.ErrKeyNotFound) {
		return ordertree.LeafNode{}, errors.Wrapf(ErrOrderNotFound, "order %s not on %s %s", oo.ID, side, tree)
	}
	if err != nil {
		return ordertree.LeafNode{}, err
	}
	if !leaf.Owner.Equals(addr) || int(leaf.OwnerSlot) != slot {
		return ordertree.LeafNode{}, errors.Wrapf(ordertree.ErrCorrupt, "order %s owned by %s slot %d", oo.ID, leaf.Owner, leaf.OwnerSlot)
	}
	if err := a.CancelOrder(slot, leaf.Quantity, t.e.market); err != nil {
		return ordertree.LeafNode{}, err
	}
	t.emitOut(side, tree, leaf, "cancelled")
	t.emitPosition(addr, a.PositionLog())
	return leaf, nil
}
