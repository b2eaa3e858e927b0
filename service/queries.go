package service

import (
	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
)

// Level aggregates the valid orders at one price.
type Level struct {
	PriceLots int64
	Quantity  int64
	Orders    int
}

type BookOrder struct {
	ID            uint128.Uint128
	Tree          ordertree.BookSideOrderTree
	Owner         solana.PublicKey
	OwnerSlot     uint8
	ClientOrderID uint64
	PriceLots     int64
	Quantity      int64
	Timestamp     uint64
	TimeInForce   uint16
	PegLimit      int64
}

type BookView struct {
	Side   ordertree.Side
	Levels []Level
	Orders []BookOrder
}

// Book returns the valid orders of side in matching order, up to depth
// price levels, all of them when depth is 0.
func (e *Engine) Book(side ordertree.Side, depth int, oracle ordertree.OraclePrice) BookView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := BookView{Side: side}
	for item := range e.book(side).IterValid(e.nowSecs(), oracle) {
		n := len(v.Levels)
		if n == 0 || v.Levels[n-1].PriceLots != item.PriceLots {
			if depth > 0 && n == depth {
				break
			}
			v.Levels = append(v.Levels, Level{PriceLots: item.PriceLots})
			n++
		}
		v.Levels[n-1].Quantity += item.Leaf.Quantity
		v.Levels[n-1].Orders++
		v.Orders = append(v.Orders, BookOrder{
			ID:            item.Leaf.Key,
			Tree:          item.Tree,
			Owner:         item.Leaf.Owner,
			OwnerSlot:     item.Leaf.OwnerSlot,
			ClientOrderID: item.Leaf.ClientOrderID,
			PriceLots:     item.PriceLots,
			Quantity:      item.Leaf.Quantity,
			Timestamp:     item.Leaf.Timestamp,
			TimeInForce:   item.Leaf.TimeInForce,
			PegLimit:      item.Leaf.PegLimit,
		})
	}
	return v
}

// ImpactPrice walks side for quantity lots and returns the price reached.
func (e *Engine) ImpactPrice(side ordertree.Side, quantity int64, oracle ordertree.OraclePrice) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book(side).ImpactPrice(quantity, e.nowSecs(), oracle)
}

type AccountView struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Delegate   solana.PublicKey
	Name       string
	AccountNum uint32
	Slots      int
	Position   account.Position
	Buyback    account.BuybackFees
	Orders     []AccountOrder
}

type AccountOrder struct {
	Slot int
	account.OpenOrder
}

// Account returns a copy of the account at addr.
func (e *Engine) Account(addr solana.PublicKey) (AccountView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.accounts[addr]
	if !ok {
		return AccountView{}, errors.Wrapf(ErrAccountNotFound, "%s", addr)
	}
	v := AccountView{
		Address:    addr,
		Owner:      a.Owner(),
		Name:       a.Name(),
		AccountNum: a.AccountNum(),
		Slots:      a.SlotCapacity(),
		Position:   a.Position(),
		Buyback:    a.BuybackFees(),
	}
	if d, ok := a.Delegate(); ok {
		v.Delegate = d
	}
	for slot, oo := range a.AllOrdersInUse() {
		v.Orders = append(v.Orders, AccountOrder{Slot: slot, OpenOrder: oo})
	}
	return v, nil
}

// Accounts lists the addresses of all accounts owned by owner.
func (e *Engine) Accounts(owner solana.PublicKey) []solana.PublicKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []solana.PublicKey
	for addr, a := range e.accounts {
		if a.Owner().Equals(owner) {
			out = append(out, addr)
		}
	}
	return out
}

// Market returns a copy of the market state.
func (e *Engine) Market() market.Market {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.market
}
