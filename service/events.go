package service

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"clob/domain/account"
	"clob/domain/ordertree"
	"clob/infra/codec"
)

func i64(v int64) string  { return strconv.FormatInt(v, 10) }
func u64(v uint64) string { return strconv.FormatUint(v, 10) }
func u128(v uint128.Uint128) string {
	return v.String()
}

func (t *tx) emitFill(f account.FillLog) {
	t.emit(codec.TypeFill, map[string]string{
		"market":                t.e.market.Name,
		"taker_side":            f.TakerSide.String(),
		"maker_slot":            u64(uint64(f.MakerSlot)),
		"maker_out":             strconv.FormatBool(f.MakerOut),
		"timestamp":             u64(f.Timestamp),
		"seq_num":               u64(f.SeqNum),
		"maker":                 f.Maker.String(),
		"maker_client_order_id": u64(f.MakerClientOrderID),
		"maker_fee":             u64(f.MakerFee),
		"maker_timestamp":       u64(f.MakerTimestamp),
		"taker":                 f.Taker.String(),
		"taker_client_order_id": u64(f.TakerClientOrderID),
		"taker_fee_ceil":        u64(f.TakerFeeCeil),
		"price":                 i64(f.Price),
		"quantity":              i64(f.Quantity),
	})
}

func (t *tx) emitPosition(addr solana.PublicKey, p account.PositionLog) {
	t.emit(codec.TypePosition, map[string]string{
		"account":                    addr.String(),
		"owner":                      p.Owner.String(),
		"account_num":                u64(uint64(p.AccountNum)),
		"bids_base_lots":             i64(p.BidsBaseLots),
		"bids_quote_lots":            i64(p.BidsQuoteLots),
		"asks_base_lots":             i64(p.AsksBaseLots),
		"base_free_native":           u64(p.BaseFreeNative),
		"quote_free_native":          u64(p.QuoteFreeNative),
		"locked_maker_fees":          u64(p.LockedMakerFees),
		"referrer_rebates_available": u64(p.ReferrerRebatesAvailable),
		"maker_volume":               u128(p.MakerVolume),
		"taker_volume":               u128(p.TakerVolume),
	})
}

func leafData(addr solana.PublicKey, side ordertree.Side, tree ordertree.BookSideOrderTree, l ordertree.LeafNode) map[string]string {
	return map[string]string{
		"account":         addr.String(),
		"side":            side.String(),
		"tree":            tree.String(),
		"order_id":        u128(l.Key),
		"client_order_id": u64(l.ClientOrderID),
		"owner_slot":      u64(uint64(l.OwnerSlot)),
		"quantity":        i64(l.Quantity),
		"timestamp":       u64(l.Timestamp),
		"time_in_force":   u64(uint64(l.TimeInForce)),
		"peg_limit":       i64(l.PegLimit),
	}
}

func (t *tx) emitPlaced(side ordertree.Side, tree ordertree.BookSideOrderTree, l ordertree.LeafNode, priceLots int64) {
	d := leafData(l.Owner, side, tree, l)
	d["price"] = i64(priceLots)
	t.emit(codec.TypeOrderPlaced, d)
}

// emitOut records an order leaving the book without trading. reason is
// "cancelled", "expired" or "evicted".
func (t *tx) emitOut(side ordertree.Side, tree ordertree.BookSideOrderTree, l ordertree.LeafNode, reason string) {
	typ := codec.TypeOrderCancelled
	if reason != "cancelled" {
		typ = codec.TypeOrderExpired
	}
	d := leafData(l.Owner, side, tree, l)
	d["reason"] = reason
	t.emit(typ, d)
}
