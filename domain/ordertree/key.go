package ordertree

import (
	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"
)

// pegPriceBias maps the int64 range onto uint64 preserving order.
const pegPriceBias uint64 = 1 << 63

// NewNodeKey builds a tree key: price data in the top 64 bits, an
// ordering number in the low 64 bits. seqNum must increase
// monotonically; for bids it is inverted so that, walking bids from the
// highest key down, earlier orders at the same price come first.
func NewNodeKey(side Side, priceData, seqNum uint64) uint128.Uint128 {
	if side == Bid {
		seqNum = ^seqNum
	}
	return uint128.New(seqNum, priceData)
}

// OraclePeggedPriceData encodes a peg offset (in lots) as price data.
func OraclePeggedPriceData(priceOffsetLots int64) uint64 {
	return uint64(priceOffsetLots) + pegPriceBias
}

// OraclePeggedPriceOffset is the inverse of OraclePeggedPriceData.
func OraclePeggedPriceOffset(priceData uint64) int64 {
	return int64(priceData - pegPriceBias)
}

// FixedPriceData encodes a fixed price (in lots) as price data.
func FixedPriceData(priceLots int64) (uint64, error) {
	if priceLots < 1 {
		return 0, errors.Wrapf(ErrInvalidPrice, "price %d", priceLots)
	}
	return uint64(priceLots), nil
}

// FixedPriceLots is the inverse of FixedPriceData.
func FixedPriceLots(priceData uint64) int64 {
	return int64(priceData)
}

// keyForFixedPrice swaps the price data of key for a fixed price so a
// pegged key can be ranked against fixed keys.
func keyForFixedPrice(key uint128.Uint128, priceLots int64) uint128.Uint128 {
	return uint128.New(key.Lo, uint64(priceLots))
}
