// Package market holds the per-market parameters and running totals the
// fill logic reads and updates: lot sizes, fee rates, the order sequence
// number and fee/volume accumulators.
package market

import (
	"math"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"clob/domain/ordertree"
)

// FeesScaleFactor is the denominator of MakerFee and TakerFee.
const FeesScaleFactor = 1_000_000

var (
	ErrInvalidLotSize     = errors.New("market: lot sizes must be positive")
	ErrInvalidFee         = errors.New("market: invalid fee rates")
	ErrInvalidOraclePrice = errors.New("market: price not representable in lots")
	ErrBufferSize         = errors.New("market: invalid buffer size")
	ErrLotsOverflow       = errors.New("market: native amount overflows")
)

type Market struct {
	Name string
	// QuoteLotSize is the smallest quote amount a price may express, in
	// native quote units.
	QuoteLotSize int64
	// BaseLotSize is the smallest tradable base amount, in native units.
	BaseLotSize int64

	// MakerFee and TakerFee are in millionths of the quote notional. A
	// negative MakerFee is a rebate.
	MakerFee int64
	TakerFee int64
	// FeePenalty is charged when a taker leaves work behind for the
	// crank.
	FeePenalty uint64
	// FeesExpiryInterval is the buyback fee bucket interval in seconds, 0
	// disables expiry.
	FeesExpiryInterval uint64
	// TimeExpiry is the unix time after which the market is closed, 0 for
	// never.
	TimeExpiry int64

	SeqNum uint64

	FeesAccrued            uint64
	FeesToReferrers        uint64
	ReferrerRebatesAccrued uint64
	QuoteFeesAccrued       uint64
	TakerVolumeWoOO        uint64
	MakerVolume            uint128.Uint128

	// FeesAvailable holds rebates settled without a referrer.
	FeesAvailable     uint64
	BaseDepositTotal  uint64
	QuoteDepositTotal uint64
}

func (m *Market) Validate() error {
	if m.QuoteLotSize <= 0 || m.BaseLotSize <= 0 {
		return errors.Wrapf(ErrInvalidLotSize, "base %d quote %d", m.BaseLotSize, m.QuoteLotSize)
	}
	if m.TakerFee < 0 || m.TakerFee >= FeesScaleFactor ||
		m.MakerFee <= -FeesScaleFactor || m.MakerFee >= FeesScaleFactor {
		return errors.Wrapf(ErrInvalidFee, "maker %d taker %d", m.MakerFee, m.TakerFee)
	}
	if m.MakerFee < 0 && -m.MakerFee > m.TakerFee {
		return errors.Wrapf(ErrInvalidFee, "maker rebate %d exceeds taker fee %d", -m.MakerFee, m.TakerFee)
	}
	return nil
}

// IsExpired reports whether the market stopped accepting orders at now.
func (m *Market) IsExpired(now int64) bool {
	return m.TimeExpiry != 0 && now >= m.TimeExpiry
}

// GenOrderID bumps the sequence number and returns the tree key of a new
// order.
func (m *Market) GenOrderID(side ordertree.Side, priceData uint64) uint128.Uint128 {
	m.SeqNum++
	return ordertree.NewNodeKey(side, priceData, m.SeqNum)
}

// LotToNativePrice converts a book price to native quote per native base.
func (m *Market) LotToNativePrice(price int64) decimal.Decimal {
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(m.QuoteLotSize)).
		Div(decimal.NewFromInt(m.BaseLotSize))
}

// NativePriceToLot converts a native price to book price lots, truncating.
func (m *Market) NativePriceToLot(price decimal.Decimal) (int64, error) {
	lots := price.Mul(decimal.NewFromInt(m.BaseLotSize)).
		Div(decimal.NewFromInt(m.QuoteLotSize)).
		Truncate(0)
	if !lots.BigInt().IsInt64() {
		return 0, errors.Wrapf(ErrInvalidOraclePrice, "price %s", price)
	}
	return lots.IntPart(), nil
}

// MaxBaseLots is the largest base lot count whose native amount fits an
// int64.
func (m *Market) MaxBaseLots() int64 { return math.MaxInt64 / m.BaseLotSize }

// MaxQuoteLots is the largest quote lot count whose native amount fits an
// int64.
func (m *Market) MaxQuoteLots() int64 { return math.MaxInt64 / m.QuoteLotSize }

// QuoteLots returns quantity × price, failing when the product is not a
// representable quote amount.
func (m *Market) QuoteLots(quantity, price int64) (int64, error) {
	if quantity < 0 || price < 0 {
		return 0, errors.Wrapf(ErrLotsOverflow, "%d lots at %d", quantity, price)
	}
	if quantity == 0 || price == 0 {
		return 0, nil
	}
	if quantity > m.MaxQuoteLots()/price {
		return 0, errors.Wrapf(ErrLotsOverflow, "%d lots at %d", quantity, price)
	}
	return quantity * price, nil
}

// QuoteNative is QuoteLots in native quote units.
func (m *Market) QuoteNative(quantity, price int64) (uint64, error) {
	lots, err := m.QuoteLots(quantity, price)
	if err != nil {
		return 0, err
	}
	return uint64(lots * m.QuoteLotSize), nil
}

// BaseNative converts base lots to native base units.
func (m *Market) BaseNative(quantity int64) (uint64, error) {
	if quantity < 0 || quantity > m.MaxBaseLots() {
		return 0, errors.Wrapf(ErrLotsOverflow, "%d base lots", quantity)
	}
	return uint64(quantity * m.BaseLotSize), nil
}

// ApplyPenalty charges the fee penalty to the market and returns it.
func (m *Market) ApplyPenalty() uint64 {
	m.QuoteFeesAccrued += m.FeePenalty
	return m.FeePenalty
}

// ─── fees ────────────────────────────────────────────────────

var feesScale = decimal.NewFromInt(FeesScaleFactor)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// truncDiv divides by the fee scale, rounding toward zero.
func truncDiv(numerator decimal.Decimal) decimal.Decimal {
	q, _ := numerator.QuoRem(feesScale, 0)
	return q
}

// ceilDiv adds scale-1 before dividing, rounding up non-negative values.
func ceilDiv(numerator decimal.Decimal) decimal.Decimal {
	return truncDiv(numerator.Add(decimal.NewFromInt(FeesScaleFactor - 1)))
}

// toUint64 clamps negative results to zero.
func toUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	return d.BigInt().Uint64()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// SubtractTakerFees returns the quote amount left once the taker fee on it
// is paid.
func (m *Market) SubtractTakerFees(quote int64) int64 {
	n := decimal.NewFromInt(quote).Mul(feesScale)
	q, _ := n.QuoRem(decimal.NewFromInt(FeesScaleFactor+m.TakerFee), 0)
	return q.IntPart()
}

func (m *Market) TakerFeesFloor(amount uint64) uint64 {
	return toUint64(truncDiv(fromUint64(amount).Mul(decimal.NewFromInt(m.TakerFee))))
}

func (m *Market) TakerFeesCeil(amount uint64) uint64 {
	return toUint64(ceilDiv(fromUint64(amount).Mul(decimal.NewFromInt(m.TakerFee))))
}

func (m *Market) unsignedMakerFeesFloor(amount uint64) uint64 {
	return toUint64(truncDiv(fromUint64(amount).Mul(decimal.NewFromInt(abs(m.MakerFee)))))
}

// MakerFeesFloor is the maker fee on amount, 0 when makers earn a rebate.
func (m *Market) MakerFeesFloor(amount uint64) uint64 {
	if m.MakerFee > 0 {
		return m.unsignedMakerFeesFloor(amount)
	}
	return 0
}

// MakerRebateFloor is the maker rebate on amount, 0 when makers pay a fee.
func (m *Market) MakerRebateFloor(amount uint64) uint64 {
	if m.MakerFee > 0 {
		return 0
	}
	return m.unsignedMakerFeesFloor(amount)
}

// MakerFeesCeil is the maker fee locked alongside a resting bid.
func (m *Market) MakerFeesCeil(amount uint64) uint64 {
	if m.MakerFee > 0 {
		return toUint64(ceilDiv(fromUint64(amount).Mul(decimal.NewFromInt(abs(m.MakerFee)))))
	}
	return 0
}
