package account

import (
	"github.com/gagliardetto/solana-go"

	"clob/domain/market"
	"clob/domain/ordertree"
)

// FillEvent is a trade between a resting maker order and a taker.
type FillEvent struct {
	TakerSide ordertree.Side
	// MakerOut is set when the fill exhausts the maker order.
	MakerOut           bool
	MakerSlot          uint8
	Timestamp          uint64
	MarketSeqNum       uint64
	Maker              solana.PublicKey
	MakerClientOrderID uint64
	MakerTimestamp     uint64
	Taker              solana.PublicKey
	TakerClientOrderID uint64
	Price              int64
	// PegLimit of the maker order, -1 for fixed orders and unlimited pegs.
	PegLimit int64
	Quantity int64
}

// ExecuteMaker settles the maker side of fill on a.
func (a *Account) ExecuteMaker(m *market.Market, fill *FillEvent) (FillLog, PositionLog, error) {
	selfTrade := fill.Maker.Equals(fill.Taker)
	side := fill.TakerSide.Invert()
	quoteNative, err := m.QuoteNative(fill.Quantity, fill.Price)
	if err != nil {
		return FillLog{}, PositionLog{}, err
	}
	baseNative, err := m.BaseNative(fill.Quantity)
	if err != nil {
		return FillLog{}, PositionLog{}, err
	}

	var makerFees, makerRebate uint64
	if !selfTrade {
		makerFees = m.MakerFeesFloor(quoteNative)
		makerRebate = m.MakerRebateFloor(quoteNative)
	}

	// Pegged bids locked quote and fees at their peg limit; whatever was
	// locked above the fill price comes back now.
	lockedMakerFees := makerFees
	var lockedAboveFill uint64
	lockedPrice := fill.Price
	if fill.PegLimit != -1 && side == ordertree.Bid {
		quoteAtLock, err := m.QuoteNative(fill.Quantity, fill.PegLimit)
		if err != nil {
			return FillLog{}, PositionLog{}, err
		}
		feesAtLock := m.MakerFeesFloor(quoteAtLock)
		lockedMakerFees = feesAtLock
		lockedAboveFill = (quoteAtLock - quoteNative) + (feesAtLock - makerFees)
		lockedPrice = fill.PegLimit
	}

	p := a.updatePosition(func(p *Position) {
		if side == ordertree.Bid {
			p.BaseFreeNative += baseNative
			p.QuoteFreeNative += makerRebate + lockedAboveFill
			p.LockedMakerFees -= lockedMakerFees
		} else {
			p.QuoteFreeNative += quoteNative + makerRebate - makerFees
		}
		p.MakerVolume = p.MakerVolume.Add64(quoteNative)
		p.ReferrerRebatesAvailable += makerFees

		if !fill.MakerOut {
			if side == ordertree.Bid {
				p.BidsBaseLots -= fill.Quantity
				p.BidsQuoteLots -= fill.Quantity * lockedPrice
			} else {
				p.AsksBaseLots -= fill.Quantity
			}
		}
	})
	a.AccrueBuybackFees(makerFees)

	m.ReferrerRebatesAccrued += makerFees
	m.MakerVolume = m.MakerVolume.Add64(quoteNative)
	m.FeesAccrued += makerFees

	if fill.MakerOut {
		if err := a.RemoveOrder(int(fill.MakerSlot), fill.Quantity, lockedPrice); err != nil {
			return FillLog{}, PositionLog{}, err
		}
		p = a.Position()
	}

	var takerFeeCeil uint64
	if quoteNative > 0 && !selfTrade {
		takerFeeCeil = m.TakerFeesCeil(quoteNative)
	}

	fl := FillLog{
		TakerSide:          fill.TakerSide,
		MakerSlot:          fill.MakerSlot,
		MakerOut:           fill.MakerOut,
		Timestamp:          fill.Timestamp,
		SeqNum:             fill.MarketSeqNum,
		Maker:              fill.Maker,
		MakerClientOrderID: fill.MakerClientOrderID,
		MakerFee:           makerFees,
		MakerTimestamp:     fill.MakerTimestamp,
		Taker:              fill.Taker,
		TakerClientOrderID: fill.TakerClientOrderID,
		TakerFeeCeil:       takerFeeCeil,
		Price:              fill.Price,
		Quantity:           fill.Quantity,
	}
	return fl, a.positionLog(p), nil
}

// ExecuteTaker releases the proceeds of a match to the taker. An ask
// taker receives quoteNative less takerFees.
func (a *Account) ExecuteTaker(m *market.Market, takerSide ordertree.Side,
	baseNative, quoteNative, takerFees, referrerAmount uint64) PositionLog {
	p := a.updatePosition(func(p *Position) {
		if takerSide == ordertree.Bid {
			p.BaseFreeNative += baseNative
		} else {
			p.QuoteFreeNative += quoteNative - takerFees
		}
		p.TakerVolume = p.TakerVolume.Add64(quoteNative)
		p.ReferrerRebatesAvailable += referrerAmount
	})
	m.ReferrerRebatesAccrued += referrerAmount
	return a.positionLog(p)
}
