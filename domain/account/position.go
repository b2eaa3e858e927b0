package account

import "lukechampine.com/uint128"

// Position is the balance sheet of an account on its market.
type Position struct {
	// BidsBaseLots and AsksBaseLots are the base lots resting on the book.
	BidsBaseLots int64
	AsksBaseLots int64

	BaseFreeNative  uint64
	QuoteFreeNative uint64

	// LockedMakerFees is quote locked with resting bids to pay their
	// maker fee.
	LockedMakerFees          uint64
	ReferrerRebatesAvailable uint64
	PenaltyHeapCount         uint64

	// MakerVolume and TakerVolume are cumulative, in native quote.
	MakerVolume uint128.Uint128
	TakerVolume uint128.Uint128

	// BidsQuoteLots is the quote locked by resting bids, in quote lots
	// times base lots.
	BidsQuoteLots int64
}

const (
	posBidsBaseLots      = 0
	posAsksBaseLots      = 8
	posBaseFree          = 16
	posQuoteFree         = 24
	posLockedMakerFees   = 32
	posReferrerRebates   = 40
	posPenaltyHeapCount  = 48
	posMakerVolume       = 56
	posTakerVolume       = 72
	posBidsQuoteLots     = 88
	positionReservedSize = 96
)

// HasOpenOrders reports whether any base lots are still resting.
func (p Position) HasOpenOrders() bool {
	return p.BidsBaseLots != 0 || p.AsksBaseLots != 0
}

// IsEmpty reports whether the account holds nothing on the market.
func (p Position) IsEmpty() bool {
	return p.BidsBaseLots == 0 &&
		p.AsksBaseLots == 0 &&
		p.BaseFreeNative == 0 &&
		p.QuoteFreeNative == 0 &&
		p.LockedMakerFees == 0 &&
		p.ReferrerRebatesAvailable == 0 &&
		p.PenaltyHeapCount == 0 &&
		p.BidsQuoteLots == 0
}

func (p Position) encode(b []byte) {
	le.PutUint64(b[posBidsBaseLots:], uint64(p.BidsBaseLots))
	le.PutUint64(b[posAsksBaseLots:], uint64(p.AsksBaseLots))
	le.PutUint64(b[posBaseFree:], p.BaseFreeNative)
	le.PutUint64(b[posQuoteFree:], p.QuoteFreeNative)
	le.PutUint64(b[posLockedMakerFees:], p.LockedMakerFees)
	le.PutUint64(b[posReferrerRebates:], p.ReferrerRebatesAvailable)
	le.PutUint64(b[posPenaltyHeapCount:], p.PenaltyHeapCount)
	p.MakerVolume.PutBytes(b[posMakerVolume:])
	p.TakerVolume.PutBytes(b[posTakerVolume:])
	le.PutUint64(b[posBidsQuoteLots:], uint64(p.BidsQuoteLots))
}

func decodePosition(b []byte) Position {
	return Position{
		BidsBaseLots:             int64(le.Uint64(b[posBidsBaseLots:])),
		AsksBaseLots:             int64(le.Uint64(b[posAsksBaseLots:])),
		BaseFreeNative:           le.Uint64(b[posBaseFree:]),
		QuoteFreeNative:          le.Uint64(b[posQuoteFree:]),
		LockedMakerFees:          le.Uint64(b[posLockedMakerFees:]),
		ReferrerRebatesAvailable: le.Uint64(b[posReferrerRebates:]),
		PenaltyHeapCount:         le.Uint64(b[posPenaltyHeapCount:]),
		MakerVolume:              uint128.FromBytes(b[posMakerVolume:]),
		TakerVolume:              uint128.FromBytes(b[posTakerVolume:]),
		BidsQuoteLots:            int64(le.Uint64(b[posBidsQuoteLots:])),
	}
}
