package account

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"clob/domain/ordertree"
)

// FillLog describes one fill from the maker's side.
type FillLog struct {
	TakerSide          ordertree.Side
	MakerSlot          uint8
	MakerOut           bool
	Timestamp          uint64
	SeqNum             uint64
	Maker              solana.PublicKey
	MakerClientOrderID uint64
	MakerFee           uint64
	MakerTimestamp     uint64
	Taker              solana.PublicKey
	TakerClientOrderID uint64
	// TakerFeeCeil is informational; the taker fee is charged by the
	// matching loop.
	TakerFeeCeil uint64
	Price        int64
	Quantity     int64
}

// PositionLog is a snapshot of an account's position after a change.
type PositionLog struct {
	Owner                    solana.PublicKey
	AccountNum               uint32
	BidsBaseLots             int64
	BidsQuoteLots            int64
	AsksBaseLots             int64
	BaseFreeNative           uint64
	QuoteFreeNative          uint64
	LockedMakerFees          uint64
	ReferrerRebatesAvailable uint64
	MakerVolume              uint128.Uint128
	TakerVolume              uint128.Uint128
}

func (a *Account) positionLog(p Position) PositionLog {
	return PositionLog{
		Owner:                    a.Owner(),
		AccountNum:               a.AccountNum(),
		BidsBaseLots:             p.BidsBaseLots,
		BidsQuoteLots:            p.BidsQuoteLots,
		AsksBaseLots:             p.AsksBaseLots,
		BaseFreeNative:           p.BaseFreeNative,
		QuoteFreeNative:          p.QuoteFreeNative,
		LockedMakerFees:          p.LockedMakerFees,
		ReferrerRebatesAvailable: p.ReferrerRebatesAvailable,
		MakerVolume:              p.MakerVolume,
		TakerVolume:              p.TakerVolume,
	}
}

// PositionLog snapshots the current position.
func (a *Account) PositionLog() PositionLog { return a.positionLog(a.Position()) }
