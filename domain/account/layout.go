// Package account implements the open-orders account: a fixed 528-byte
// header followed by a growable table of 40-byte order slots, read and
// written in place over a single byte buffer.
//
// Buffer layout:
//
//	[discriminator 8][fixed header 528][dynamic header 16][slots n*40]
//
// The dynamic header is a version byte, 11 bytes of padding and the
// little endian slot count.
package account

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	DiscriminatorSize = 8
	FixedSize         = 528
	PositionSize      = 192
	OpenOrderSize     = 40
	// MaxOpenOrders bounds the slot count an account can be created with.
	MaxOpenOrders = 64

	dynamicHeaderSize = 8 + 4
	lengthPrefixSize  = 4
	// HeaderVersion is the only dynamic header version understood.
	HeaderVersion uint8 = 1

	fixedOff   = DiscriminatorSize
	dynamicOff = DiscriminatorSize + FixedSize
	countOff   = dynamicOff + dynamicHeaderSize
	ordersOff  = countOff + lengthPrefixSize
)

var (
	ErrBufferTooSmall        = errors.New("account: buffer too small")
	ErrDiscriminatorMismatch = errors.New("account: discriminator mismatch")
	ErrUnknownHeaderVersion  = errors.New("account: unknown dynamic header version")
	ErrTooManyOrders         = errors.New("account: too many open order slots")
	ErrShrink                = errors.New("account: open order slots can only grow")
	ErrNoFreeOrderIndex      = errors.New("account: no free order index")
	ErrOrderSlotFree         = errors.New("account: order slot is free")
	ErrSlotOutOfRange        = errors.New("account: order slot out of range")
)

var le = binary.LittleEndian

// Discriminator tags every account buffer.
var Discriminator = func() [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:OpenOrdersAccount"))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}()

// Space returns the buffer size of an account with ooCount slots.
func Space(ooCount int) (int, error) {
	if ooCount < 0 || ooCount > MaxOpenOrders {
		return 0, errors.Wrapf(ErrTooManyOrders, "%d slots, max %d", ooCount, MaxOpenOrders)
	}
	return size(ooCount), nil
}

func size(ooCount int) int {
	return ordersOff + ooCount*OpenOrderSize
}
