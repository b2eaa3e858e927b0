package account

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

const (
	hdrOwner           = 0
	hdrName            = 32
	hdrDelegate        = 64
	hdrAccountNum      = 96
	hdrBump            = 100
	hdrBuybackCurrent  = 104
	hdrBuybackPrevious = 112
	hdrBuybackExpiry   = 120
	hdrPosition        = 128
	hdrReserved        = hdrPosition + PositionSize

	nameLen = 32
)

// Account is an open-orders account viewed in place over its buffer. All
// reads and writes go straight to the buffer; nothing is cached except
// the slot count.
type Account struct {
	buf     []byte
	ooCount int
}

func (a *Account) Bytes() []byte { return a.buf }

func (a *Account) fixed() []byte { return a.buf[fixedOff : fixedOff+FixedSize] }

func (a *Account) Owner() solana.PublicKey {
	return solana.PublicKeyFromBytes(a.fixed()[hdrOwner : hdrOwner+32])
}

func (a *Account) Name() string {
	return string(bytes.TrimRight(a.fixed()[hdrName:hdrName+nameLen], "\x00"))
}

// Delegate returns the delegate key, if one is set.
func (a *Account) Delegate() (solana.PublicKey, bool) {
	d := solana.PublicKeyFromBytes(a.fixed()[hdrDelegate : hdrDelegate+32])
	return d, !d.IsZero()
}

func (a *Account) SetDelegate(d solana.PublicKey) {
	copy(a.fixed()[hdrDelegate:hdrDelegate+32], d[:])
}

func (a *Account) AccountNum() uint32 { return le.Uint32(a.fixed()[hdrAccountNum:]) }

func (a *Account) Bump() uint8 { return a.fixed()[hdrBump] }

func (a *Account) IsOwnerOrDelegate(signer solana.PublicKey) bool {
	if d, ok := a.Delegate(); ok && d.Equals(signer) {
		return true
	}
	return a.Owner().Equals(signer)
}

// IsSettleDestinationAllowed reports whether signer may move funds to an
// account owned by destinationOwner. Delegates may only settle to the
// owner.
func (a *Account) IsSettleDestinationAllowed(signer, destinationOwner solana.PublicKey) bool {
	if d, ok := a.Delegate(); ok && d.Equals(signer) {
		return a.Owner().Equals(destinationOwner)
	}
	return a.Owner().Equals(signer)
}

func (a *Account) Position() Position {
	return decodePosition(a.fixed()[hdrPosition : hdrPosition+PositionSize])
}

func (a *Account) SetPosition(p Position) {
	p.encode(a.fixed()[hdrPosition : hdrPosition+PositionSize])
}

// updatePosition applies fn to the position in place.
func (a *Account) updatePosition(fn func(p *Position)) Position {
	p := a.Position()
	fn(&p)
	a.SetPosition(p)
	return p
}
