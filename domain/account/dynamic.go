package account

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
)

type InitParams struct {
	Owner      solana.PublicKey
	Delegate   solana.PublicKey
	Name       string
	AccountNum uint32
	Bump       uint8
	// Slots is the number of order slots in use from the start.
	Slots int
}

// Initialize writes a fresh account into buf, which must hold at least
// Space(params.Slots) bytes. Extra bytes stay available for growth.
func Initialize(buf []byte, params InitParams) (*Account, error) {
	need, err := Space(params.Slots)
	if err != nil {
		return nil, err
	}
	if len(buf) < need {
		return nil, errors.Wrapf(ErrBufferTooSmall, "have %d bytes, need %d", len(buf), need)
	}
	if len(params.Name) > nameLen {
		return nil, errors.Newf("account: name %q longer than %d bytes", params.Name, nameLen)
	}
	clear(buf)
	copy(buf, Discriminator[:])

	a := &Account{buf: buf, ooCount: params.Slots}
	f := a.fixed()
	copy(f[hdrOwner:hdrOwner+32], params.Owner[:])
	copy(f[hdrName:hdrName+nameLen], params.Name)
	copy(f[hdrDelegate:hdrDelegate+32], params.Delegate[:])
	le.PutUint32(f[hdrAccountNum:], params.AccountNum)
	f[hdrBump] = params.Bump

	buf[dynamicOff] = HeaderVersion
	le.PutUint32(buf[countOff:], uint32(params.Slots))
	return a, nil
}

// FromBytes views buf as an account. buf is not copied; writes through
// the returned Account land in buf.
func FromBytes(buf []byte) (*Account, error) {
	if len(buf) < ordersOff {
		return nil, errors.Wrapf(ErrBufferTooSmall, "%d bytes", len(buf))
	}
	if !bytes.Equal(buf[:DiscriminatorSize], Discriminator[:]) {
		return nil, ErrDiscriminatorMismatch
	}
	if v := buf[dynamicOff]; v != HeaderVersion {
		return nil, errors.Wrapf(ErrUnknownHeaderVersion, "version %d", v)
	}
	count := int(le.Uint32(buf[countOff:]))
	if len(buf) < size(count) {
		return nil, errors.Wrapf(ErrBufferTooSmall, "%d bytes for %d slots", len(buf), count)
	}
	return &Account{buf: buf, ooCount: count}, nil
}

// OOCount is the number of order slots in use.
func (a *Account) OOCount() int { return a.ooCount }

// SlotCapacity is the number of slots the buffer can physically hold.
func (a *Account) SlotCapacity() int { return (len(a.buf) - ordersOff) / OpenOrderSize }

// ExpandDynamicContent grows the slot table to newCount slots. Existing
// slots keep their bytes and the new ones start free. The slot table is
// the last region of the buffer, so it never has to move.
func (a *Account) ExpandDynamicContent(newCount int) error {
	if newCount < a.ooCount {
		return errors.Wrapf(ErrShrink, "from %d to %d slots", a.ooCount, newCount)
	}
	if len(a.buf) < size(newCount) {
		return errors.Wrapf(ErrBufferTooSmall, "%d bytes for %d slots", len(a.buf), newCount)
	}
	clear(a.buf[size(a.ooCount):size(newCount)])
	a.ooCount = newCount
	le.PutUint32(a.buf[countOff:], uint32(newCount))
	return nil
}
