package market

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"lukechampine.com/uint128"
)

// Size is the encoded size of a Market.
const Size = 256

const nameLen = 32

var le = binary.LittleEndian

// MarshalBinary encodes m in the fixed little endian layout stored
// alongside the book sides.
func (m *Market) MarshalBinary() ([]byte, error) {
	if len(m.Name) > nameLen {
		return nil, errors.Newf("market: name %q longer than %d bytes", m.Name, nameLen)
	}
	b := make([]byte, Size)
	copy(b[0:nameLen], m.Name)
	le.PutUint64(b[32:], uint64(m.QuoteLotSize))
	le.PutUint64(b[40:], uint64(m.BaseLotSize))
	le.PutUint64(b[48:], uint64(m.MakerFee))
	le.PutUint64(b[56:], uint64(m.TakerFee))
	le.PutUint64(b[64:], m.FeePenalty)
	le.PutUint64(b[72:], m.FeesExpiryInterval)
	le.PutUint64(b[80:], uint64(m.TimeExpiry))
	le.PutUint64(b[88:], m.SeqNum)
	le.PutUint64(b[96:], m.FeesAccrued)
	le.PutUint64(b[104:], m.FeesToReferrers)
	le.PutUint64(b[112:], m.ReferrerRebatesAccrued)
	le.PutUint64(b[120:], m.QuoteFeesAccrued)
	le.PutUint64(b[128:], m.TakerVolumeWoOO)
	m.MakerVolume.PutBytes(b[136:])
	le.PutUint64(b[152:], m.FeesAvailable)
	le.PutUint64(b[160:], m.BaseDepositTotal)
	le.PutUint64(b[168:], m.QuoteDepositTotal)
	return b, nil
}

func (m *Market) UnmarshalBinary(b []byte) error {
	if len(b) != Size {
		return errors.Wrapf(ErrBufferSize, "market of %d bytes", len(b))
	}
	*m = Market{
		Name:                   string(bytes.TrimRight(b[0:nameLen], "\x00")),
		QuoteLotSize:           int64(le.Uint64(b[32:])),
		BaseLotSize:            int64(le.Uint64(b[40:])),
		MakerFee:               int64(le.Uint64(b[48:])),
		TakerFee:               int64(le.Uint64(b[56:])),
		FeePenalty:             le.Uint64(b[64:]),
		FeesExpiryInterval:     le.Uint64(b[72:]),
		TimeExpiry:             int64(le.Uint64(b[80:])),
		SeqNum:                 le.Uint64(b[88:]),
		FeesAccrued:            le.Uint64(b[96:]),
		FeesToReferrers:        le.Uint64(b[104:]),
		ReferrerRebatesAccrued: le.Uint64(b[112:]),
		QuoteFeesAccrued:       le.Uint64(b[120:]),
		TakerVolumeWoOO:        le.Uint64(b[128:]),
		MakerVolume:            uint128.FromBytes(b[136:]),
		FeesAvailable:          le.Uint64(b[152:]),
		BaseDepositTotal:       le.Uint64(b[160:]),
		QuoteDepositTotal:      le.Uint64(b[168:]),
	}
	return nil
}
