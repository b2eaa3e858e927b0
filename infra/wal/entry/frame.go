package entry

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

var ErrCorrupt = errors.New("journal: corrupt record")

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4], big endian. The
// CRC covers header and payload.
const (
	headerSize  = 1 + 8 + 8 + 4
	trailerSize = 4

	maxPayload = 64 << 20
)

func encodeFrame(r *Record) []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(n)+trailerSize)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)
	binary.BigEndian.PutUint32(buf[headerSize+n:], crc32.ChecksumIEEE(buf[:headerSize+n]))
	return buf
}

// readFrame returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF when the stream stops inside a frame.
func readFrame(r io.Reader) (*Record, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[17:21])
	if n > maxPayload {
		return nil, errors.Wrapf(ErrCorrupt, "payload length %d", n)
	}
	body := make([]byte, int(n)+trailerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(body[:n])
	if crc.Sum32() != binary.BigEndian.Uint32(body[n:]) {
		return nil, errors.Wrapf(ErrCorrupt, "crc mismatch at seq %d", binary.BigEndian.Uint64(header[1:9]))
	}
	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: body[:n],
	}, nil
}
