// Package entry is the fill journal: an append-only log of framed,
// checksummed records split into numbered segment files.
package entry

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

var ErrNonMonotonic = errors.New("journal: non-monotonic sequence")

const DefaultSegmentSize = 64 << 20

type Config struct {
	Dir         string
	SegmentSize int64
	// SegmentDuration rotates segments by age as well as size when set.
	SegmentDuration time.Duration
}

type WAL struct {
	dir        string
	segSize    int64
	segAge     time.Duration
	current    *segment
	segIndex   int
	lastRotate time.Time
	lastSeq    uint64
}

// Open appends to the newest existing segment, creating the directory and
// the first segment if needed. lastSeq is the sequence the journal must
// continue after, usually what Replay returned.
func Open(cfg Config, lastSeq uint64) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}

	_, indices, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	idx := 0
	if len(indices) > 0 {
		idx = indices[len(indices)-1]
	}
	if len(indices) > 0 {
		if err := trimTornTail(segmentPath(cfg.Dir, idx)); err != nil {
			return nil, err
		}
	}
	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segAge:     cfg.SegmentDuration,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
		lastSeq:    lastSeq,
	}, nil
}

func (w *WAL) LastSeq() uint64 { return w.lastSeq }

func (w *WAL) Append(r *Record) error {
	if r.Seq <= w.lastSeq {
		return errors.Wrapf(ErrNonMonotonic, "append %d after %d", r.Seq, w.lastSeq)
	}
	if err := w.current.append(encodeFrame(r)); err != nil {
		return errors.Wrapf(err, "append seq %d", r.Seq)
	}
	w.lastSeq = r.Seq

	if w.current.offset >= w.segSize || (w.segAge > 0 && time.Since(w.lastRotate) >= w.segAge) {
		return w.rotate()
	}
	return nil
}

// Sync flushes the current segment to stable storage.
func (w *WAL) Sync() error {
	return w.current.sync()
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

func (w *WAL) Close() error {
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}

// TruncateBefore removes closed segments whose records all have a
// sequence at or below seq. The segment being written is never removed.
func (w *WAL) TruncateBefore(seq uint64) (int, error) {
	paths, indices, err := listSegments(w.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i, path := range paths {
		if indices[i] >= w.segIndex {
			break
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			return removed, err
		}
		if maxSeq > seq {
			break
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
