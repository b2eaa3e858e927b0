package entry

import (
	"bufio"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in order and returns the last
// sequence seen. A frame cut short at the end of the newest segment is a
// torn write and ends the replay cleanly; anywhere else it is corruption.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	paths, _, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for i, path := range paths {
		last := i == len(paths)-1
		err := replaySegment(path, func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return errors.Wrapf(ErrNonMonotonic, "seq %d after %d in %s", rec.Seq, lastSeq, path)
			}
			lastSeq = rec.Seq
			return fn(rec)
		})
		if errors.Is(err, io.ErrUnexpectedEOF) && last {
			return lastSeq, nil
		}
		if err != nil {
			return lastSeq, errors.Wrapf(err, "replay %s", path)
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, fn ReplayHandler) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// maxSeqInSegment returns the highest sequence in a closed segment.
func maxSeqInSegment(path string) (uint64, error) {
	var max uint64
	err := replaySegment(path, func(rec *Record) error {
		if rec.Seq > max {
			max = rec.Seq
		}
		return nil
	})
	return max, err
}

// trimTornTail cuts a partially written frame off the end of path so new
// appends start on a frame boundary.
func trimTornTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := &countingReader{r: bufio.NewReader(f)}
	var valid int64
	for {
		_, err := readFrame(cr)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return f.Truncate(valid)
		}
		if err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}
		valid = cr.n
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
