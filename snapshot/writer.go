package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

const filePattern = "snapshot-*.bin"

type Writer struct {
	Dir string
	// Keep is how many snapshots survive a write, 0 for all.
	Keep int
}

func fileName(seq uint64) string { return fmt.Sprintf("snapshot-%020d.bin", seq) }

// Write stores s next to earlier snapshots and returns its path. The file
// appears under its final name only once fully written.
func (w *Writer) Write(s *Snapshot) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create snapshot dir %s", w.Dir)
	}

	path := filepath.Join(w.Dir, fileName(s.Seq))
	f, err := os.CreateTemp(w.Dir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "encode snapshot")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, w.prune()
}

func (w *Writer) prune() error {
	if w.Keep <= 0 {
		return nil
	}
	paths, err := list(w.Dir)
	if err != nil {
		return err
	}
	for len(paths) > w.Keep {
		if err := os.Remove(paths[0]); err != nil {
			return err
		}
		paths = paths[1:]
	}
	return nil
}

// list returns snapshot files oldest first.
func list(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
