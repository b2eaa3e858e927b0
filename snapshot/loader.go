package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/cockroachdb/errors"
)

// Load reads the snapshot at path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return &s, nil
}

// Latest loads the newest snapshot in dir, nil if there is none.
func Latest(dir string) (*Snapshot, error) {
	paths, err := list(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return Load(paths[len(paths)-1])
}
