package ordertree

import "github.com/cockroachdb/errors"

var (
	ErrOutOfSpace      = errors.New("ordertree: out of space")
	ErrKeyNotFound     = errors.New("ordertree: key not found")
	ErrInvalidHandle   = errors.New("ordertree: invalid node handle")
	ErrCorrupt         = errors.New("ordertree: corrupt tree")
	ErrBufferSize      = errors.New("ordertree: invalid buffer size")
	ErrInvalidTreeType = errors.New("ordertree: invalid tree type")
	ErrInvalidPrice    = errors.New("ordertree: price lots must be >= 1")
)
