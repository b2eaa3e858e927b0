package snapshot

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

type Snapshot struct {
	// Seq is the last event sequence the state includes.
	Seq      uint64
	Created  time.Time
	Market   []byte
	Bids     []byte
	Asks     []byte
	Accounts []AccountEntry
}

type AccountEntry struct {
	Address solana.PublicKey
	Data    []byte
}
