package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"clob/domain/ordertree"
	"clob/infra/store"
	"clob/snapshot"
)

func TestSnapshotRestore(t *testing.T) {
	src, _ := newEngine(t)
	a := openAccount(t, src, alice, 100, 0)
	b := openAccount(t, src, bob, 0, 1000)
	place(t, src, limitOrder(a, alice, ordertree.Ask, 10, 5))
	place(t, src, limitOrder(b, bob, ordertree.Bid, 12, 2))
	place(t, src, limitOrder(b, bob, ordertree.Bid, 8, 3))

	snap, err := src.Snapshot()
	require.NoError(t, err)
	require.Equal(t, src.seq.Current(), snap.Seq)
	require.Len(t, snap.Accounts, 2)

	path, err := (&snapshot.Writer{Dir: t.TempDir()}).Write(snap)
	require.NoError(t, err)
	loaded, err := snapshot.Load(path)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	defer st.Close()

	dst, err := New(Deps{
		Market:    testMarket(),
		ProgramID: programID,
		Store:     st,
		Metrics:   NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	require.NoError(t, dst.Restore(context.Background(), loaded))

	require.Equal(t, src.Market(), dst.Market())
	require.Equal(t, levels(src, ordertree.Bid), levels(dst, ordertree.Bid))
	require.Equal(t, levels(src, ordertree.Ask), levels(dst, ordertree.Ask))
	require.Equal(t, position(t, src, a), position(t, dst, a))
	require.Equal(t, position(t, src, b), position(t, dst, b))
	require.Equal(t, snap.Seq, dst.seq.Current())

	// the restored state was persisted and a second restore is refused
	require.NoError(t, dst.Recover(context.Background()))
	require.Equal(t, position(t, src, b), position(t, dst, b))
	require.ErrorIs(t, dst.Restore(context.Background(), loaded), ErrStoreNotFresh)
}
