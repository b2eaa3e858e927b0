package account

import (
	"testing"

	"github.com/stretchr/testify/require"

	"clob/domain/market"
	"clob/domain/ordertree"
)

func TestLockFunds(t *testing.T) {
	a := newAccount(t, 2)
	m := testMarket()
	a.Deposit(m, 100, 1_000)
	require.EqualValues(t, 1_000, m.QuoteDepositTotal)

	require.NoError(t, a.LockFunds(ordertree.Bid, 900, 10))
	p := a.Position()
	require.EqualValues(t, 90, p.QuoteFreeNative)
	require.EqualValues(t, 10, p.LockedMakerFees)

	err := a.LockFunds(ordertree.Bid, 91, 0)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.EqualValues(t, 90, a.Position().QuoteFreeNative)

	require.NoError(t, a.LockFunds(ordertree.Ask, 100, 0))
	require.Zero(t, a.Position().BaseFreeNative)
	require.ErrorIs(t, a.LockFunds(ordertree.Ask, 1, 0), ErrInsufficientFunds)
	require.Error(t, a.LockFunds(ordertree.Ask, 0, 1))
}

func TestSettleFunds(t *testing.T) {
	a := newAccount(t, 1)
	m := &market.Market{QuoteLotSize: 1, BaseLotSize: 1, MakerFee: 100, TakerFee: 200}
	a.Deposit(m, 7, 11)
	p := a.Position()
	p.ReferrerRebatesAvailable = 3
	p.LockedMakerFees = 2
	a.SetPosition(p)
	m.ReferrerRebatesAccrued = 3

	s := a.SettleFunds(m)
	require.Equal(t, Settlement{BaseNative: 7, QuoteNative: 11, ReferrerRebate: 5}, s)
	require.True(t, a.Position().IsEmpty())
	require.EqualValues(t, 5, m.FeesAvailable)
	require.Zero(t, m.QuoteDepositTotal)
	require.Zero(t, m.BaseDepositTotal)
	require.Zero(t, m.ReferrerRebatesAccrued)
}

func TestSettleKeepsLockedFeesWhileBidsRest(t *testing.T) {
	a := newAccount(t, 1)
	m := &market.Market{QuoteLotSize: 1, BaseLotSize: 1, MakerFee: 100, TakerFee: 200}
	p := a.Position()
	p.BidsBaseLots = 1
	p.LockedMakerFees = 2
	a.SetPosition(p)

	s := a.SettleFunds(m)
	require.Zero(t, s.ReferrerRebate)
	require.EqualValues(t, 2, a.Position().LockedMakerFees)
}
