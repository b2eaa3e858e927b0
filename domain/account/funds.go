package account

import (
	"github.com/cockroachdb/errors"

	"clob/domain/market"
	"clob/domain/ordertree"
)

var ErrInsufficientFunds = errors.New("account: insufficient free funds")

// Deposit credits free balances and the market's deposit totals.
func (a *Account) Deposit(m *market.Market, baseNative, quoteNative uint64) PositionLog {
	m.BaseDepositTotal += baseNative
	m.QuoteDepositTotal += quoteNative
	return a.positionLog(a.updatePosition(func(p *Position) {
		p.BaseFreeNative += baseNative
		p.QuoteFreeNative += quoteNative
	}))
}

// LockFunds takes amount from the free balance that pays for an order on
// side: quote for bids, base for asks. makerFees is additionally moved
// from free quote into LockedMakerFees.
func (a *Account) LockFunds(side ordertree.Side, amount, makerFees uint64) error {
	p := a.Position()
	if side == ordertree.Bid {
		if p.QuoteFreeNative < amount+makerFees {
			return errors.Wrapf(ErrInsufficientFunds, "need %d quote, have %d", amount+makerFees, p.QuoteFreeNative)
		}
		p.QuoteFreeNative -= amount + makerFees
		p.LockedMakerFees += makerFees
	} else {
		if makerFees != 0 {
			return errors.Newf("account: asks lock no maker fees, got %d", makerFees)
		}
		if p.BaseFreeNative < amount {
			return errors.Wrapf(ErrInsufficientFunds, "need %d base, have %d", amount, p.BaseFreeNative)
		}
		p.BaseFreeNative -= amount
	}
	a.SetPosition(p)
	return nil
}

// Settlement is what SettleFunds paid out.
type Settlement struct {
	BaseNative     uint64
	QuoteNative    uint64
	ReferrerRebate uint64
}

// SettleFunds pays out the free balances. Referrer rebates, plus locked
// maker fees left over once no bids rest, go to the market's available
// fees since there is no referrer to pay.
func (a *Account) SettleFunds(m *market.Market) Settlement {
	var s Settlement
	a.updatePosition(func(p *Position) {
		var roundoff uint64
		if m.MakerFee > 0 && p.BidsBaseLots == 0 {
			roundoff = p.LockedMakerFees
			p.LockedMakerFees = 0
		}
		s = Settlement{
			BaseNative:     p.BaseFreeNative,
			QuoteNative:    p.QuoteFreeNative,
			ReferrerRebate: p.ReferrerRebatesAvailable + roundoff,
		}
		m.FeesAvailable += s.ReferrerRebate
		m.BaseDepositTotal -= min(m.BaseDepositTotal, p.BaseFreeNative)
		m.QuoteDepositTotal -= min(m.QuoteDepositTotal, p.QuoteFreeNative)
		m.ReferrerRebatesAccrued -= min(m.ReferrerRebatesAccrued, p.ReferrerRebatesAvailable)

		p.BaseFreeNative = 0
		p.QuoteFreeNative = 0
		p.ReferrerRebatesAvailable = 0
		p.PenaltyHeapCount = 0
	})
	return s
}
