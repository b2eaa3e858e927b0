package service

import (
	"context"

	"go.uber.org/zap"

	"clob/domain/ordertree"
	"clob/infra/codec"
)

// PruneExpired removes up to limit expired orders across both sides and
// returns their funds to the owners. It returns how many were removed.
func (e *Engine) PruneExpired(ctx context.Context, limit int) (int, error) {
	removed := 0
	err := e.run(ctx, "prune_expired", func(t *tx) error {
		removed = 0
		for _, side := range []ordertree.Side{ordertree.Bid, ordertree.Ask} {
			book := t.book(side)
			for limit <= 0 || removed < limit {
				leaf, ok := book.RemoveOneExpired(ordertree.Fixed, t.now)
				if !ok {
					break
				}
				if err := t.cancelResting(side, leaf, "expired"); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.log.Info("pruned expired orders", zap.Int("removed", removed))
	}
	return removed, nil
}

// ExpireBuybackFees rolls the buyback fee buckets of every account whose
// expiry has passed. It is a no-op when the market has no expiry interval.
func (e *Engine) ExpireBuybackFees(ctx context.Context) (int, error) {
	interval := e.Market().FeesExpiryInterval
	if interval == 0 {
		return 0, nil
	}
	rolled := 0
	err := e.run(ctx, "expire_buyback_fees", func(t *tx) error {
		rolled = 0
		for addr, a := range e.accounts {
			if t.now < a.BuybackFees().ExpiryTimestamp {
				continue
			}
			if _, err := t.account(addr); err != nil {
				return err
			}
			a.ExpireBuybackFees(t.now, interval)
			b := a.BuybackFees()
			t.emit(codec.TypeFeesExpired, map[string]string{
				"account":          addr.String(),
				"current":          u64(b.Current),
				"previous":         u64(b.Previous),
				"expiry_timestamp": u64(b.ExpiryTimestamp),
			})
			rolled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if rolled > 0 {
		e.log.Debug("buyback fees expired", zap.Int("accounts", rolled))
	}
	return rolled, nil
}
