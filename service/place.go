package service

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"lukechampine.com/uint128"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
)

const (
	// DefaultMatchLimit caps the maker orders one order may fill when
	// PlaceOrderArgs.Limit is 0.
	DefaultMatchLimit = 50
	// DropExpiredOrderLimit caps the invalid orders one order removes
	// from the opposing side while matching.
	DropExpiredOrderLimit = 5
)

type OrderType uint8

const (
	// Limit takes up to the price and posts the remainder.
	Limit OrderType = iota
	// ImmediateOrCancel takes up to the price and never posts.
	ImmediateOrCancel
	// PostOnly posts only if it would not take; otherwise it does nothing.
	PostOnly
	// Market takes at any price and never posts.
	Market
	// PostOnlySlide moves its price to just short of the opposing best
	// price and always posts.
	PostOnlySlide
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case ImmediateOrCancel:
		return "ioc"
	case PostOnly:
		return "post_only"
	case Market:
		return "market"
	case PostOnlySlide:
		return "post_only_slide"
	default:
		return "unknown"
	}
}

func (t OrderType) posts() bool { return t == Limit || t == PostOnly || t == PostOnlySlide }

func (t OrderType) isPostOnly() bool { return t == PostOnly || t == PostOnlySlide }

// Taking-only orders that fill pay the market's fee penalty.
func (t OrderType) needsPenaltyFee() bool { return t == ImmediateOrCancel || t == Market }

// SelfTradeBehavior decides what happens when an order meets a resting
// order of the same account.
type SelfTradeBehavior uint8

const (
	// DecrementTake matches both orders without fees.
	DecrementTake SelfTradeBehavior = iota
	// CancelProvide cancels the resting order and keeps matching.
	CancelProvide
	// AbortTransaction rejects the whole order.
	AbortTransaction
)

type PlaceOrderArgs struct {
	Account solana.PublicKey
	Signer  solana.PublicKey
	Side    ordertree.Side
	Type    OrderType

	// PriceLots is the limit price. Market orders ignore it.
	PriceLots int64

	// Pegged orders trade at oracle + PegOffsetLots and are invalid once
	// that crosses PegLimit.
	Pegged        bool
	PegOffsetLots int64
	PegLimit      int64

	MaxBaseLots               int64
	MaxQuoteLotsIncludingFees int64
	ClientOrderID             uint64
	// ExpiryTimestamp is in unix seconds, 0 for never. Expiries in the
	// past skip the order; far ones are capped at 65535s from now.
	ExpiryTimestamp uint64
	SelfTrade       SelfTradeBehavior
	// Limit caps the maker orders matched, DefaultMatchLimit when 0.
	Limit  uint8
	Oracle ordertree.OraclePrice
}

type PlaceResult struct {
	OrderID uint128.Uint128
	// Posted is set when a remainder rests on the book in Slot.
	Posted         bool
	Slot           int
	PostedBaseLots int64
	// Skipped is set when the expiry was already past.
	Skipped bool

	Fills                 []account.FillLog
	TotalBaseTakenNative  uint64
	TotalQuoteTakenNative uint64
	TakerFees             uint64
	MakerFees             uint64
	ReferrerAmount        uint64
	Penalty               uint64
}

type matchedChange struct {
	handle   ordertree.NodeHandle
	quantity int64
}

type matchedDelete struct {
	tree ordertree.BookSideOrderTree
	key  uint128.Uint128
}

// timeInForce converts an expiry timestamp into seconds from now.
func timeInForce(expiry, now uint64) (uint16, bool) {
	if expiry == 0 {
		return 0, true
	}
	if expiry <= now {
		return 0, false
	}
	return uint16(min(expiry-now, math.MaxUint16)), true
}

func (a *PlaceOrderArgs) validate(m *market.Market) error {
	if !a.Side.Valid() {
		return errors.Wrapf(ErrInvalidOrder, "side %d", a.Side)
	}
	if a.MaxBaseLots < 0 || a.MaxQuoteLotsIncludingFees < 0 {
		return errors.Wrapf(ErrInvalidOrder, "negative size base %d quote %d", a.MaxBaseLots, a.MaxQuoteLotsIncludingFees)
	}
	if a.MaxBaseLots > m.MaxBaseLots() {
		return errors.Wrapf(ErrInvalidLotsSize, "base lots %d above %d", a.MaxBaseLots, m.MaxBaseLots())
	}
	if a.MaxQuoteLotsIncludingFees > m.MaxQuoteLots() {
		return errors.Wrapf(ErrInvalidLotsSize, "quote lots %d above %d", a.MaxQuoteLotsIncludingFees, m.MaxQuoteLots())
	}
	if a.Type > PostOnlySlide {
		return errors.Wrapf(ErrInvalidOrder, "order type %d", a.Type)
	}
	if a.Pegged {
		if !a.Type.posts() {
			return errors.Wrapf(ErrInvalidOrder, "%s order cannot be pegged", a.Type)
		}
		if a.PegLimit <= 0 {
			return errors.Wrapf(ErrInvalidOrder, "peg limit %d", a.PegLimit)
		}
		if !a.Oracle.Valid {
			return ErrOracleRequired
		}
		return nil
	}
	if a.Type != Market && a.PriceLots < 1 {
		return errors.Wrapf(ErrInvalidOrder, "price %d", a.PriceLots)
	}
	return nil
}

// price returns the order's limit price now and the price data of its key.
func (e *Engine) price(a *PlaceOrderArgs, now uint64) (int64, uint64, error) {
	var priceLots int64
	switch {
	case a.Pegged:
		p, ok := addChecked(a.Oracle.Lots, a.PegOffsetLots)
		if !ok {
			return 0, 0, errors.Wrapf(ErrInvalidOrder, "oracle %d offset %d overflows", a.Oracle.Lots, a.PegOffsetLots)
		}
		priceLots = p
	case a.Type == Market:
		priceLots = 1
		if a.Side == ordertree.Bid {
			priceLots = math.MaxInt64
		}
	default:
		priceLots = a.PriceLots
	}

	if a.Type == PostOnlySlide {
		if best, ok := e.book(a.Side.Invert()).BestPrice(now, a.Oracle); ok {
			priceLots = postOnlySlideLimit(a.Side, best, priceLots)
		}
	}
	if priceLots < 1 {
		return 0, 0, errors.Wrapf(ordertree.ErrInvalidPrice, "price %d", priceLots)
	}

	if a.Pegged {
		return priceLots, ordertree.OraclePeggedPriceData(priceLots - a.Oracle.Lots), nil
	}
	data, err := ordertree.FixedPriceData(priceLots)
	return priceLots, data, err
}

// postOnlySlideLimit is the price just short of crossing best.
func postOnlySlideLimit(side ordertree.Side, best, limit int64) int64 {
	if side == ordertree.Bid {
		return min(limit, best-1)
	}
	return max(limit, best+1)
}

func addChecked(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

// PlaceOrder matches the order against the opposing side, settles every
// fill on both accounts and posts what remains when the order type allows
// it. Funds for taken and posted amounts are locked from the account's
// free balances; the order fails if they do not cover it.
func (e *Engine) PlaceOrder(ctx context.Context, args PlaceOrderArgs) (PlaceResult, error) {
	mk := e.Market()
	if err := args.validate(&mk); err != nil {
		e.metrics.rejected.WithLabelValues("place_order").Inc()
		return PlaceResult{}, err
	}

	var res PlaceResult
	err := e.run(ctx, "place_order", func(t *tx) error {
		var err error
		res, err = e.placeOrder(t, &args)
		return err
	})
	if err != nil {
		return PlaceResult{}, err
	}
	e.metrics.fills.Add(float64(len(res.Fills)))
	if !res.Skipped {
		e.log.Debug("order placed",
			zap.Stringer("account", args.Account),
			zap.Stringer("side", args.Side),
			zap.Stringer("type", args.Type),
			zap.Int("fills", len(res.Fills)),
			zap.Bool("posted", res.Posted),
		)
	}
	return res, nil
}

func (e *Engine) placeOrder(t *tx, a *PlaceOrderArgs) (PlaceResult, error) {
	now := t.now
	m := e.market

	taker, err := t.authorized(a.Account, a.Signer)
	if err != nil {
		return PlaceResult{}, err
	}
	if m.IsExpired(int64(now)) {
		return PlaceResult{}, ErrMarketExpired
	}
	tif, ok := timeInForce(a.ExpiryTimestamp, now)
	if !ok {
		return PlaceResult{Skipped: true}, nil
	}

	priceLots, priceData, err := e.price(a, now)
	if err != nil {
		return PlaceResult{}, err
	}

	side := a.Side
	postOnly := a.Type.isPostOnly()
	canPost := a.Type.posts()
	postTarget := ordertree.Fixed
	pegLimit := int64(-1)
	if a.Pegged {
		postTarget = ordertree.OraclePegged
		pegLimit = a.PegLimit
	}
	res := PlaceResult{OrderID: m.GenOrderID(side, priceData), Slot: -1}

	maxQuoteLots := a.MaxQuoteLotsIncludingFees
	if side == ordertree.Bid && !postOnly {
		maxQuoteLots = m.SubtractTakerFees(maxQuoteLots)
	}
	remainingBase := a.MaxBaseLots
	remainingQuote := maxQuoteLots
	var decrementedQuote int64
	var makerRebates uint64

	limit := int(a.Limit)
	if limit == 0 {
		limit = DefaultMatchLimit
	}

	// Changes to the opposing side wait until the walk is over.
	var changes []matchedChange
	var deletes []matchedDelete
	dropped := 0

	opposing := t.book(side.Invert())
	it := opposing.Iter(now, a.Oracle)
	for remainingBase > 0 && remainingQuote > 0 {
		best, ok := it.Next()
		if !ok {
			break
		}
		maker := best.Leaf

		if !best.IsValid() {
			if dropped < DropExpiredOrderLimit {
				dropped++
				if err := t.cancelResting(side.Invert(), maker, "expired"); err != nil {
					return PlaceResult{}, err
				}
				deletes = append(deletes, matchedDelete{tree: best.Tree, key: maker.Key})
			}
			continue
		}

		if !side.IsPriceWithinLimit(best.PriceLots, priceLots) {
			break
		}
		if postOnly {
			canPost = false
			break
		}
		if limit == 0 {
			canPost = false
			break
		}

		maxMatchByQuote := remainingQuote / best.PriceLots
		if maxMatchByQuote == 0 {
			canPost = false
			break
		}
		matchBase := min(remainingBase, maker.Quantity, maxMatchByQuote)
		matchQuote := matchBase * best.PriceLots

		if maker.Owner.Equals(a.Account) {
			switch a.SelfTrade {
			case DecrementTake:
				decrementedQuote += matchQuote
			case CancelProvide:
				if err := t.cancelResting(side.Invert(), maker, "cancelled"); err != nil {
					return PlaceResult{}, err
				}
				deletes = append(deletes, matchedDelete{tree: best.Tree, key: maker.Key})
				continue
			default:
				return PlaceResult{}, errors.Wrapf(ErrWouldSelfTrade, "resting order %s", maker.Key)
			}
		} else {
			makerRebates += m.MakerRebateFloor(uint64(matchQuote) * uint64(m.QuoteLotSize))
		}

		remainingBase -= matchBase
		remainingQuote -= matchQuote

		left := maker.Quantity - matchBase
		if left == 0 {
			deletes = append(deletes, matchedDelete{tree: best.Tree, key: maker.Key})
		} else {
			changes = append(changes, matchedChange{handle: best.Handle, quantity: left})
		}

		fill := &account.FillEvent{
			TakerSide:          side,
			MakerOut:           left == 0,
			MakerSlot:          maker.OwnerSlot,
			Timestamp:          now,
			MarketSeqNum:       m.SeqNum,
			Maker:              maker.Owner,
			MakerClientOrderID: maker.ClientOrderID,
			MakerTimestamp:     maker.Timestamp,
			Taker:              a.Account,
			TakerClientOrderID: a.ClientOrderID,
			Price:              best.PriceLots,
			PegLimit:           maker.PegLimit,
			Quantity:           matchBase,
		}
		makerAcc, err := t.account(maker.Owner)
		if err != nil {
			return PlaceResult{}, errors.Wrap(err, "maker of resting order")
		}
		makerAcc.ExpireBuybackFees(now, m.FeesExpiryInterval)
		fl, pl, err := makerAcc.ExecuteMaker(m, fill)
		if err != nil {
			return PlaceResult{}, err
		}
		t.emitFill(fl)
		t.emitPosition(maker.Owner, pl)
		res.Fills = append(res.Fills, fl)
		limit--
	}
	if err := it.Err(); err != nil {
		return PlaceResult{}, err
	}

	totalQuoteLotsTaken := maxQuoteLots - remainingQuote
	totalBaseLotsTaken := a.MaxBaseLots - remainingBase
	// both totals are bounded by the validated order size
	res.TotalBaseTakenNative = uint64(totalBaseLotsTaken) * uint64(m.BaseLotSize)
	res.TotalQuoteTakenNative = uint64(totalQuoteLotsTaken) * uint64(m.QuoteLotSize)

	if totalQuoteLotsTaken > 0 || totalBaseLotsTaken > 0 {
		if woSelf := uint64(totalQuoteLotsTaken-decrementedQuote) * uint64(m.QuoteLotSize); woSelf > 0 {
			res.TakerFees = m.TakerFeesCeil(woSelf)
			res.ReferrerAmount = res.TakerFees - min(res.TakerFees, makerRebates)
			m.FeesAccrued += res.ReferrerAmount
		}
		pl := taker.ExecuteTaker(m, side, res.TotalBaseTakenNative, res.TotalQuoteTakenNative,
			res.TakerFees, res.ReferrerAmount)
		t.emitPosition(a.Account, pl)
	}

	takerFeesLots := (int64(res.TakerFees) + m.QuoteLotSize - 1) / m.QuoteLotSize
	remainingQuote = a.MaxQuoteLotsIncludingFees - totalQuoteLotsTaken - takerFeesLots

	for _, c := range changes {
		if err := opposing.SetLeafQuantity(c.handle, c.quantity); err != nil {
			return PlaceResult{}, err
		}
	}
	for _, d := range deletes {
		if _, err := opposing.RemoveByKey(d.tree, d.key); err != nil {
			return PlaceResult{}, errors.Wrapf(err, "remove matched order %s", d.key)
		}
	}

	// Bids lock quote at the peg limit, the worst price they may pay.
	lockPrice := priceLots
	if a.Pegged && side == ordertree.Bid {
		lockPrice = a.PegLimit
	}
	if remainingQuote > 0 {
		remainingQuote -= int64(m.MakerFeesCeil(uint64(remainingQuote)))
	}
	bookBase := min(remainingBase, max(remainingQuote, 0)/lockPrice)
	if bookBase <= 0 {
		canPost = false
	}
	if a.Pegged && side.IsPriceBetter(priceLots, a.PegLimit) {
		canPost = false
	}

	var postedBaseNative, postedQuoteNative uint64
	if canPost {
		postedBaseNative, postedQuoteNative, err = postAmount(m, bookBase, lockPrice)
		if err != nil {
			return PlaceResult{}, err
		}
		if side == ordertree.Bid {
			res.MakerFees = m.MakerFeesCeil(postedQuoteNative)
		}
		slot, err := e.post(t, taker, a, postTarget, priceLots, pegLimit, tif, bookBase, res.OrderID)
		if err != nil {
			return PlaceResult{}, err
		}
		res.Posted = true
		res.Slot = slot
		res.PostedBaseLots = bookBase
	}

	if a.Type.needsPenaltyFee() && len(res.Fills) > 0 {
		res.Penalty = m.ApplyPenalty()
	}

	var lockErr error
	if side == ordertree.Bid {
		needed := res.TotalQuoteTakenNative + res.TakerFees + postedQuoteNative + res.Penalty
		lockErr = taker.LockFunds(ordertree.Bid, needed, res.MakerFees)
	} else {
		lockErr = taker.LockFunds(ordertree.Ask, res.TotalBaseTakenNative+postedBaseNative, 0)
		if lockErr == nil && res.Penalty > 0 {
			lockErr = taker.LockFunds(ordertree.Bid, res.Penalty, 0)
		}
	}
	if lockErr != nil {
		return PlaceResult{}, lockErr
	}
	if res.Posted || res.Penalty > 0 {
		t.emitPosition(a.Account, taker.PositionLog())
	}
	return res, nil
}

// postAmount is the native base and quote an order resting bookBase lots
// at lockPrice ties up.
func postAmount(m *market.Market, bookBase, lockPrice int64) (uint64, uint64, error) {
	quote, err := m.QuoteNative(bookBase, lockPrice)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrInvalidPostAmount, "%v", err)
	}
	base, err := m.BaseNative(bookBase)
	if err != nil {
		return 0, 0, errors.Wrapf(ErrInvalidPostAmount, "%v", err)
	}
	return base, quote, nil
}

// post rests bookBase lots of the order on its side, making room first
// by dropping one expired order and, if the side is still full, the worst
// order when the new one beats it.
func (e *Engine) post(t *tx, taker *account.Account, a *PlaceOrderArgs, target ordertree.BookSideOrderTree,
	priceLots, pegLimit int64, tif uint16, bookBase int64, orderID uint128.Uint128) (int, error) {
	now := t.now
	side := a.Side
	book := t.book(side)

	if expired, ok := book.RemoveOneExpired(target, now); ok {
		if err := t.cancelResting(side, expired, "expired"); err != nil {
			return 0, err
		}
	}
	if book.IsFull() {
		worst, worstPrice, ok := book.RemoveWorst(now, a.Oracle)
		if !ok || !side.IsPriceBetter(priceLots, worstPrice) {
			return 0, errors.Wrapf(ErrBookFull, "price %d, worst %d", priceLots, worstPrice)
		}
		if err := t.cancelResting(side, worst, "evicted"); err != nil {
			return 0, err
		}
	}

	slot, err := taker.NextOrderSlot()
	if err != nil {
		return 0, err
	}
	leaf := ordertree.NewLeafNode(uint8(slot), orderID, a.Account, bookBase, now, tif, pegLimit, a.ClientOrderID)
	if _, _, err := book.InsertLeaf(target, &leaf); err != nil {
		return 0, err
	}
	if err := taker.AddOrder(side, target, &leaf, a.ClientOrderID, pegLimit); err != nil {
		return 0, err
	}
	t.emitPlaced(side, target, leaf, priceLots)
	return slot, nil
}

// cancelResting returns the funds of a resting order to its owner. The
// caller removes the leaf from the book.
func (t *tx) cancelResting(side ordertree.Side, l ordertree.LeafNode, reason string) error {
	owner, err := t.account(l.Owner)
	if err != nil {
		return errors.Wrapf(err, "owner of order %s", l.Key)
	}
	tree := owner.OrderByRawIndex(int(l.OwnerSlot)).OrderTree()
	if err := owner.CancelOrder(int(l.OwnerSlot), l.Quantity, t.e.market); err != nil {
		return err
	}
	t.emitOut(side, tree, l, reason)
	t.emitPosition(l.Owner, owner.PositionLog())
	return nil
}
