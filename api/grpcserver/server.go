package grpcserver

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"

	"clob/domain/account"
	"clob/domain/market"
	"clob/domain/ordertree"
	"clob/service"
)

// Engine is what the server needs from service.Engine.
type Engine interface {
	CreateAccount(ctx context.Context, args service.CreateAccountArgs) (solana.PublicKey, error)
	ExpandAccount(ctx context.Context, addr, signer solana.PublicKey, slots int) error
	SetDelegate(ctx context.Context, addr, signer, delegate solana.PublicKey) error
	CloseAccount(ctx context.Context, addr, signer solana.PublicKey) error
	Deposit(ctx context.Context, addr solana.PublicKey, baseNative, quoteNative uint64) error
	SettleFunds(ctx context.Context, addr, signer, destination solana.PublicKey) (account.Settlement, error)

	PlaceOrder(ctx context.Context, args service.PlaceOrderArgs) (service.PlaceResult, error)
	CancelOrder(ctx context.Context, addr, signer solana.PublicKey, id uint128.Uint128) (ordertree.LeafNode, error)
	CancelOrderByClientID(ctx context.Context, addr, signer solana.PublicKey, clientOrderID uint64) (ordertree.LeafNode, error)
	CancelAllOrders(ctx context.Context, addr, signer solana.PublicKey, side *ordertree.Side, limit int) (int64, error)

	Book(side ordertree.Side, depth int, oracle ordertree.OraclePrice) service.BookView
	Account(addr solana.PublicKey) (service.AccountView, error)
	Market() market.Market
}

// Server adapts Engine to gRPC.
type Server struct {
	engine Engine
	log    *zap.Logger
}

func NewServer(engine Engine, log *zap.Logger) *Server {
	return &Server{engine: engine, log: log.Named("grpc")}
}

// -------------------- Accounts --------------------

func (s *Server) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	args := service.CreateAccountArgs{
		Owner:      f.pubkey("owner", true),
		Delegate:   f.pubkey("delegate", false),
		Name:       f.str("name"),
		AccountNum: uint32(f.u64("account_num")),
		Slots:      int(f.i64("slots")),
	}
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	addr, err := s.engine.CreateAccount(ctx, args)
	if err != nil {
		return nil, toStatus(err)
	}
	return object(map[string]*structpb.Value{"account": str(addr.String())}), nil
}

func (s *Server) ExpandAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	slots := int(f.i64("slots"))
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	if err := s.engine.ExpandAccount(ctx, addr, signer, slots); err != nil {
		return nil, toStatus(err)
	}
	return ok(), nil
}

func (s *Server) SetDelegate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	delegate := f.pubkey("delegate", false)
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	if err := s.engine.SetDelegate(ctx, addr, signer, delegate); err != nil {
		return nil, toStatus(err)
	}
	return ok(), nil
}

func (s *Server) CloseAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	if err := s.engine.CloseAccount(ctx, addr, signer); err != nil {
		return nil, toStatus(err)
	}
	return ok(), nil
}

func (s *Server) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr := f.pubkey("account", true)
	base, quote := f.u64("base"), f.u64("quote")
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	if err := s.engine.Deposit(ctx, addr, base, quote); err != nil {
		return nil, toStatus(err)
	}
	return ok(), nil
}

func (s *Server) SettleFunds(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	dest := f.pubkey("destination", true)
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	st, err := s.engine.SettleFunds(ctx, addr, signer, dest)
	if err != nil {
		return nil, toStatus(err)
	}
	return object(map[string]*structpb.Value{
		"base":            u64(st.BaseNative),
		"quote":           u64(st.QuoteNative),
		"referrer_rebate": u64(st.ReferrerRebate),
	}), nil
}

// -------------------- Orders --------------------

func (s *Server) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	args := service.PlaceOrderArgs{
		Account:                   f.pubkey("account", true),
		Signer:                    f.pubkey("signer", true),
		Side:                      f.side("side"),
		Type:                      f.orderType("type"),
		PriceLots:                 f.i64("price_lots"),
		Pegged:                    f.flag("pegged"),
		PegOffsetLots:             f.i64("peg_offset_lots"),
		PegLimit:                  f.i64("peg_limit"),
		MaxBaseLots:               f.i64("max_base_lots"),
		MaxQuoteLotsIncludingFees: f.i64("max_quote_lots"),
		ClientOrderID:             f.u64("client_order_id"),
		ExpiryTimestamp:           f.u64("expiry_timestamp"),
		SelfTrade:                 f.selfTrade("self_trade"),
		Limit:                     uint8(f.u64("limit")),
		Oracle:                    f.oracle("oracle_lots"),
	}
	if f.err != nil {
		return nil, toStatus(f.err)
	}

	res, err := s.engine.PlaceOrder(ctx, args)
	if err != nil {
		return nil, toStatus(err)
	}

	fills := make([]*structpb.Struct, 0, len(res.Fills))
	for _, fl := range res.Fills {
		fills = append(fills, object(map[string]*structpb.Value{
			"maker":                 str(fl.Maker.String()),
			"maker_client_order_id": u64(fl.MakerClientOrderID),
			"maker_out":             structpb.NewBoolValue(fl.MakerOut),
			"maker_fee":             u64(fl.MakerFee),
			"price_lots":            i64(fl.Price),
			"quantity":              i64(fl.Quantity),
		}))
	}

	s.log.Debug("place order",
		zap.Stringer("account", args.Account),
		zap.Stringer("side", args.Side),
		zap.Stringer("type", args.Type),
		zap.Int64("price_lots", args.PriceLots),
		zap.Int("fills", len(res.Fills)),
	)

	return object(map[string]*structpb.Value{
		"order_id":         str(res.OrderID.String()),
		"posted":           structpb.NewBoolValue(res.Posted),
		"slot":             i64(int64(res.Slot)),
		"posted_base_lots": i64(res.PostedBaseLots),
		"skipped":          structpb.NewBoolValue(res.Skipped),
		"base_taken":       u64(res.TotalBaseTakenNative),
		"quote_taken":      u64(res.TotalQuoteTakenNative),
		"taker_fees":       u64(res.TakerFees),
		"maker_fees":       u64(res.MakerFees),
		"penalty":          u64(res.Penalty),
		"fills":            list(fills),
	}), nil
}

func (s *Server) CancelOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	var (
		leaf ordertree.LeafNode
		err  error
	)
	if _, byClient := f.raw("client_order_id"); byClient {
		cid := f.u64("client_order_id")
		if f.err != nil {
			return nil, toStatus(f.err)
		}
		leaf, err = s.engine.CancelOrderByClientID(ctx, addr, signer, cid)
	} else {
		id := f.u128("order_id")
		if f.err != nil {
			return nil, toStatus(f.err)
		}
		leaf, err = s.engine.CancelOrder(ctx, addr, signer, id)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return object(map[string]*structpb.Value{
		"order_id": str(leaf.Key.String()),
		"quantity": i64(leaf.Quantity),
	}), nil
}

func (s *Server) CancelAllOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr, signer := f.pubkey("account", true), f.pubkey("signer", true)
	side := f.optionalSide("side")
	limit := int(f.i64("limit"))
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	n, err := s.engine.CancelAllOrders(ctx, addr, signer, side, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return object(map[string]*structpb.Value{"quantity": i64(n)}), nil
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	side := f.side("side")
	depth := int(f.i64("depth"))
	oracle := f.oracle("oracle_lots")
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	v := s.engine.Book(side, depth, oracle)

	levels := make([]*structpb.Struct, 0, len(v.Levels))
	for _, l := range v.Levels {
		levels = append(levels, object(map[string]*structpb.Value{
			"price_lots": i64(l.PriceLots),
			"quantity":   i64(l.Quantity),
			"orders":     i64(int64(l.Orders)),
		}))
	}
	orders := make([]*structpb.Struct, 0, len(v.Orders))
	for _, o := range v.Orders {
		orders = append(orders, object(map[string]*structpb.Value{
			"order_id":        str(o.ID.String()),
			"tree":            str(o.Tree.String()),
			"owner":           str(o.Owner.String()),
			"client_order_id": u64(o.ClientOrderID),
			"price_lots":      i64(o.PriceLots),
			"quantity":        i64(o.Quantity),
			"timestamp":       u64(o.Timestamp),
			"time_in_force":   u64(uint64(o.TimeInForce)),
			"peg_limit":       i64(o.PegLimit),
		}))
	}
	return object(map[string]*structpb.Value{
		"side":   str(side.String()),
		"levels": list(levels),
		"orders": list(orders),
	}), nil
}

func (s *Server) GetAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := read(req)
	addr := f.pubkey("account", true)
	if f.err != nil {
		return nil, toStatus(f.err)
	}
	v, err := s.engine.Account(addr)
	if err != nil {
		return nil, toStatus(err)
	}
	p := v.Position
	orders := make([]*structpb.Struct, 0, len(v.Orders))
	for _, o := range v.Orders {
		orders = append(orders, object(map[string]*structpb.Value{
			"slot":            i64(int64(o.Slot)),
			"order_id":        str(o.ID.String()),
			"side":            str(o.Side().String()),
			"tree":            str(o.OrderTree().String()),
			"client_order_id": u64(o.ClientID),
			"peg_limit":       i64(o.PegLimit),
		}))
	}
	return object(map[string]*structpb.Value{
		"account":                    str(v.Address.String()),
		"owner":                      str(v.Owner.String()),
		"delegate":                   str(v.Delegate.String()),
		"name":                       str(v.Name),
		"account_num":                u64(uint64(v.AccountNum)),
		"slots":                      i64(int64(v.Slots)),
		"bids_base_lots":             i64(p.BidsBaseLots),
		"bids_quote_lots":            i64(p.BidsQuoteLots),
		"asks_base_lots":             i64(p.AsksBaseLots),
		"base_free_native":           u64(p.BaseFreeNative),
		"quote_free_native":          u64(p.QuoteFreeNative),
		"locked_maker_fees":          u64(p.LockedMakerFees),
		"referrer_rebates_available": u64(p.ReferrerRebatesAvailable),
		"maker_volume":               str(p.MakerVolume.String()),
		"taker_volume":               str(p.TakerVolume.String()),
		"buyback_current":            u64(v.Buyback.Current),
		"buyback_previous":           u64(v.Buyback.Previous),
		"buyback_expiry":             u64(v.Buyback.ExpiryTimestamp),
		"orders":                     list(orders),
	}), nil
}

func (s *Server) GetMarket(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	m := s.engine.Market()
	return object(map[string]*structpb.Value{
		"name":                     str(m.Name),
		"base_lot_size":            i64(m.BaseLotSize),
		"quote_lot_size":           i64(m.QuoteLotSize),
		"maker_fee":                i64(m.MakerFee),
		"taker_fee":                i64(m.TakerFee),
		"fee_penalty":              u64(m.FeePenalty),
		"fees_expiry_interval":     u64(m.FeesExpiryInterval),
		"time_expiry":              i64(m.TimeExpiry),
		"seq_num":                  u64(m.SeqNum),
		"fees_accrued":             u64(m.FeesAccrued),
		"fees_available":           u64(m.FeesAvailable),
		"referrer_rebates_accrued": u64(m.ReferrerRebatesAccrued),
		"quote_fees_accrued":       u64(m.QuoteFeesAccrued),
		"maker_volume":             str(m.MakerVolume.String()),
		"base_deposit_total":       u64(m.BaseDepositTotal),
		"quote_deposit_total":      u64(m.QuoteDepositTotal),
	}), nil
}

func ok() *structpb.Struct {
	return object(map[string]*structpb.Value{"status": str("ok")})
}
