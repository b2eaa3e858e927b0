package grpcserver

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"google.golang.org/protobuf/types/known/structpb"
	"lukechampine.com/uint128"

	"clob/domain/ordertree"
	"clob/service"
)

// Integers travel as decimal strings so u64 and u128 values survive the
// float64 numbers of structpb. Numbers are accepted on input too.

var errField = errors.New("grpcserver: invalid field")

type fields struct {
	s   *structpb.Struct
	err error
}

func read(s *structpb.Struct) *fields {
	if s == nil {
		s = &structpb.Struct{}
	}
	return &fields{s: s}
}

func (f *fields) fail(key string, cause error) {
	if f.err == nil {
		f.err = errors.Wrapf(errField, "%s: %v", key, cause)
	}
}

func (f *fields) raw(key string) (string, bool) {
	v, ok := f.s.Fields[key]
	if !ok {
		return "", false
	}
	switch k := v.Kind.(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, true
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), true
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue), true
	default:
		return "", false
	}
}

func (f *fields) str(key string) string {
	v, _ := f.raw(key)
	return v
}

func (f *fields) pubkey(key string, required bool) solana.PublicKey {
	v, ok := f.raw(key)
	if !ok || v == "" {
		if required {
			f.fail(key, errors.New("required"))
		}
		return solana.PublicKey{}
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		f.fail(key, err)
	}
	return pk
}

func (f *fields) i64(key string) int64 {
	v, ok := f.raw(key)
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f.fail(key, err)
	}
	return n
}

func (f *fields) u64(key string) uint64 {
	v, ok := f.raw(key)
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		f.fail(key, err)
	}
	return n
}

func (f *fields) u128(key string) uint128.Uint128 {
	v, ok := f.raw(key)
	if !ok || v == "" {
		f.fail(key, errors.New("required"))
		return uint128.Zero
	}
	n, err := uint128.FromString(v)
	if err != nil {
		f.fail(key, err)
	}
	return n
}

func (f *fields) flag(key string) bool {
	v, ok := f.raw(key)
	if !ok || v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		f.fail(key, err)
	}
	return b
}

func (f *fields) side(key string) ordertree.Side {
	switch v := f.str(key); v {
	case "bid", "BID":
		return ordertree.Bid
	case "ask", "ASK":
		return ordertree.Ask
	default:
		f.fail(key, errors.Newf("unknown side %q", v))
		return ordertree.Bid
	}
}

func (f *fields) optionalSide(key string) *ordertree.Side {
	if f.str(key) == "" {
		return nil
	}
	s := f.side(key)
	return &s
}

func (f *fields) orderType(key string) service.OrderType {
	switch v := f.str(key); v {
	case "", "limit", "LIMIT":
		return service.Limit
	case "ioc", "IOC":
		return service.ImmediateOrCancel
	case "post_only", "POST_ONLY":
		return service.PostOnly
	case "market", "MARKET":
		return service.Market
	case "post_only_slide", "POST_ONLY_SLIDE":
		return service.PostOnlySlide
	default:
		f.fail(key, errors.Newf("unknown order type %q", v))
		return service.Limit
	}
}

func (f *fields) selfTrade(key string) service.SelfTradeBehavior {
	switch v := f.str(key); v {
	case "", "decrement_take":
		return service.DecrementTake
	case "cancel_provide":
		return service.CancelProvide
	case "abort":
		return service.AbortTransaction
	default:
		f.fail(key, errors.Newf("unknown self trade behavior %q", v))
		return service.DecrementTake
	}
}

// oracle reads an optional oracle price in lots.
func (f *fields) oracle(key string) ordertree.OraclePrice {
	if _, ok := f.raw(key); !ok {
		return ordertree.OraclePrice{}
	}
	return ordertree.WithOracle(f.i64(key))
}


// ─── writers ─────────────────────────────────────────────────

func i64(v int64) *structpb.Value  { return structpb.NewStringValue(strconv.FormatInt(v, 10)) }
func u64(v uint64) *structpb.Value { return structpb.NewStringValue(strconv.FormatUint(v, 10)) }
func str(v string) *structpb.Value { return structpb.NewStringValue(v) }

func object(m map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: m}
}

func list(items []*structpb.Struct) *structpb.Value {
	vs := make([]*structpb.Value, len(items))
	for i, it := range items {
		vs[i] = structpb.NewStructValue(it)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vs})
}
