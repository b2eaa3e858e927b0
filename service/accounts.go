package service

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"clob/domain/account"
	"clob/infra/codec"
)

// OpenOrdersSeed prefixes the seeds of open-orders account addresses.
const OpenOrdersSeed = "OpenOrders"

// AccountAddress derives the open-orders account address of owner's
// accountNum-th account under programID.
func AccountAddress(programID, owner solana.PublicKey, accountNum uint32) (solana.PublicKey, uint8, error) {
	var num [4]byte
	binary.LittleEndian.PutUint32(num[:], accountNum)
	return solana.FindProgramAddress([][]byte{[]byte(OpenOrdersSeed), owner[:], num[:]}, programID)
}

type CreateAccountArgs struct {
	Owner      solana.PublicKey
	Delegate   solana.PublicKey
	Name       string
	AccountNum uint32
	Slots      int
}

// CreateAccount initializes an open-orders account with args.Slots order
// slots and returns its address.
func (e *Engine) CreateAccount(ctx context.Context, args CreateAccountArgs) (solana.PublicKey, error) {
	addr, bump, err := AccountAddress(e.programID, args.Owner, args.AccountNum)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "derive account address")
	}
	err = e.run(ctx, "create_account", func(t *tx) error {
		if _, ok := e.accounts[addr]; ok {
			return errors.Wrapf(ErrAccountExists, "%s", addr)
		}
		n, err := account.Space(args.Slots)
		if err != nil {
			return err
		}
		a, err := account.Initialize(make([]byte, n), account.InitParams{
			Owner:      args.Owner,
			Delegate:   args.Delegate,
			Name:       args.Name,
			AccountNum: args.AccountNum,
			Bump:       bump,
			Slots:      args.Slots,
		})
		if err != nil {
			return err
		}
		t.addAccount(addr, a)
		t.emit(codec.TypeAccountCreated, map[string]string{
			"account":     addr.String(),
			"owner":       args.Owner.String(),
			"delegate":    args.Delegate.String(),
			"name":        args.Name,
			"account_num": u64(uint64(args.AccountNum)),
			"slots":       i64(int64(args.Slots)),
		})
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	e.log.Info("account created", zap.Stringer("account", addr), zap.Stringer("owner", args.Owner),
		zap.Uint32("account_num", args.AccountNum), zap.Int("slots", args.Slots))
	return addr, nil
}

// ExpandAccount grows the order table of the account at addr to slots.
func (e *Engine) ExpandAccount(ctx context.Context, addr, signer solana.PublicKey, slots int) error {
	return e.run(ctx, "expand_account", func(t *tx) error {
		a, err := t.authorized(addr, signer)
		if err != nil {
			return err
		}
		if !a.Owner().Equals(signer) {
			return errors.Wrapf(ErrUnauthorized, "only the owner may resize %s", addr)
		}
		n, err := account.Space(slots)
		if err != nil {
			return err
		}
		if slots < a.OOCount() {
			return errors.Wrapf(account.ErrShrink, "from %d to %d slots", a.OOCount(), slots)
		}
		buf := make([]byte, n)
		copy(buf, a.Bytes())
		grown, err := account.FromBytes(buf)
		if err != nil {
			return err
		}
		if err := grown.ExpandDynamicContent(slots); err != nil {
			return err
		}
		t.replaceAccount(addr, grown)
		t.emit(codec.TypeAccountResized, map[string]string{
			"account": addr.String(),
			"slots":   i64(int64(slots)),
		})
		return nil
	})
}

// SetDelegate replaces the delegate of the account at addr. Only the
// owner may call it; a zero key removes the delegate.
func (e *Engine) SetDelegate(ctx context.Context, addr, signer, delegate solana.PublicKey) error {
	return e.run(ctx, "set_delegate", func(t *tx) error {
		a, err := t.account(addr)
		if err != nil {
			return err
		}
		if !a.Owner().Equals(signer) {
			return errors.Wrapf(ErrUnauthorized, "only the owner may set the delegate of %s", addr)
		}
		a.SetDelegate(delegate)
		t.emit(codec.TypeDelegateSet, map[string]string{
			"account":  addr.String(),
			"delegate": delegate.String(),
		})
		return nil
	})
}

// CloseAccount removes an account that holds no orders and no funds.
func (e *Engine) CloseAccount(ctx context.Context, addr, signer solana.PublicKey) error {
	return e.run(ctx, "close_account", func(t *tx) error {
		a, err := t.account(addr)
		if err != nil {
			return err
		}
		if !a.Owner().Equals(signer) {
			return errors.Wrapf(ErrUnauthorized, "only the owner may close %s", addr)
		}
		if !a.HasNoOrders() || !a.Position().IsEmpty() {
			return errors.Wrapf(ErrAccountNotEmpty, "%s", addr)
		}
		t.closeAccount(addr)
		t.emit(codec.TypeAccountClosed, map[string]string{"account": addr.String()})
		return nil
	})
}

// Deposit credits native base and quote to the account at addr.
func (e *Engine) Deposit(ctx context.Context, addr solana.PublicKey, baseNative, quoteNative uint64) error {
	return e.run(ctx, "deposit", func(t *tx) error {
		if e.market.IsExpired(e.clock().Unix()) {
			return ErrMarketExpired
		}
		a, err := t.account(addr)
		if err != nil {
			return err
		}
		if baseNative == 0 && quoteNative == 0 {
			return nil
		}
		pl := a.Deposit(e.market, baseNative, quoteNative)
		t.emit(codec.TypeDeposit, map[string]string{
			"account": addr.String(),
			"base":    u64(baseNative),
			"quote":   u64(quoteNative),
		})
		t.emitPosition(addr, pl)
		return nil
	})
}

// SettleFunds pays out the free balances of the account at addr to
// destination.
func (e *Engine) SettleFunds(ctx context.Context, addr, signer, destination solana.PublicKey) (account.Settlement, error) {
	var s account.Settlement
	err := e.run(ctx, "settle_funds", func(t *tx) error {
		a, err := t.authorized(addr, signer)
		if err != nil {
			return err
		}
		if !a.IsSettleDestinationAllowed(signer, destination) {
			return errors.Wrapf(ErrUnauthorized, "delegate may only settle to the owner of %s", addr)
		}
		s = a.SettleFunds(e.market)
		t.emit(codec.TypeSettle, map[string]string{
			"account":         addr.String(),
			"destination":     destination.String(),
			"base":            u64(s.BaseNative),
			"quote":           u64(s.QuoteNative),
			"referrer_rebate": u64(s.ReferrerRebate),
		})
		return nil
	})
	return s, err
}
