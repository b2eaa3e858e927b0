package account

// BuybackFees are the two fee buckets of an account. Fees accrue into
// Current; once an interval ends they move to Previous and stay spendable
// for one more interval.
type BuybackFees struct {
	Current         uint64
	Previous        uint64
	ExpiryTimestamp uint64
}

func (a *Account) BuybackFees() BuybackFees {
	f := a.fixed()
	return BuybackFees{
		Current:         le.Uint64(f[hdrBuybackCurrent:]),
		Previous:        le.Uint64(f[hdrBuybackPrevious:]),
		ExpiryTimestamp: le.Uint64(f[hdrBuybackExpiry:]),
	}
}

func (a *Account) setBuybackFees(b BuybackFees) {
	f := a.fixed()
	le.PutUint64(f[hdrBuybackCurrent:], b.Current)
	le.PutUint64(f[hdrBuybackPrevious:], b.Previous)
	le.PutUint64(f[hdrBuybackExpiry:], b.ExpiryTimestamp)
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func (a *Account) AccrueBuybackFees(amount uint64) {
	b := a.BuybackFees()
	b.Current = saturatingAdd(b.Current, amount)
	a.setBuybackFees(b)
}

// ReduceBuybackFees spends amount, draining Previous before Current.
func (a *Account) ReduceBuybackFees(amount uint64) {
	b := a.BuybackFees()
	if amount > b.Previous {
		b.Current = saturatingSub(b.Current, amount-b.Previous)
		b.Previous = 0
	} else {
		b.Previous -= amount
	}
	a.setBuybackFees(b)
}

func (a *Account) BuybackFeesTotal() uint64 {
	b := a.BuybackFees()
	return saturatingAdd(b.Current, b.Previous)
}

// ExpireBuybackFees rolls the buckets once now reaches the expiry. Fees in
// Previous are dropped; Current moves to Previous unless more than a full
// interval passed since the expiry, in which case it is dropped too.
func (a *Account) ExpireBuybackFees(now, interval uint64) {
	b := a.BuybackFees()
	if interval == 0 || now < b.ExpiryTimestamp {
		return
	}
	if now < b.ExpiryTimestamp+interval {
		b.Previous = b.Current
	} else {
		b.Previous = 0
	}
	b.Current = 0
	b.ExpiryTimestamp = (now/interval + 1) * interval
	a.setBuybackFees(b)
}
