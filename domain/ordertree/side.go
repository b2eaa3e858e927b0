package ordertree

// Side is the side of an order, from the point of view of its owner.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

func (s Side) Valid() bool { return s == Bid || s == Ask }

func (s Side) Invert() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// IsPriceDataBetter reports whether lhs is a better price than rhs for s.
func (s Side) IsPriceDataBetter(lhs, rhs uint64) bool {
	if s == Bid {
		return lhs > rhs
	}
	return lhs < rhs
}

// IsPriceBetter reports whether lhs is a better price than rhs for s.
func (s Side) IsPriceBetter(lhs, rhs int64) bool {
	if s == Bid {
		return lhs > rhs
	}
	return lhs < rhs
}

// IsPriceWithinLimit reports whether price is acceptable for a limit
// order on s.
func (s Side) IsPriceWithinLimit(price, limit int64) bool {
	if s == Bid {
		return price <= limit
	}
	return price >= limit
}

// TreeType tags an arena with the side it stores. It decides the
// traversal direction of iterators.
type TreeType uint8

const (
	Bids TreeType = iota
	Asks
)

func (t TreeType) Valid() bool { return t == Bids || t == Asks }

func (t TreeType) Side() Side {
	if t == Bids {
		return Bid
	}
	return Ask
}

// TreeTypeFor returns the tree type storing resting orders of side s.
func TreeTypeFor(s Side) TreeType {
	if s == Bid {
		return Bids
	}
	return Asks
}

// BookSideOrderTree selects one of the two trees of a BookSide.
type BookSideOrderTree uint8

const (
	Fixed BookSideOrderTree = iota
	OraclePegged
)

func (c BookSideOrderTree) String() string {
	if c == OraclePegged {
		return "oracle_pegged"
	}
	return "fixed"
}

func (c BookSideOrderTree) other() BookSideOrderTree {
	if c == Fixed {
		return OraclePegged
	}
	return Fixed
}

// SideAndOrderTree packs a Side and a BookSideOrderTree into one byte.
type SideAndOrderTree uint8

const (
	BidFixed SideAndOrderTree = iota
	AskFixed
	BidOraclePegged
	AskOraclePegged
)

func NewSideAndOrderTree(side Side, tree BookSideOrderTree) SideAndOrderTree {
	switch {
	case side == Bid && tree == Fixed:
		return BidFixed
	case side == Ask && tree == Fixed:
		return AskFixed
	case side == Bid:
		return BidOraclePegged
	default:
		return AskOraclePegged
	}
}

func (s SideAndOrderTree) Valid() bool { return s <= AskOraclePegged }

func (s SideAndOrderTree) Side() Side {
	if s == BidFixed || s == BidOraclePegged {
		return Bid
	}
	return Ask
}

func (s SideAndOrderTree) OrderTree() BookSideOrderTree {
	if s == BidFixed || s == AskFixed {
		return Fixed
	}
	return OraclePegged
}
