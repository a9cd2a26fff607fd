package market

import "math"

// PriceScale is the number of price units per tick of tolerance (4dp).
const PriceScale = 10000

// Ticks maps a price onto its tolerance bucket. Two prices are equal
// exactly when their ticks are equal.
func Ticks(p float64) int64 {
	return int64(math.RoundToEven(p * PriceScale))
}

// ApproxEqual reports whether a and b are the same price at 4dp.
func ApproxEqual(a, b float64) bool {
	return Ticks(a) == Ticks(b)
}

// Side is one side of the book.
type Side uint8

const (
	Ask Side = iota
	Bid
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

// SidePolicy captures everything that differs between the two sides:
// price priority and the sign of an agent fill.
type SidePolicy struct {
	side Side
}

var (
	// AskPolicy orders prices ascending; best is the lowest.
	AskPolicy = SidePolicy{side: Ask}
	// BidPolicy orders prices descending; best is the highest.
	BidPolicy = SidePolicy{side: Bid}
)

// PolicyFor returns the policy of a side.
func PolicyFor(s Side) SidePolicy {
	if s == Ask {
		return AskPolicy
	}
	return BidPolicy
}

func (p SidePolicy) Side() Side { return p.side }

// beforeTicks reports whether tick a has strictly higher priority than b.
func (p SidePolicy) beforeTicks(a, b int64) bool {
	if p.side == Ask {
		return a < b
	}
	return a > b
}

// Before reports whether price a is strictly better than price b.
func (p SidePolicy) Before(a, b float64) bool {
	return p.beforeTicks(Ticks(a), Ticks(b))
}

// AtOrBetter reports whether a is at b or better than it.
func (p SidePolicy) AtOrBetter(a, b float64) bool {
	return !p.Before(b, a)
}

// sign is the inventory sign of a resting agent fill on this side:
// a filled ask sold (-1), a filled bid bought (+1).
func (p SidePolicy) sign() float64 {
	if p.side == Ask {
		return -1
	}
	return 1
}
