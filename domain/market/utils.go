package market

import (
	"math"

	"github.com/cockroachdb/errors"
)

func checkPair(ask, bid *Book) error {
	if ask.Side() != Ask || bid.Side() != Bid {
		return errors.Wrapf(ErrInvalidArgument, "expected (ask, bid) books, got (%s, %s)", ask.Side(), bid.Side())
	}
	return nil
}

// HandleAdverseSelection fully executes every agent order the market has
// moved through: asks priced at or below the best bid and bids priced at or
// above the best ask. Each fills at its own price, valued against the
// previous midprice.
func HandleAdverseSelection(ask, bid *Book) (Execution, error) {
	if err := checkPair(ask, bid); err != nil {
		return Execution{}, err
	}

	bap, err := ask.Price(0)
	if err != nil {
		return Execution{}, err
	}
	bbp, err := bid.Price(0)
	if err != nil {
		return Execution{}, err
	}
	rp, err := LastMidprice(ask, bid)
	if err != nil {
		return Execution{}, err
	}

	return ask.executeThrough(bbp, rp).Add(bid.executeThrough(bap, rp)), nil
}

// executeThrough force-fills the orders at or through the opposing touch.
func (b *Book) executeThrough(touch, ref float64) Execution {
	var out Execution
	for _, p := range b.orders.Prices() {
		if !b.policy.AtOrBetter(p, touch) {
			break
		}
		o, _ := b.orders.Get(p)
		rem := o.Remaining()

		o.ClearQueues()
		_, _ = o.DoTransaction(rem)

		out = out.Add(b.policy.fill(p, ref, rem))

		b.orders.Delete(p)
		b.nTransacted++
	}
	return out
}

// MarketOrder routes a signed agent market order: size > 0 buys by
// walking the asks, size < 0 sells into the bids. The midprice is the
// reference.
func MarketOrder(size int64, ask, bid *Book) (Execution, error) {
	if err := checkPair(ask, bid); err != nil {
		return Execution{}, err
	}
	if size == 0 {
		return Execution{}, nil
	}

	mid, err := Midprice(ask, bid)
	if err != nil {
		return Execution{}, err
	}
	if size > 0 {
		return ask.WalkTheBook(mid, size), nil
	}
	return bid.WalkTheBook(mid, size), nil
}

// ValidateState checks two successive snapshots for coherence. It is
// vacuously nil until both books hold a stash. A non-nil error wraps
// ErrInvalidState (or ErrOutOfRange for an undefined touch) and means the
// caller should skip the snapshot and try the next one.
func ValidateState(ask, bid *Book) error {
	if err := checkPair(ask, bid); err != nil {
		return err
	}
	if !ask.HasStash() || !bid.HasStash() {
		return nil
	}

	spread, err := Spread(ask, bid)
	if err != nil {
		return err
	}
	if spread < 0 {
		return errors.Wrapf(ErrInvalidState, "crossed book: spread %v", spread)
	}

	mid, err := Midprice(ask, bid)
	if err != nil {
		return err
	}
	if mid <= 0 {
		return errors.Wrapf(ErrInvalidState, "non-positive midprice %v", mid)
	}

	move, err := MidpriceMove(ask, bid)
	if err != nil {
		return err
	}
	if math.Abs(move) >= mid {
		return errors.Wrapf(ErrInvalidState, "midprice move %v not below midprice %v", move, mid)
	}
	return nil
}

// IsValidState is ValidateState as a bool.
func IsValidState(ask, bid *Book) bool {
	return ValidateState(ask, bid) == nil
}
