package environment

import (
	"github.com/cockroachdb/errors"

	"lobsim/domain/market"
)

// RiskManager guards the agent's inventory: it caps the number of open
// orders per side and stops quoting the side that would push the position
// further past its bounds.
type RiskManager struct {
	ask *market.Book
	bid *market.Book

	lower int64
	upper int64
	limit int

	position int64
}

func NewRiskManager(ask, bid *market.Book, lower, upper int64, limit int) (*RiskManager, error) {
	if ask.Side() != market.Ask || bid.Side() != market.Bid {
		return nil, errors.Wrap(market.ErrInvalidArgument, "risk manager needs an (ask, bid) book pair")
	}
	if lower > upper {
		return nil, errors.Wrapf(market.ErrInvalidArgument, "position bounds [%d, %d] are inverted", lower, upper)
	}
	if limit < 1 {
		return nil, errors.Wrapf(market.ErrInvalidArgument, "order limit must be at least 1, got %d", limit)
	}
	return &RiskManager{ask: ask, bid: bid, lower: lower, upper: upper, limit: limit}, nil
}

func (r *RiskManager) Exposure() int64 { return r.position }
func (r *RiskManager) AtUpper() bool   { return r.position >= r.upper }
func (r *RiskManager) AtLower() bool   { return r.position <= r.lower }
func (r *RiskManager) AtBound() bool   { return r.AtUpper() || r.AtLower() }

// Reset flattens the position without touching the books.
func (r *RiskManager) Reset() {
	r.position = 0
}

// CheckOrders cancels every bid once the position reaches the upper bound
// and every ask once it reaches the lower bound.
func (r *RiskManager) CheckOrders() {
	switch {
	case r.AtUpper():
		r.bid.CancelAllOrders()
	case r.AtLower():
		r.ask.CancelAllOrders()
	}
}

// Update books an executed volume against the position.
func (r *RiskManager) Update(executed int64) {
	r.position += executed
	r.CheckOrders()
}

func (r *RiskManager) book(side market.Side) *market.Book {
	if side == market.Ask {
		return r.ask
	}
	return r.bid
}

// PlaceOrder places a limit order if the side is below its order limit.
// At the limit, autoCancel replaces the worst open order on that side;
// without it the order is refused. It reports whether an order was placed.
func (r *RiskManager) PlaceOrder(side market.Side, price float64, size int64, autoCancel bool) (bool, error) {
	b := r.book(side)

	n := b.OrderCount()
	switch {
	case n < r.limit:
		return b.PlaceOrder(price, size)
	case n > r.limit:
		return false, errors.Wrapf(market.ErrInvalidState, "%s order count %d exceeds limit %d", side, n, r.limit)
	case autoCancel:
		b.CancelWorst()
		return b.PlaceOrder(price, size)
	}
	return false, nil
}

// MarketOrder executes a signed market order and books the fill.
func (r *RiskManager) MarketOrder(size int64) (market.Execution, error) {
	out, err := market.MarketOrder(size, r.ask, r.bid)
	if err != nil {
		return market.Execution{}, err
	}
	r.position += out.Volume
	return out, nil
}

// ClearInventory flattens the position with a market order.
func (r *RiskManager) ClearInventory() (market.Execution, error) {
	return r.MarketOrder(-r.position)
}
