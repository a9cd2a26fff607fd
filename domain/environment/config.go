package environment

import (
	"github.com/cockroachdb/errors"

	"lobsim/domain/market"
)

type Config struct {
	Depth int

	// OrderSize is the size of every quote the Quoter places.
	OrderSize int64

	PositionLower int64
	PositionUpper int64

	// OrderLimit is the maximum number of open orders per side.
	OrderLimit int
	AutoCancel bool

	// AskLevel and BidLevel are the ladder levels the Quoter joins.
	AskLevel int
	BidLevel int

	// MaxSkips bounds the inconsistent snapshots skipped in one step.
	// Zero means unbounded.
	MaxSkips int
}

func DefaultConfig() Config {
	return Config{
		Depth:         market.DefaultDepth,
		OrderSize:     1,
		PositionLower: -100,
		PositionUpper: 100,
		OrderLimit:    1,
		AutoCancel:    true,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Depth < 1:
		return errors.Wrapf(market.ErrInvalidArgument, "depth must be at least 1, got %d", c.Depth)
	case c.OrderSize < 1:
		return errors.Wrapf(market.ErrInvalidArgument, "order size must be positive, got %d", c.OrderSize)
	case c.PositionLower > c.PositionUpper:
		return errors.Wrapf(market.ErrInvalidArgument, "position bounds [%d, %d] are inverted",
			c.PositionLower, c.PositionUpper)
	case c.OrderLimit < 1:
		return errors.Wrapf(market.ErrInvalidArgument, "order limit must be at least 1, got %d", c.OrderLimit)
	case c.AskLevel < 0 || c.AskLevel >= c.Depth, c.BidLevel < 0 || c.BidLevel >= c.Depth:
		return errors.Wrapf(market.ErrOutOfRange, "quote levels (%d, %d) outside [0, %d)",
			c.AskLevel, c.BidLevel, c.Depth)
	case c.MaxSkips < 0:
		return errors.Wrapf(market.ErrInvalidArgument, "max skips must not be negative, got %d", c.MaxSkips)
	}
	return nil
}
