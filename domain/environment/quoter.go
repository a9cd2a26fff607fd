package environment

import "lobsim/domain/market"

// Quoter keeps one ask and one bid resting at fixed ladder levels.
type Quoter struct {
	AskLevel int
	BidLevel int
	Size     int64
}

func NewQuoter(cfg Config) Quoter {
	return Quoter{AskLevel: cfg.AskLevel, BidLevel: cfg.BidLevel, Size: cfg.OrderSize}
}

// Quote joins the configured levels on both sides. A side that already
// has an order at its target price keeps it, and with it its queue
// position. It returns how many orders were placed.
func (q Quoter) Quote(s *Session) (int, error) {
	placed := 0
	for _, leg := range []struct {
		side  market.Side
		level int
	}{
		{market.Ask, q.AskLevel},
		{market.Bid, q.BidLevel},
	} {
		price, err := s.book(leg.side).Price(leg.level)
		if err != nil {
			return placed, err
		}
		if s.book(leg.side).HasOpenOrder(price) {
			continue
		}
		ok, err := s.PlaceOrder(leg.side, price, q.Size)
		if err != nil {
			return placed, err
		}
		if ok {
			placed++
		}
	}
	s.risk.CheckOrders()
	return placed, nil
}
