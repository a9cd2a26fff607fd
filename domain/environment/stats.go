package environment

import (
	"github.com/shopspring/decimal"

	"lobsim/domain/market"
)

type TradeStats struct {
	AsksPlaced      int
	BidsPlaced      int
	AsksCancelled   int
	BidsCancelled   int
	AskTransactions int
	BidTransactions int
	MarketBuys      int
	MarketSells     int
}

// Total counts every limit and market order that traded.
func (t TradeStats) Total() int {
	return t.AskTransactions + t.BidTransactions + t.MarketBuys + t.MarketSells
}

// OrderRatio is limit order fills per market order, 0 without market orders.
func (t TradeStats) OrderRatio() float64 {
	m := t.MarketBuys + t.MarketSells
	if m == 0 {
		return 0
	}
	return float64(t.AskTransactions+t.BidTransactions) / float64(m)
}

// TickStats counts how many ticks had quotes or inventory.
type TickStats struct {
	Total        int
	WithAsk      int
	WithBid      int
	WithBoth     int
	WithPosition int
	Long         int
	Short        int
}

func occupancy(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func (t TickStats) AskOccupancy() float64      { return occupancy(t.WithAsk, t.Total) }
func (t TickStats) BidOccupancy() float64      { return occupancy(t.WithBid, t.Total) }
func (t TickStats) BothOccupancy() float64     { return occupancy(t.WithBoth, t.Total) }
func (t TickStats) PositionOccupancy() float64 { return occupancy(t.WithPosition, t.Total) }

// EpisodeStats is the running ledger of one episode. Cash is kept in
// decimal so that long episodes of small fills do not drift.
type EpisodeStats struct {
	Cash       decimal.Decimal
	ProxyPnL   float64
	BuyAndHold float64
	Volume     int64

	Trades TradeStats
	Ticks  TickStats
}

func (e *EpisodeStats) Reset() {
	*e = EpisodeStats{Cash: decimal.Zero}
}

// Book records an execution against the ledger.
func (e *EpisodeStats) Book(x market.Execution) {
	e.Cash = e.Cash.Add(decimal.NewFromFloat(x.CashValue))
	e.ProxyPnL += x.ProxyPnL
	e.Volume += abs(x.Volume)
}

// MarkToMarket values the episode at mid: cash plus position at mid.
func (e *EpisodeStats) MarkToMarket(position int64, mid float64) decimal.Decimal {
	return e.Cash.Add(decimal.NewFromInt(position).Mul(decimal.NewFromFloat(mid)))
}

func (e *EpisodeStats) observeTick(ask, bid *market.Book, position int64) {
	e.Trades.AskTransactions = ask.NTransacted()
	e.Trades.BidTransactions = bid.NTransacted()

	t := &e.Ticks
	t.Total++

	hasAsk, hasBid := ask.OrderCount() > 0, bid.OrderCount() > 0
	if hasAsk {
		t.WithAsk++
	}
	if hasBid {
		t.WithBid++
	}
	if hasAsk && hasBid {
		t.WithBoth++
	}

	switch {
	case position > 0:
		t.WithPosition++
		t.Long++
	case position < 0:
		t.WithPosition++
		t.Short++
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
