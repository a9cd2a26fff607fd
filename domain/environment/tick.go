package environment

import (
	"context"

	"lobsim/domain/market"
)

// Tick is one depth snapshot together with the trade prints seen since the
// previous snapshot. Time is milliseconds since midnight.
type Tick struct {
	Date int
	Time int64

	AskPrices  []float64
	AskVolumes []int64
	BidPrices  []float64
	BidVolumes []int64

	Prints []market.Print
}

func (t Tick) TradePrints() *market.Prints {
	return market.NewPrints(t.Prints...)
}

// Source yields ticks in time order and io.EOF once exhausted.
type Source interface {
	Next(ctx context.Context) (Tick, error)
}
