package market

import (
	"sort"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// DefaultDepth is the ladder depth of the usual market data feed.
const DefaultDepth = 5

// IDGenerator hands out order ids. infra/sequence.Sequencer satisfies it.
type IDGenerator interface {
	Next() uint64
}

type localIDs struct {
	next atomic.Uint64
}

func (l *localIDs) Next() uint64 { return l.next.Add(1) }

// Level is one visible (price, volume) pair.
type Level struct {
	Price  float64
	Volume int64
}

// Book is one side of the order book: the current and previous depth
// snapshot plus the agent's open orders on that side, keyed by price.
// It exclusively owns its orders; an order is gone once it is fully
// executed or cancelled.
type Book struct {
	policy SidePolicy
	depth  int
	ids    IDGenerator

	prices     []float64
	lastPrices []float64

	levels     *PriceMap[int64]
	lastLevels *PriceMap[int64]

	orders *PriceMap[*Order]

	totalVolume     int64
	lastTotalVolume int64

	nTransacted int

	observedValue  float64
	observedVolume int64
}

// NewBook creates an empty book. A nil ids gives the book its own counter.
func NewBook(policy SidePolicy, depth int, ids IDGenerator) *Book {
	if depth < 1 {
		panic("market: book depth must be at least 1")
	}
	if ids == nil {
		ids = &localIDs{}
	}
	b := &Book{
		policy:     policy,
		depth:      depth,
		ids:        ids,
		prices:     make([]float64, depth),
		lastPrices: make([]float64, depth),
		levels:     NewPriceMap[int64](policy),
		lastLevels: NewPriceMap[int64](policy),
		orders:     NewPriceMap[*Order](policy),
	}
	b.Reset()
	return b
}

func NewAskBook(depth int, ids IDGenerator) *Book {
	return NewBook(AskPolicy, depth, ids)
}

func NewBidBook(depth int, ids IDGenerator) *Book {
	return NewBook(BidPolicy, depth, ids)
}

func (b *Book) Side() Side             { return b.policy.Side() }
func (b *Book) Policy() SidePolicy     { return b.policy }
func (b *Book) Depth() int             { return b.depth }
func (b *Book) TotalVolume() int64     { return b.totalVolume }
func (b *Book) LastTotalVolume() int64 { return b.lastTotalVolume }

// NTransacted counts agent orders fully executed since the last Reset.
func (b *Book) NTransacted() int { return b.nTransacted }

// ObservedValue and ObservedVolume cover the prints seen by the most
// recent ApplyTransactions, whether or not an agent order traded.
func (b *Book) ObservedValue() float64 { return b.observedValue }
func (b *Book) ObservedVolume() int64  { return b.observedVolume }

// Reset clears all snapshots, orders and counters.
func (b *Book) Reset() {
	b.nTransacted = 0
	b.observedValue = 0
	b.observedVolume = 0

	b.totalVolume = 0
	b.lastTotalVolume = 0

	clear(b.prices)
	clear(b.lastPrices)

	b.levels.Clear()
	b.lastLevels.Clear()

	b.orders.Clear()
}

// StashState moves the current snapshot into the previous slot.
func (b *Book) StashState() {
	b.prices, b.lastPrices = b.lastPrices, b.prices
	b.levels, b.lastLevels = b.lastLevels, b.levels
}

// HasStash reports whether a previous snapshot exists.
func (b *Book) HasStash() bool {
	return Ticks(b.lastPrices[0]) != 0
}

// ApplyChanges ingests a new depth snapshot and reconciles the queue of
// every open order against the level change. prints are the trades at
// each price over the same interval; they explain volume that left the
// book without being cancelled. Orders are never removed here except
// ones already executed.
func (b *Book) ApplyChanges(prices []float64, volumes []int64, prints *Prints) error {
	if len(prices) != b.depth || len(volumes) != b.depth {
		return errors.Wrapf(ErrInvalidArgument,
			"snapshot must have %d levels, got %d prices and %d volumes",
			b.depth, len(prices), len(volumes))
	}

	seen := make(map[int64]struct{}, b.depth)
	for l := 0; l < b.depth; l++ {
		if prices[l] <= 0 {
			return errors.Wrapf(ErrInvalidState, "prices must be positive: %v at level %d", prices[l], l)
		}
		if volumes[l] <= 0 {
			return errors.Wrapf(ErrInvalidState, "volumes must be positive: %d at %v", volumes[l], prices[l])
		}
		k := Ticks(prices[l])
		if _, dup := seen[k]; dup {
			return errors.Wrapf(ErrInvalidState, "duplicate price %v in snapshot", prices[l])
		}
		seen[k] = struct{}{}
	}

	b.lastTotalVolume = b.totalVolume
	b.totalVolume = 0
	b.levels.Clear()

	for l := 0; l < b.depth; l++ {
		b.prices[l] = prices[l]
		b.levels.Set(prices[l], volumes[l])
		b.totalVolume += volumes[l]
	}

	sort.Slice(b.prices, func(i, j int) bool {
		return b.policy.Before(b.prices[i], b.prices[j])
	})

	for _, p := range b.orders.Prices() {
		o, _ := b.orders.Get(p)
		b.updateOrder(p, o, prints.Volume(p))
	}
	return nil
}

// updateOrder infers cancellations ahead of o from the change in visible
// volume at its price.
func (b *Book) updateOrder(price float64, o *Order, traded int64) {
	if o.IsExecuted() {
		b.orders.Delete(price)
		return
	}

	lv := b.LastVolume(price)
	if lv == 0 {
		// the order defined its own level; no baseline to compare with
		return
	}

	v := b.Volume(price)
	if v == 0 {
		o.ClearQueues()
		return
	}

	diff := lv - v
	if diff < 0 {
		o.AddVolumeBehind(-diff)
		return
	}
	if cancelled := diff - traded; cancelled > 0 {
		_ = o.DoCancellation(cancelled)
	}
}

func (b *Book) resolve(level int, ladder []float64) (float64, error) {
	if level < 0 {
		level += b.depth
	}
	if level < 0 || level >= b.depth || ladder[level] == 0 {
		return 0, errors.Wrapf(ErrOutOfRange, "undefined %s price at level %d", b.policy.Side(), level)
	}
	return ladder[level], nil
}

// Price returns the price at a ladder level; negative levels count from
// the back (-1 is the worst visible level).
func (b *Book) Price(level int) (float64, error) {
	return b.resolve(level, b.prices)
}

func (b *Book) LastPrice(level int) (float64, error) {
	return b.resolve(level, b.lastPrices)
}

func scanLevel(ladder []float64, target float64) int {
	k := Ticks(target)
	for l, p := range ladder {
		if p != 0 && Ticks(p) == k {
			return l
		}
	}
	return -1
}

// PriceLevel returns the ladder index of target, or -1.
func (b *Book) PriceLevel(target float64) int {
	return scanLevel(b.prices, target)
}

func (b *Book) LastPriceLevel(target float64) int {
	return scanLevel(b.lastPrices, target)
}

// Volume returns the visible volume at price, 0 if it is not a level.
func (b *Book) Volume(price float64) int64 {
	v, _ := b.levels.Get(price)
	return v
}

func (b *Book) LastVolume(price float64) int64 {
	v, _ := b.lastLevels.Get(price)
	return v
}

// Levels returns the current ladder best first.
func (b *Book) Levels() []Level {
	out := make([]Level, 0, b.depth)
	for _, p := range b.prices {
		if p == 0 {
			continue
		}
		out = append(out, Level{Price: p, Volume: b.Volume(p)})
	}
	return out
}

// ---- agent orders ----

// PlaceOrder rests a new agent order of size at price, behind whatever is
// currently visible there. It returns false if the price is occupied.
func (b *Book) PlaceOrder(price float64, size int64) (bool, error) {
	if b.orders.Has(price) {
		return false, nil
	}
	o, err := NewOrder(b.ids.Next(), price, size, b.Volume(price))
	if err != nil {
		return false, err
	}
	b.orders.Set(price, o)
	return true, nil
}

// PlaceOrderAtLevel places an order at the price of a ladder level.
func (b *Book) PlaceOrderAtLevel(level int, size int64) (bool, error) {
	if level < 0 || level >= b.depth {
		return false, errors.Wrapf(ErrOutOfRange, "level %d outside [0, %d)", level, b.depth)
	}
	price, err := b.Price(level)
	if err != nil {
		return false, err
	}
	return b.PlaceOrder(price, size)
}

// HasOpenOrder reports whether an unexecuted order rests at price.
func (b *Book) HasOpenOrder(price float64) bool {
	o, ok := b.orders.Get(price)
	return ok && !o.IsExecuted()
}

func (b *Book) CancelOrder(price float64) {
	b.orders.Delete(price)
}

func (b *Book) CancelBest() {
	if p, _, ok := b.orders.Best(); ok {
		b.orders.Delete(p)
	}
}

func (b *Book) CancelWorst() {
	if p, _, ok := b.orders.Worst(); ok {
		b.orders.Delete(p)
	}
}

func (b *Book) CancelAllOrders() {
	b.orders.Clear()
}

func (b *Book) OrderCount() int {
	return b.orders.Len()
}

func (b *Book) BestOpenOrderPrice() (float64, error) {
	p, _, ok := b.orders.Best()
	if !ok {
		return 0, errors.Wrapf(ErrOutOfRange, "no open %s orders", b.policy.Side())
	}
	return p, nil
}

func (b *Book) WorstOpenOrderPrice() (float64, error) {
	p, _, ok := b.orders.Worst()
	if !ok {
		return 0, errors.Wrapf(ErrOutOfRange, "no open %s orders", b.policy.Side())
	}
	return p, nil
}

// orderStat returns f(order at price), or -1 when there is none.
func (b *Book) orderStat(price float64, f func(*Order) int64) int64 {
	o, ok := b.orders.Get(price)
	if !ok {
		return -1
	}
	return f(o)
}

func (b *Book) OrderSize(price float64) int64 {
	return b.orderStat(price, (*Order).Size)
}

func (b *Book) OrderRemainingVolume(price float64) int64 {
	return b.orderStat(price, (*Order).Remaining)
}

func (b *Book) QueueAhead(price float64) int64 {
	return b.orderStat(price, (*Order).QueueAhead)
}

func (b *Book) QueueBehind(price float64) int64 {
	return b.orderStat(price, (*Order).QueueBehind)
}

// QueueProgress of the best open order, or -1 if there is none.
func (b *Book) QueueProgress() float64 {
	_, o, ok := b.orders.Best()
	if !ok {
		return -1
	}
	return o.QueueProgress()
}

// EachOrder walks the open orders best first. fn must not mutate the book.
func (b *Book) EachOrder(fn func(o *Order) bool) {
	b.orders.Walk(func(_ float64, o *Order) bool {
		return fn(o)
	})
}
