package environment

import (
	"context"

	"github.com/cockroachdb/errors"

	"lobsim/domain/market"
)

// StepResult describes one state transition.
type StepResult struct {
	Tick Tick

	Ask     market.Execution
	Bid     market.Execution
	Adverse market.Execution

	MidpriceMove float64
	Position     int64

	// Skipped counts snapshots dropped because the book pair they
	// produced was inconsistent.
	Skipped int
}

// Total is the agent's combined execution for the step.
func (r StepResult) Total() market.Execution {
	return r.Ask.Add(r.Bid).Add(r.Adverse)
}

// Session replays a Source through an ask/bid book pair. It is not safe
// for concurrent use.
type Session struct {
	cfg Config
	src Source

	ask  *market.Book
	bid  *market.Book
	risk *RiskManager

	stats EpisodeStats
	last  Tick
	ready bool

	// OnTick, when set, sees every tick pulled from the source.
	OnTick func(Tick) error
}

func NewSession(cfg Config, src Source, ids market.IDGenerator) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ask := market.NewAskBook(cfg.Depth, ids)
	bid := market.NewBidBook(cfg.Depth, ids)

	risk, err := NewRiskManager(ask, bid, cfg.PositionLower, cfg.PositionUpper, cfg.OrderLimit)
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, src: src, ask: ask, bid: bid, risk: risk}
	s.stats.Reset()
	return s, nil
}

func (s *Session) Config() Config      { return s.cfg }
func (s *Session) Ask() *market.Book   { return s.ask }
func (s *Session) Bid() *market.Book   { return s.bid }
func (s *Session) Risk() *RiskManager  { return s.risk }
func (s *Session) Stats() EpisodeStats { return s.stats }
func (s *Session) LastTick() Tick      { return s.last }
func (s *Session) Ready() bool         { return s.ready }
func (s *Session) Position() int64     { return s.risk.Exposure() }

func (s *Session) SetSource(src Source) {
	s.src = src
}

func (s *Session) Midprice() (float64, error) {
	return market.Midprice(s.ask, s.bid)
}

func (s *Session) next(ctx context.Context) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	t, err := s.src.Next(ctx)
	if err != nil {
		return Tick{}, err
	}
	if s.OnTick != nil {
		if err := s.OnTick(t); err != nil {
			return Tick{}, errors.Wrap(err, "tick hook")
		}
	}
	return t, nil
}

func (s *Session) applyDepth(t Tick, prints *market.Prints) error {
	if err := s.ask.ApplyChanges(t.AskPrices, t.AskVolumes, prints); err != nil {
		return err
	}
	return s.bid.ApplyChanges(t.BidPrices, t.BidVolumes, prints)
}

// Initialise clears both books, the position and the statistics, then
// consumes ticks until the books hold two consistent snapshots.
func (s *Session) Initialise(ctx context.Context) error {
	s.ask.Reset()
	s.bid.Reset()
	s.risk.Reset()
	s.stats.Reset()
	s.ready = false

	for {
		t, err := s.next(ctx)
		if err != nil {
			return err
		}

		s.ask.StashState()
		s.bid.StashState()
		if err := s.applyDepth(t, t.TradePrints()); err != nil {
			continue
		}
		s.last = t

		if s.ask.HasStash() && s.bid.HasStash() && market.ValidateState(s.ask, s.bid) == nil {
			s.ready = true
			return nil
		}
	}
}

// Step advances the session by one tick. Prints are matched against the
// open orders at the current midprice, then the next depth snapshot is
// applied. A snapshot that leaves the pair inconsistent is skipped in
// favour of the following one; its prints still count. Finally orders the
// market moved through are force-filled and the position is updated.
// Step returns io.EOF once the source is exhausted.
func (s *Session) Step(ctx context.Context) (StepResult, error) {
	if !s.ready {
		return StepResult{}, errors.Wrap(market.ErrInvalidState, "session not initialised")
	}
	mid, err := s.Midprice()
	if err != nil {
		return StepResult{}, err
	}

	var res StepResult

	t, err := s.next(ctx)
	if err != nil {
		return StepResult{}, err
	}
	prints := t.TradePrints()
	if err := s.matchPrints(&res, prints, mid); err != nil {
		return s.abort(res, t, err)
	}

	s.ask.StashState()
	s.bid.StashState()
	for {
		err := s.applyDepth(t, prints)
		if err == nil {
			err = market.ValidateState(s.ask, s.bid)
		}
		if err == nil {
			break
		}

		res.Skipped++
		if s.cfg.MaxSkips > 0 && res.Skipped > s.cfg.MaxSkips {
			return s.abort(res, t, errors.Wrapf(err, "gave up after %d inconsistent snapshots", res.Skipped))
		}

		next, err := s.next(ctx)
		if err != nil {
			return s.abort(res, t, err)
		}
		t = next
		more := t.TradePrints()
		if err := s.matchPrints(&res, more, mid); err != nil {
			return s.abort(res, t, err)
		}
		prints.Merge(more)
	}

	res.Adverse, err = market.HandleAdverseSelection(s.ask, s.bid)
	if err != nil {
		return s.abort(res, t, err)
	}

	total := res.Total()
	s.risk.Update(total.Volume)

	res.Tick = t
	res.Position = s.risk.Exposure()
	res.MidpriceMove, err = market.MidpriceMove(s.ask, s.bid)
	if err != nil {
		return res, err
	}

	s.stats.Book(total)
	s.stats.ProxyPnL += float64(res.Position) * res.MidpriceMove
	s.stats.BuyAndHold += res.MidpriceMove
	s.stats.observeTick(s.ask, s.bid, res.Position)

	s.last = t
	return res, nil
}

// abort books the executions a failed step already matched. Their orders
// are gone from the books, so the position, ledger and transaction counts
// must follow. The depth snapshot is not applied.
func (s *Session) abort(res StepResult, t Tick, err error) (StepResult, error) {
	total := res.Total()
	s.risk.Update(total.Volume)
	s.stats.Book(total)
	s.stats.Trades.AskTransactions = s.ask.NTransacted()
	s.stats.Trades.BidTransactions = s.bid.NTransacted()

	res.Tick = t
	res.Position = s.risk.Exposure()
	return res, err
}

func (s *Session) matchPrints(res *StepResult, prints *market.Prints, mid float64) error {
	a, err := s.ask.ApplyTransactions(prints, mid)
	if err != nil {
		return err
	}
	res.Ask = res.Ask.Add(a)

	b, err := s.bid.ApplyTransactions(prints, mid)
	if err != nil {
		return err
	}
	res.Bid = res.Bid.Add(b)
	return nil
}

// PlaceOrder places a limit order through the risk manager.
func (s *Session) PlaceOrder(side market.Side, price float64, size int64) (bool, error) {
	before := s.book(side).OrderCount()

	ok, err := s.risk.PlaceOrder(side, price, size, s.cfg.AutoCancel)
	if err != nil {
		return false, err
	}

	placed := 0
	if ok {
		placed = 1
	}
	cancelled := before - s.book(side).OrderCount() + placed

	if side == market.Ask {
		s.stats.Trades.AsksPlaced += placed
		s.stats.Trades.AsksCancelled += cancelled
	} else {
		s.stats.Trades.BidsPlaced += placed
		s.stats.Trades.BidsCancelled += cancelled
	}
	return ok, nil
}

// CancelOrder cancels the agent's order at price, reporting whether one
// was open.
func (s *Session) CancelOrder(side market.Side, price float64) bool {
	b := s.book(side)
	if !b.HasOpenOrder(price) {
		return false
	}
	b.CancelOrder(price)

	if side == market.Ask {
		s.stats.Trades.AsksCancelled++
	} else {
		s.stats.Trades.BidsCancelled++
	}
	return true
}

// MarketOrder executes a signed market order and books it.
func (s *Session) MarketOrder(size int64) (market.Execution, error) {
	out, err := s.risk.MarketOrder(size)
	if err != nil {
		return out, err
	}
	s.bookMarketOrder(out)
	return out, nil
}

// ClearInventory flattens the position at market.
func (s *Session) ClearInventory() (market.Execution, error) {
	out, err := s.risk.ClearInventory()
	if err != nil {
		return out, err
	}
	s.bookMarketOrder(out)
	return out, nil
}

func (s *Session) bookMarketOrder(out market.Execution) {
	switch {
	case out.Volume > 0:
		s.stats.Trades.MarketBuys++
	case out.Volume < 0:
		s.stats.Trades.MarketSells++
	}
	s.stats.Book(out)
}

func (s *Session) book(side market.Side) *market.Book {
	if side == market.Ask {
		return s.ask
	}
	return s.bid
}
