package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"lobsim/domain/environment"
	"lobsim/domain/market"
	"lobsim/infra/metrics"
	"lobsim/infra/sequence"
	entrywal "lobsim/infra/wal/entry"
	exitwal "lobsim/infra/wal/exit"
	"lobsim/snapshot"
)

/*
SimulationService is the ONLY write entry point into the simulator.

All coordination between:
- domain (session, books, risk)
- infra (tick log, outbox, metrics)
- snapshot
happens here, under one mutex. The domain is single-writer.
*/

type SimulationService struct {
	mu sync.Mutex

	cfg     Config
	session *environment.Session
	quoter  environment.Quoter
	live    environment.Source

	orderIDs *sequence.Sequencer
	seqGen   *sequence.Sequencer

	entryWAL *entrywal.WAL
	exitWAL  *exitwal.ExitWAL
	metrics  *metrics.Metrics

	episodeID    string
	episodeStart uint64
	replaying    bool

	// consumed counts ticks pulled from the data source across episodes.
	consumed uint64
}

// NewSimulationService wires all dependencies. entryWAL, exitWAL and m
// may be nil.
func NewSimulationService(
	cfg Config,
	src environment.Source,
	entryWAL *entrywal.WAL,
	exitWAL *exitwal.ExitWAL,
	m *metrics.Metrics,
) (*SimulationService, error) {
	orderIDs := sequence.New(0)

	session, err := environment.NewSession(cfg.Env, src, orderIDs)
	if err != nil {
		return nil, err
	}

	s := &SimulationService{
		cfg:      cfg,
		session:  session,
		quoter:   environment.NewQuoter(cfg.Env),
		live:     src,
		orderIDs: orderIDs,
		seqGen:   sequence.New(0),
		entryWAL: entryWAL,
		exitWAL:  exitWAL,
		metrics:  m,
	}
	session.OnTick = s.logTick
	return s, nil
}

//
// ──────────────────────────────────────────────────────────
// Tick log
// ──────────────────────────────────────────────────────────
//

func (s *SimulationService) appendRecord(t entrywal.RecordType, payload any) (uint64, error) {
	if s.replaying || s.entryWAL == nil {
		return 0, nil
	}
	data, err := encode(payload)
	if err != nil {
		return 0, err
	}
	seq := s.seqGen.Next()
	if err := s.entryWAL.Append(entrywal.NewRecord(t, seq, data)); err != nil {
		return 0, errors.Wrapf(err, "tick log append %s", t)
	}
	return seq, nil
}

func (s *SimulationService) logTick(t environment.Tick) error {
	s.consumed++
	_, err := s.appendRecord(entrywal.RecordTick, t)
	return err
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Initialise starts a new episode and returns its id.
func (s *SimulationService) Initialise(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	seq, err := s.appendRecord(entrywal.RecordReset, resetCmd{EpisodeID: id, Offset: s.consumed})
	if err != nil {
		return "", err
	}
	if err := s.initialise(ctx, id, seq); err != nil {
		return "", err
	}

	log.Printf("[service] episode %s started", id)
	return id, nil
}

func (s *SimulationService) initialise(ctx context.Context, id string, seq uint64) error {
	s.episodeID = id
	s.episodeStart = seq
	s.orderIDs.Reset(0)
	if err := s.session.Initialise(ctx); err != nil {
		return errors.Wrap(err, "initialise session")
	}
	s.observeBook()
	return nil
}

// Step quotes (when AutoQuote is set) and advances the market by one tick.
func (s *SimulationService) Step(ctx context.Context) (environment.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.step(ctx)
}

func (s *SimulationService) step(ctx context.Context) (environment.StepResult, error) {
	start := time.Now()

	if s.cfg.AutoQuote && s.session.Ready() {
		if _, err := s.quoter.Quote(s.session); err != nil {
			return environment.StepResult{}, errors.Wrap(err, "quote")
		}
	}

	res, err := s.session.Step(ctx)
	if err == nil {
		s.metrics.ObserveStep(time.Since(start).Seconds(), res.Skipped)
	}
	s.observeBook()

	// Executions matched before a failure are booked by the session and
	// published like any other.
	for _, f := range []struct {
		kind string
		x    market.Execution
	}{
		{KindLimit, res.Ask},
		{KindLimit, res.Bid},
		{KindAdverse, res.Adverse},
	} {
		s.metrics.ObserveFill(direction(f.x.Volume), f.kind, f.x.Volume)
		if ferr := s.emitFill(f.kind, f.x, res.Tick); ferr != nil {
			return res, errors.CombineErrors(err, ferr)
		}
	}
	return res, err
}

// PlaceOrder places an agent limit order through the risk manager.
func (s *SimulationService) PlaceOrder(side market.Side, price float64, size int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return false, err
	}
	if _, err := s.appendRecord(entrywal.RecordPlace, placeCmd{Side: side, Price: price, Size: size}); err != nil {
		return false, err
	}
	ok, err := s.session.PlaceOrder(side, price, size)
	s.observeBook()
	return ok, err
}

// CancelOrder cancels the agent's order at price, reporting whether one
// was open.
func (s *SimulationService) CancelOrder(side market.Side, price float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireReady(); err != nil {
		return false, err
	}
	if _, err := s.appendRecord(entrywal.RecordCancel, cancelCmd{Side: side, Price: price}); err != nil {
		return false, err
	}
	ok := s.session.CancelOrder(side, price)
	s.observeBook()
	return ok, nil
}

// MarketOrder executes a signed market order: positive buys.
func (s *SimulationService) MarketOrder(size int64) (market.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.marketOrder(size)
}

// ClearInventory flattens the position at market.
func (s *SimulationService) ClearInventory() (market.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.marketOrder(-s.session.Position())
}

func (s *SimulationService) marketOrder(size int64) (market.Execution, error) {
	if err := s.requireReady(); err != nil {
		return market.Execution{}, err
	}
	if _, err := s.appendRecord(entrywal.RecordMarket, marketCmd{Size: size}); err != nil {
		return market.Execution{}, err
	}
	out, err := s.session.MarketOrder(size)
	if err != nil {
		return out, err
	}

	s.metrics.ObserveFill(direction(out.Volume), KindMarket, out.Volume)
	s.observeBook()
	return out, s.emitFill(KindMarket, out, s.session.LastTick())
}

func (s *SimulationService) requireReady() error {
	if !s.session.Ready() {
		return errors.Wrap(market.ErrInvalidState, "no episode in progress")
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Outbox
// ──────────────────────────────────────────────────────────
//

func (s *SimulationService) emitFill(kind string, x market.Execution, t environment.Tick) error {
	if x.IsZero() || s.replaying || s.exitWAL == nil {
		return nil
	}
	ev := FillEvent{
		V:         1,
		EpisodeID: s.episodeID,
		Seq:       s.seqGen.Next(),
		Kind:      kind,
		Side:      direction(x.Volume),
		Date:      t.Date,
		Time:      t.Time,
		Volume:    x.Volume,
		ProxyPnL:  x.ProxyPnL,
		CashValue: x.CashValue,
		Position:  s.session.Position(),
	}
	payload, err := ev.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal fill")
	}
	if err := s.exitWAL.PutNew(ev.Seq, payload); err != nil {
		return errors.Wrapf(err, "outbox put seq=%d", ev.Seq)
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// Book returns a consistent copy of both books and the agent's state.
func (s *SimulationService) Book() snapshot.View {
	s.mu.Lock()
	defer s.mu.Unlock()

	return snapshot.Capture(s.seqGen.Current(), s.episodeID, s.session)
}

func (s *SimulationService) EpisodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.episodeID
}

func (s *SimulationService) Stats() environment.EpisodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session.Stats()
}

func (s *SimulationService) observeBook() {
	if s.metrics == nil || !s.session.Ready() {
		return
	}
	mid, err := s.session.Midprice()
	if err != nil {
		return
	}
	st := s.session.Stats()
	s.metrics.SetBook(
		s.session.Position(),
		st.Cash.InexactFloat64(),
		mid,
		s.session.Ask().OrderCount(),
		s.session.Bid().OrderCount(),
	)
}
