package service

import (
	"context"
	"io"
	"log"

	"github.com/cockroachdb/errors"

	"lobsim/domain/environment"
	entrywal "lobsim/infra/wal/entry"
)

// ReplayResult summarises a tick log replay.
type ReplayResult struct {
	LastSeq   uint64
	Records   int
	EpisodeID string

	// Ticks is the number of ticks the data source had delivered when the
	// log ended. The live source is advanced past them.
	Ticks uint64

	// Interrupted reports that the log ended inside an initialise or step.
	// The episode cannot continue and a new one must be started.
	Interrupted bool
}

/*
Replay rebuilds the current episode from the tick log in dir.

IMPORTANT:
- This MUST run before accepting traffic
- Only the newest episode is re-run; earlier ones are skipped
- The outbox is NOT replayed: fills it already holds are not re-emitted
*/
func (s *SimulationService) Replay(ctx context.Context, dir string) (ReplayResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*entrywal.Record
	lastSeq, err := entrywal.Replay(dir, func(rec *entrywal.Record) error {
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return ReplayResult{}, errors.Wrap(err, "read tick log")
	}
	res := ReplayResult{LastSeq: lastSeq, Records: len(recs)}

	start := -1
	for i, rec := range recs {
		if rec.Type == entrywal.RecordReset {
			start = i
		}
	}

	if start >= 0 {
		if err := s.rerun(ctx, recs[start:], &res); err != nil {
			return res, err
		}
	}

	if err := s.resume(ctx, lastSeq); err != nil {
		return res, err
	}
	res.Ticks = s.consumed

	log.Printf("[replay] completed: %d records, last seq %d, episode %q, %d ticks",
		res.Records, res.LastSeq, res.EpisodeID, res.Ticks)
	return res, nil
}

func (s *SimulationService) rerun(ctx context.Context, recs []*entrywal.Record, res *ReplayResult) error {
	var reset resetCmd
	if err := decode(recs[0].Data, &reset); err != nil {
		return errors.Wrapf(err, "reset record seq=%d", recs[0].Seq)
	}

	s.replaying = true
	defer func() { s.replaying = false }()

	src := &logSource{recs: recs, pos: 1}
	s.session.SetSource(src)
	defer s.session.SetSource(s.live)

	s.consumed = reset.Offset
	res.EpisodeID = reset.EpisodeID

	if err := s.initialise(ctx, reset.EpisodeID, recs[0].Seq); err != nil {
		if errors.Is(err, io.EOF) {
			res.Interrupted = true
			return nil
		}
		return err
	}

	for src.pos < len(src.recs) {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec := src.recs[src.pos]
		switch rec.Type {
		case entrywal.RecordTick:
			before := src.pos
			_, err := s.step(ctx)
			if errors.Is(err, io.EOF) {
				res.Interrupted = true
				return nil
			}
			if err != nil {
				// The same step failed live; the log carries on after it.
				log.Printf("[replay] step at seq %d failed: %v", rec.Seq, err)
			}
			if src.pos == before {
				return errors.Newf("replay stalled at seq %d", rec.Seq)
			}
			continue

		case entrywal.RecordPlace:
			var c placeCmd
			if err := decode(rec.Data, &c); err != nil {
				return err
			}
			_, _ = s.session.PlaceOrder(c.Side, c.Price, c.Size)

		case entrywal.RecordCancel:
			var c cancelCmd
			if err := decode(rec.Data, &c); err != nil {
				return err
			}
			s.session.CancelOrder(c.Side, c.Price)

		case entrywal.RecordMarket:
			var c marketCmd
			if err := decode(rec.Data, &c); err != nil {
				return err
			}
			_, _ = s.session.MarketOrder(c.Size)

		default:
			return errors.Newf("unexpected %s record at seq %d", rec.Type, rec.Seq)
		}
		src.pos++
	}
	return nil
}

// resume moves the live source past every replayed tick and restarts
// sequencing after both logs.
func (s *SimulationService) resume(ctx context.Context, lastSeq uint64) error {
	for n := uint64(0); n < s.consumed; n++ {
		if _, err := s.live.Next(ctx); err != nil {
			return errors.Wrapf(err, "skip replayed tick %d of %d", n+1, s.consumed)
		}
	}

	if s.exitWAL != nil {
		outSeq, err := s.exitWAL.LastSeq()
		if err != nil {
			return errors.Wrap(err, "read outbox seq")
		}
		lastSeq = max(lastSeq, outSeq)
	}
	s.seqGen.Advance(lastSeq)
	if s.entryWAL != nil {
		s.entryWAL.SetLastSeq(lastSeq)
	}
	return nil
}

// logSource serves the tick records that follow its cursor. Any other
// record type ends the stream.
type logSource struct {
	recs []*entrywal.Record
	pos  int
}

func (l *logSource) Next(ctx context.Context) (environment.Tick, error) {
	if l.pos >= len(l.recs) || l.recs[l.pos].Type != entrywal.RecordTick {
		return environment.Tick{}, io.EOF
	}
	var t environment.Tick
	if err := decode(l.recs[l.pos].Data, &t); err != nil {
		return environment.Tick{}, errors.Wrapf(err, "tick record seq=%d", l.recs[l.pos].Seq)
	}
	l.pos++
	return t, nil
}
