package data

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"lobsim/domain/environment"
	"lobsim/domain/market"
)

// Stream pairs every depth record with the trade prints stamped after the
// previous depth record and at or before this one.
type Stream struct {
	depth  *DepthReader
	trades *TradeReader

	pending    *TradeRecord
	tradesDone bool

	closers []io.Closer
}

func NewStream(depth *DepthReader, trades *TradeReader) *Stream {
	return &Stream{depth: depth, trades: trades}
}

// OpenStream opens a depth file and a trades file. The stream owns both.
func OpenStream(depthPath, tradesPath string, depth int) (*Stream, error) {
	df, err := os.Open(depthPath)
	if err != nil {
		return nil, errors.Wrap(err, "open depth file")
	}
	tf, err := os.Open(tradesPath)
	if err != nil {
		_ = df.Close()
		return nil, errors.Wrap(err, "open trades file")
	}

	dr, err := NewDepthReader(df, depth)
	if err != nil {
		_ = df.Close()
		_ = tf.Close()
		return nil, err
	}
	tr, err := NewTradeReader(tf)
	if err != nil {
		_ = df.Close()
		_ = tf.Close()
		return nil, err
	}

	s := NewStream(dr, tr)
	s.closers = []io.Closer{df, tf}
	return s, nil
}

func (s *Stream) Close() error {
	var err error
	for _, c := range s.closers {
		err = errors.CombineErrors(err, c.Close())
	}
	s.closers = nil
	return err
}

func before(d1 int, t1 int64, d2 int, t2 int64) bool {
	return d1 < d2 || (d1 == d2 && t1 <= t2)
}

// Next implements environment.Source.
func (s *Stream) Next(ctx context.Context) (environment.Tick, error) {
	if err := ctx.Err(); err != nil {
		return environment.Tick{}, err
	}

	d, err := s.depth.Next()
	if err != nil {
		return environment.Tick{}, err
	}

	prints := market.NewPrints()
	for {
		tr, err := s.peek()
		if err != nil {
			return environment.Tick{}, err
		}
		if tr == nil || !before(tr.Date, tr.Time, d.Date, d.Time) {
			break
		}
		prints.Add(tr.Price, tr.Size)
		s.pending = nil
	}

	return environment.Tick{
		Date:       d.Date,
		Time:       d.Time,
		AskPrices:  d.AskPrices,
		AskVolumes: d.AskVolumes,
		BidPrices:  d.BidPrices,
		BidVolumes: d.BidVolumes,
		Prints:     prints.List(),
	}, nil
}

// peek returns the next unconsumed trade, nil once trades are exhausted.
func (s *Stream) peek() (*TradeRecord, error) {
	if s.pending != nil || s.tradesDone {
		return s.pending, nil
	}
	tr, err := s.trades.Next()
	if errors.Is(err, io.EOF) {
		s.tradesDone = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.pending = &tr
	return s.pending, nil
}

// SliceSource replays ticks held in memory.
type SliceSource struct {
	ticks []environment.Tick
	pos   int
}

func NewSliceSource(ticks ...environment.Tick) *SliceSource {
	return &SliceSource{ticks: ticks}
}

func (s *SliceSource) Next(ctx context.Context) (environment.Tick, error) {
	if err := ctx.Err(); err != nil {
		return environment.Tick{}, err
	}
	if s.pos >= len(s.ticks) {
		return environment.Tick{}, io.EOF
	}
	t := s.ticks[s.pos]
	s.pos++
	return t, nil
}

func (s *SliceSource) Len() int { return len(s.ticks) - s.pos }
