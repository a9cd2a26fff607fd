package service

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"lobsim/domain/market"
	"lobsim/infra/memory"
)

// Tick log payloads. Each record carries exactly one of these, gob
// encoded, selected by the record type.

type resetCmd struct {
	EpisodeID string
	// Offset is the number of ticks the data source had delivered before
	// the episode started.
	Offset uint64
}

type placeCmd struct {
	Side  market.Side
	Price float64
	Size  int64
}

type cancelCmd struct {
	Side  market.Side
	Price float64
}

type marketCmd struct {
	Size int64
}

var buffers = memory.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

func encode(v any) ([]byte, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, errors.Wrapf(err, "encode %T", v)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func decode(b []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %T", v)
	}
	return nil
}

// Fill kinds.
const (
	KindLimit   = "limit"
	KindAdverse = "adverse"
	KindMarket  = "market"
)

// FillEvent is the outbox payload published for every agent execution.
type FillEvent struct {
	V         int     `json:"v"`
	EpisodeID string  `json:"episode_id"`
	Seq       uint64  `json:"seq"`
	Kind      string  `json:"kind"`
	Side      string  `json:"side"`
	Date      int     `json:"date"`
	Time      int64   `json:"time"`
	Volume    int64   `json:"volume"`
	ProxyPnL  float64 `json:"proxy_pnl"`
	CashValue float64 `json:"cash_value"`
	Position  int64   `json:"position"`
}

func (e FillEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// direction is the agent's side of an execution.
func direction(volume int64) string {
	if volume < 0 {
		return "sell"
	}
	return "buy"
}
