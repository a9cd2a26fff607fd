package data

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

type TradeRecord struct {
	Date  int
	Time  int64
	Price float64
	Size  int64
}

// TradeReader streams time-and-sales prints, dropping rows with a
// non-positive price or size.
type TradeReader struct {
	r *csv.Reader
}

func NewTradeReader(r io.Reader) (*TradeReader, error) {
	cr := newCSV(r)
	if _, err := cr.Read(); err != nil {
		return nil, errors.Wrap(err, "read trades header")
	}
	return &TradeReader{r: cr}, nil
}

func (t *TradeReader) Next() (TradeRecord, error) {
	for {
		row, err := t.r.Read()
		if err != nil {
			return TradeRecord{}, err
		}
		if len(row) != 4 {
			continue
		}
		rec, err := parseTrade(row)
		if err != nil {
			line, _ := t.r.FieldPos(0)
			return TradeRecord{}, errors.Wrapf(err, "trades line %d", line)
		}
		if rec.Price > 0 && rec.Size > 0 {
			return rec, nil
		}
	}
}

func parseTrade(row []string) (TradeRecord, error) {
	var (
		rec TradeRecord
		err error
	)
	if rec.Date, err = strconv.Atoi(row[0]); err != nil {
		return rec, err
	}
	if rec.Time, err = ParseTime(row[1]); err != nil {
		return rec, err
	}
	if rec.Price, err = strconv.ParseFloat(row[2], 64); err != nil {
		return rec, err
	}
	rec.Size, err = strconv.ParseInt(row[3], 10, 64)
	return rec, err
}
