package data

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

type DepthRecord struct {
	Date int
	Time int64

	AskPrices  []float64
	AskVolumes []int64
	BidPrices  []float64
	BidVolumes []int64
}

// DepthReader streams depth records. Rows of the wrong width and rows
// with a non-positive price are skipped.
type DepthReader struct {
	r     *csv.Reader
	depth int
}

func NewDepthReader(r io.Reader, depth int) (*DepthReader, error) {
	if depth < 1 {
		return nil, errors.Newf("depth must be at least 1, got %d", depth)
	}
	cr := newCSV(r)
	if _, err := cr.Read(); err != nil {
		return nil, errors.Wrap(err, "read depth header")
	}
	return &DepthReader{r: cr, depth: depth}, nil
}

// Next returns the next usable record or io.EOF.
func (d *DepthReader) Next() (DepthRecord, error) {
	for {
		row, err := d.r.Read()
		if err != nil {
			return DepthRecord{}, err
		}
		if len(row) != 2+4*d.depth {
			continue
		}
		rec, ok, err := d.parse(row)
		if err != nil {
			line, _ := d.r.FieldPos(0)
			return DepthRecord{}, errors.Wrapf(err, "depth line %d", line)
		}
		if ok {
			return rec, nil
		}
	}
}

func (d *DepthReader) parse(row []string) (DepthRecord, bool, error) {
	date, err := strconv.Atoi(row[0])
	if err != nil {
		return DepthRecord{}, false, err
	}
	ts, err := ParseTime(row[1])
	if err != nil {
		return DepthRecord{}, false, err
	}

	n := d.depth
	rec := DepthRecord{
		Date:       date,
		Time:       ts,
		AskPrices:  make([]float64, n),
		AskVolumes: make([]int64, n),
		BidPrices:  make([]float64, n),
		BidVolumes: make([]int64, n),
	}
	ap, av, bp, bv := 2, 2+n, 2+2*n, 2+3*n
	for i := 0; i < n; i++ {
		if rec.AskPrices[i], err = strconv.ParseFloat(row[ap+i], 64); err != nil {
			return rec, false, err
		}
		if rec.BidPrices[i], err = strconv.ParseFloat(row[bp+i], 64); err != nil {
			return rec, false, err
		}
		if rec.AskPrices[i] <= 0 || rec.BidPrices[i] <= 0 {
			return rec, false, nil
		}
		if rec.AskVolumes[i], err = strconv.ParseInt(row[av+i], 10, 64); err != nil {
			return rec, false, err
		}
		if rec.BidVolumes[i], err = strconv.ParseInt(row[bv+i], 10, 64); err != nil {
			return rec, false, err
		}
	}
	return rec, true, nil
}

func newCSV(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}
