package market

import "github.com/cockroachdb/errors"

func touches(ask, bid *Book, last bool) (float64, float64, error) {
	price := (*Book).Price
	if last {
		price = (*Book).LastPrice
	}
	ap, err := price(ask, 0)
	if err != nil {
		return 0, 0, err
	}
	bp, err := price(bid, 0)
	if err != nil {
		return 0, 0, err
	}
	return ap, bp, nil
}

func Spread(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, false)
	return ap - bp, err
}

func LastSpread(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, true)
	return ap - bp, err
}

func SpreadMove(ask, bid *Book) (float64, error) {
	s, err := Spread(ask, bid)
	if err != nil {
		return 0, err
	}
	ls, err := LastSpread(ask, bid)
	return s - ls, err
}

func Midprice(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, false)
	return (ap + bp) / 2, err
}

func LastMidprice(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, true)
	return (ap + bp) / 2, err
}

func MidpriceMove(ask, bid *Book) (float64, error) {
	m, err := Midprice(ask, bid)
	if err != nil {
		return 0, err
	}
	lm, err := LastMidprice(ask, bid)
	return m - lm, err
}

func microprice(ap, bp float64, av, bv int64) (float64, error) {
	if av+bv <= 0 {
		return 0, errors.Wrap(ErrInvalidState, "no visible volume for microprice")
	}
	return (float64(av)*bp + ap*float64(bv)) / float64(av+bv), nil
}

// Microprice weights each touch by the total visible volume of the
// opposite side (Todd, Hayes, Beling & Scherer).
func Microprice(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, false)
	if err != nil {
		return 0, err
	}
	return microprice(ap, bp, ask.TotalVolume(), bid.TotalVolume())
}

func LastMicroprice(ask, bid *Book) (float64, error) {
	ap, bp, err := touches(ask, bid, true)
	if err != nil {
		return 0, err
	}
	return microprice(ap, bp, ask.LastTotalVolume(), bid.LastTotalVolume())
}

func MicropriceMove(ask, bid *Book) (float64, error) {
	m, err := Microprice(ask, bid)
	if err != nil {
		return 0, err
	}
	lm, err := LastMicroprice(ask, bid)
	return m - lm, err
}
