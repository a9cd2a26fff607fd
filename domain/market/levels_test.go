package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicksTolerance(t *testing.T) {
	assert.True(t, ApproxEqual(1.1111, 1.11114))
	assert.False(t, ApproxEqual(1.1111, 1.11117))
	assert.False(t, ApproxEqual(1.1110, 1.1111))
	assert.Equal(t, int64(1000000), Ticks(100.0))
}

func TestPriceMapOrdering(t *testing.T) {
	asks := NewPriceMap[int64](AskPolicy)
	bids := NewPriceMap[int64](BidPolicy)
	for _, p := range []float64{101.5, 100.0, 102.25} {
		asks.Set(p, 1)
		bids.Set(p, 1)
	}

	assert.Equal(t, []float64{100.0, 101.5, 102.25}, asks.Prices())
	assert.Equal(t, []float64{102.25, 101.5, 100.0}, bids.Prices())

	p, _, ok := bids.Best()
	assert.True(t, ok)
	assert.Equal(t, 102.25, p)

	p, _, ok = asks.Worst()
	assert.True(t, ok)
	assert.Equal(t, 102.25, p)
}

func TestPriceMapToleranceLookup(t *testing.T) {
	m := NewPriceMap[string](AskPolicy)
	m.Set(1.1111, "a")

	v, ok := m.Get(1.11114)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.False(t, m.Has(1.11117))

	// same bucket keeps the first reported price
	m.Set(1.11112, "b")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, []float64{1.1111}, m.Prices())

	assert.True(t, m.Delete(1.11109))
	assert.Equal(t, 0, m.Len())
}

func TestPrintsAggregate(t *testing.T) {
	p := NewPrints(Print{100.0, 10}, Print{99.5, 5}, Print{100.00001, 7}, Print{98, 0})

	assert.Equal(t, int64(17), p.Volume(100.0))
	assert.Equal(t, int64(5), p.Volume(99.5))
	assert.Equal(t, []Print{{99.5, 5}, {100.0, 17}}, p.List())

	var none *Prints
	assert.Equal(t, int64(0), none.Volume(1))
	assert.Equal(t, 0, none.Len())
}
