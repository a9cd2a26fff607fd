package market

import "github.com/google/btree"

const priceMapDegree = 8

type entry[V any] struct {
	key   int64
	price float64
	value V
}

// PriceMap is an ordered price -> V map. Keys are compared through Ticks,
// and iteration follows the side priority of its policy (best first).
// The first price inserted for a bucket is the one reported back.
type PriceMap[V any] struct {
	policy SidePolicy
	tree   *btree.BTreeG[entry[V]]
}

func NewPriceMap[V any](policy SidePolicy) *PriceMap[V] {
	return &PriceMap[V]{
		policy: policy,
		tree: btree.NewG(priceMapDegree, func(a, b entry[V]) bool {
			return policy.beforeTicks(a.key, b.key)
		}),
	}
}

func (m *PriceMap[V]) probe(price float64) entry[V] {
	return entry[V]{key: Ticks(price)}
}

// Get returns the value stored at price.
func (m *PriceMap[V]) Get(price float64) (V, bool) {
	e, ok := m.tree.Get(m.probe(price))
	return e.value, ok
}

// Has reports whether price is present.
func (m *PriceMap[V]) Has(price float64) bool {
	return m.tree.Has(m.probe(price))
}

// Set stores v at price, keeping the previously reported price if the
// bucket already exists.
func (m *PriceMap[V]) Set(price float64, v V) {
	e := entry[V]{key: Ticks(price), price: price, value: v}
	if old, ok := m.tree.Get(e); ok {
		e.price = old.price
	}
	m.tree.ReplaceOrInsert(e)
}

// Delete removes price and reports whether it was present.
func (m *PriceMap[V]) Delete(price float64) bool {
	_, ok := m.tree.Delete(m.probe(price))
	return ok
}

func (m *PriceMap[V]) Len() int {
	return m.tree.Len()
}

func (m *PriceMap[V]) Clear() {
	m.tree.Clear(false)
}

// Best returns the highest-priority entry.
func (m *PriceMap[V]) Best() (float64, V, bool) {
	e, ok := m.tree.Min()
	return e.price, e.value, ok
}

// Worst returns the lowest-priority entry.
func (m *PriceMap[V]) Worst() (float64, V, bool) {
	e, ok := m.tree.Max()
	return e.price, e.value, ok
}

// Walk visits entries best first until fn returns false.
func (m *PriceMap[V]) Walk(fn func(price float64, v V) bool) {
	m.tree.Ascend(func(e entry[V]) bool {
		return fn(e.price, e.value)
	})
}

// WalkReverse visits entries worst first until fn returns false.
func (m *PriceMap[V]) WalkReverse(fn func(price float64, v V) bool) {
	m.tree.Descend(func(e entry[V]) bool {
		return fn(e.price, e.value)
	})
}

// Prices returns the keys best first. The slice is a copy, so the map may
// be mutated while ranging over it.
func (m *PriceMap[V]) Prices() []float64 {
	out := make([]float64, 0, m.tree.Len())
	m.tree.Ascend(func(e entry[V]) bool {
		out = append(out, e.price)
		return true
	})
	return out
}

// Print is one aggregated trade print.
type Print struct {
	Price  float64
	Volume int64
}

// Prints is the set of trade prints for one interval, summed per price.
// A nil *Prints behaves as an empty set.
type Prints struct {
	m *PriceMap[int64]
}

func NewPrints(prints ...Print) *Prints {
	p := &Prints{m: NewPriceMap[int64](AskPolicy)}
	for _, pr := range prints {
		p.Add(pr.Price, pr.Volume)
	}
	return p
}

// Add accumulates volume at price. Non-positive entries are dropped.
func (p *Prints) Add(price float64, volume int64) {
	if price <= 0 || volume <= 0 {
		return
	}
	v, _ := p.m.Get(price)
	p.m.Set(price, v+volume)
}

// Volume returns the traded volume at price, 0 if none.
func (p *Prints) Volume(price float64) int64 {
	if p == nil {
		return 0
	}
	v, _ := p.m.Get(price)
	return v
}

func (p *Prints) Len() int {
	if p == nil {
		return 0
	}
	return p.m.Len()
}

// List returns the prints in ascending price order.
func (p *Prints) List() []Print {
	if p == nil {
		return nil
	}
	out := make([]Print, 0, p.m.Len())
	p.m.Walk(func(price float64, v int64) bool {
		out = append(out, Print{Price: price, Volume: v})
		return true
	})
	return out
}

// Merge adds every print of o into p.
func (p *Prints) Merge(o *Prints) {
	for _, pr := range o.List() {
		p.Add(pr.Price, pr.Volume)
	}
}

// walk visits the prints in the priority order of policy.
func (p *Prints) walk(policy SidePolicy, fn func(price float64, v int64) bool) {
	if p == nil {
		return
	}
	if policy.Side() == Ask {
		p.m.Walk(fn)
		return
	}
	p.m.WalkReverse(fn)
}
