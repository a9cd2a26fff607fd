package market

import "math"

// ApplyTransactions attributes the interval's trade prints to the agent
// orders on this side. Only prints at or through ref count: for asks
// price >= ref, for bids price <= ref. Prints are consumed best first and
// each one is fed to the open orders priced at or better than it, in
// priority order, until its volume is used up. Fully executed orders are
// removed.
func (b *Book) ApplyTransactions(prints *Prints, ref float64) (Execution, error) {
	b.observedValue = 0
	b.observedVolume = 0

	var (
		out    Execution
		err    error
		orders = b.orders.Prices()
		next   = 0
	)

	prints.walk(b.policy, func(price float64, vol int64) bool {
		if b.policy.Before(price, ref) {
			return true
		}

		b.observedValue += price * float64(vol)
		b.observedVolume += vol

		for next < len(orders) && b.policy.AtOrBetter(orders[next], price) {
			op := orders[next]
			o, _ := b.orders.Get(op)

			before := o.Remaining()
			if vol, err = o.DoTransaction(vol); err != nil {
				return false
			}
			if exec := before - o.Remaining(); exec > 0 {
				out = out.Add(b.policy.fill(op, ref, exec))
			}

			if o.IsExecuted() {
				b.orders.Delete(op)
				b.nTransacted++
				next++
			}
			if vol <= 0 {
				break
			}
		}
		return true
	})

	return out, err
}

// WalkTheBook simulates an aggressive order of |size| taking the visible
// ladder best first. It is all or nothing: if |size| exceeds the visible
// volume nothing executes. The result is from the aggressor's side:
// walking the asks buys, walking the bids sells.
func (b *Book) WalkTheBook(ref float64, size int64) Execution {
	want := size
	if want < 0 {
		want = -want
	}
	if want == 0 || want > b.totalVolume {
		return Execution{}
	}

	var (
		executed int64
		proxy    float64
		notional float64
	)
	b.levels.Walk(func(price float64, lvol int64) bool {
		ex := min(lvol, want-executed)

		executed += ex
		proxy -= float64(ex) * math.Abs(price-ref)
		notional += float64(ex) * price

		return executed < want
	})
	b.nTransacted++

	s := b.policy.sign()
	return Execution{
		Volume:    -int64(s) * executed,
		ProxyPnL:  proxy,
		CashValue: s * notional,
	}
}
