package market

// Execution is the (signed volume, proxy pnl, cash value) triple returned
// by every fill-attribution and walk operation.
//
// Volume is the agent's inventory delta: positive when it bought, negative
// when it sold. ProxyPnL values each unit against a reference price.
// CashValue is the literal signed cash flow of the agent.
type Execution struct {
	Volume    int64
	ProxyPnL  float64
	CashValue float64
}

func (e Execution) Add(o Execution) Execution {
	return Execution{
		Volume:    e.Volume + o.Volume,
		ProxyPnL:  e.ProxyPnL + o.ProxyPnL,
		CashValue: e.CashValue + o.CashValue,
	}
}

func (e Execution) IsZero() bool {
	return e == Execution{}
}

// fill values volume units of a resting agent order on this side filled
// at price, against ref.
func (p SidePolicy) fill(price, ref float64, volume int64) Execution {
	s := p.sign()
	v := float64(volume)
	return Execution{
		Volume:    int64(s) * volume,
		ProxyPnL:  -s * (price - ref) * v,
		CashValue: -s * price * v,
	}
}
