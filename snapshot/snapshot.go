package snapshot

import (
	"time"

	"lobsim/domain/environment"
	"lobsim/domain/market"
)

type View struct {
	Seq       uint64
	EpisodeID string
	Created   time.Time

	Date int
	Time int64

	Position int64
	Cash     string

	Ask SideView
	Bid SideView
}

type SideView struct {
	Levels      []market.Level
	Orders      []OrderEntry
	NTransacted int
}

type OrderEntry struct {
	ID          uint64
	Price       float64
	Size        int64
	Remaining   int64
	QueueAhead  int64
	QueueBehind int64
}

func captureSide(b *market.Book) SideView {
	v := SideView{
		Levels:      b.Levels(),
		Orders:      make([]OrderEntry, 0, b.OrderCount()),
		NTransacted: b.NTransacted(),
	}
	b.EachOrder(func(o *market.Order) bool {
		v.Orders = append(v.Orders, OrderEntry{
			ID: o.ID(), Price: o.Price(), Size: o.Size(),
			Remaining: o.Remaining(), QueueAhead: o.QueueAhead(), QueueBehind: o.QueueBehind(),
		})
		return true
	})
	return v
}

// Capture copies the state of s. The caller must hold whatever lock
// serialises access to s.
func Capture(seq uint64, episodeID string, s *environment.Session) View {
	t := s.LastTick()
	st := s.Stats()
	return View{
		Seq:       seq,
		EpisodeID: episodeID,
		Created:   time.Now(),
		Date:      t.Date,
		Time:      t.Time,
		Position:  s.Position(),
		Cash:      st.Cash.String(),
		Ask:       captureSide(s.Ask()),
		Bid:       captureSide(s.Bid()),
	}
}
