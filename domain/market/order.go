package market

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// Order is a synthetic resting order and its queue bookkeeping. The book
// owning it is the only writer.
type Order struct {
	id    uint64
	price float64
	size  int64

	initialQueue int64

	totalExecuted int64
	transacted    int64

	qHead int64
	qTail int64
}

// NewOrder creates an order with qHead units already queued ahead of it.
func NewOrder(id uint64, price float64, size, qHead int64) (*Order, error) {
	if price <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "order price must be positive: %v", price)
	}
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "order size must be positive: %d", size)
	}
	if qHead < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "order queue must not be negative: %d", qHead)
	}
	return &Order{
		id:           id,
		price:        price,
		size:         size,
		initialQueue: qHead,
		qHead:        qHead,
	}, nil
}

func (o *Order) ID() uint64         { return o.id }
func (o *Order) Price() float64     { return o.price }
func (o *Order) Size() int64        { return o.size }
func (o *Order) QueueAhead() int64  { return o.qHead }
func (o *Order) QueueBehind() int64 { return o.qTail }

// InitialQueue is the volume ahead at placement.
func (o *Order) InitialQueue() int64 { return o.initialQueue }

// TotalExecuted is the volume of this order that has been filled.
func (o *Order) TotalExecuted() int64 { return o.totalExecuted }

// TotalTransacted is the gross print volume fed to this order, including
// volume that only advanced it in the queue or traded through it.
func (o *Order) TotalTransacted() int64 { return o.transacted }

func (o *Order) Remaining() int64 {
	return max(o.size-o.totalExecuted, 0)
}

func (o *Order) IsExecuted() bool {
	return o.totalExecuted >= o.size
}

// DoTransaction feeds volume traded at this order's price into the queue.
// Volume first consumes the queue ahead, then fills the order itself; what
// is left over traded through and is returned.
func (o *Order) DoTransaction(volume int64) (int64, error) {
	if volume < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "transaction volume must not be negative: %d", volume)
	}

	o.transacted += volume

	left := volume - o.qHead
	if left <= 0 {
		o.qHead -= volume
		return 0, nil
	}

	o.qHead = 0
	if rem := o.Remaining(); rem <= left {
		o.totalExecuted = o.size
		left -= rem
	} else {
		o.totalExecuted += left
		left = 0
	}
	return left, nil
}

// DoCancellation removes volume cancelled by other participants. When
// there is volume on both sides of the order it is split proportionally,
// rounding the head share up.
func (o *Order) DoCancellation(volume int64) error {
	if volume < 0 {
		return errors.Wrapf(ErrInvalidArgument, "cancellation volume must not be negative: %d", volume)
	}

	if o.qTail == 0 {
		o.qHead -= volume
	} else {
		total := float64(o.qHead + o.qTail)
		v := float64(volume)

		head := int64(math.Ceil(v * float64(o.qHead) / total))
		tail := int64(math.Floor(v * float64(o.qTail) / total))

		o.qHead -= head
		o.qTail -= tail
	}

	// over-cancellation ahead eats into the queue behind
	if o.qHead < 0 {
		o.qTail += o.qHead
		o.qHead = 0
	}
	if o.qTail < 0 {
		o.qTail = 0
	}
	return nil
}

func (o *Order) AddVolumeBehind(volume int64) {
	o.qTail += volume
}

// ClearQueues zeroes both queues; used when the order's price is no longer
// a visible level.
func (o *Order) ClearQueues() {
	o.qHead = 0
	o.qTail = 0
}

// QueueProgress is the fraction of the initial queue still ahead.
func (o *Order) QueueProgress() float64 {
	return float64(o.qHead) / math.Max(1, float64(o.initialQueue))
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%d, price=%.4f, size=%d, rem=%d, q_head=%d, q_tail=%d)",
		o.id, o.price, o.size, o.Remaining(), o.qHead, o.qTail)
}
