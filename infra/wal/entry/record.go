package entry

import "time"

type RecordType uint8

const (
	// RecordTick carries a market tick fed to the session.
	RecordTick RecordType = iota + 1
	RecordPlace
	RecordCancel
	RecordMarket
	RecordReset
)

func (t RecordType) String() string {
	switch t {
	case RecordTick:
		return "TICK"
	case RecordPlace:
		return "PLACE"
	case RecordCancel:
		return "CANCEL"
	case RecordMarket:
		return "MARKET"
	case RecordReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
