package exit

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("outbox record not found")

// -------------------- Record --------------------

// ExitRecord is one outbound event and its delivery state.
type ExitRecord struct {
	Seq         uint64
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// [state:1][retries:4][lastAttempt:8][payload]
const recordHeader = 1 + 4 + 8

func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (ExitRecord, error) {
	if len(b) < recordHeader {
		return ExitRecord{}, errors.Newf("outbox record %d too short: %d bytes", seq, len(b))
	}
	return ExitRecord{
		Seq:         seq,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[recordHeader:]...),
	}, nil
}

// -------------------- WAL --------------------

// ExitWAL is the durable outbox of fill events. The service writes NEW
// records; the broadcaster moves them through SENT to ACKED or FAILED.
type ExitWAL struct {
	db *pebble.DB
}

func Open(dir string) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open outbox")
	}
	return &ExitWAL{db: db}, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew stores a new event under seq.
func (w *ExitWAL) PutNew(seq uint64, payload []byte) error {
	rec := ExitRecord{Seq: seq, State: StateNew, Payload: payload}
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return ExitRecord{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

func (w *ExitWAL) update(seq uint64, fn func(*ExitRecord)) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	fn(&rec)
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (w *ExitWAL) MarkSent(seq uint64) error {
	return w.update(seq, func(r *ExitRecord) { r.State = StateSent })
}

func (w *ExitWAL) MarkAcked(seq uint64) error {
	return w.update(seq, func(r *ExitRecord) { r.State = StateAcked })
}

// MarkFailed records a failed delivery attempt.
func (w *ExitWAL) MarkFailed(seq uint64) error {
	return w.update(seq, func(r *ExitRecord) {
		r.State = StateFailed
		r.Retries++
	})
}

func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), pebble.Sync)
}

// -------------------- Scan --------------------

func (w *ExitWAL) scan(keep func(ExitRecord) bool) ([]ExitRecord, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ExitRecord
	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return nil, err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return nil, err
		}
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, iter.Error()
}

// ScanByState visits, in seq order, the records in state. fn may update
// the outbox.
func (w *ExitWAL) ScanByState(state ExitState, fn func(rec *ExitRecord) error) error {
	recs, err := w.scan(func(r ExitRecord) bool { return r.State == state })
	if err != nil {
		return err
	}
	return visit(recs, fn)
}

// ScanPending visits every record not yet acknowledged: NEW, FAILED, and
// SENT ones left behind by a crash between send and ack.
func (w *ExitWAL) ScanPending(fn func(rec *ExitRecord) error) error {
	recs, err := w.scan(func(r ExitRecord) bool { return r.State != StateAcked })
	if err != nil {
		return err
	}
	return visit(recs, fn)
}

func visit(recs []ExitRecord, fn func(rec *ExitRecord) error) error {
	for i := range recs {
		if err := fn(&recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// LastSeq returns the highest seq held, or 0 when the outbox is empty.
func (w *ExitWAL) LastSeq() (uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

// Counts returns the number of records in each state.
func (w *ExitWAL) Counts() (map[ExitState]int, error) {
	recs, err := w.scan(func(ExitRecord) bool { return true })
	if err != nil {
		return nil, err
	}
	out := make(map[ExitState]int, 4)
	for _, r := range recs {
		out[r.State]++
	}
	return out, nil
}

// TruncateAckedUpTo deletes ACKED records with seq at or below upTo.
func (w *ExitWAL) TruncateAckedUpTo(upTo uint64) error {
	recs, err := w.scan(func(r ExitRecord) bool { return r.State == StateAcked && r.Seq <= upTo })
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	b := w.db.NewBatch()
	defer b.Close()
	for _, r := range recs {
		if err := b.Delete(keyFor(r.Seq), nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// -------------------- Helpers --------------------

const keyPrefix = "fill/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(string(b), keyPrefix), 10, 64)
}
