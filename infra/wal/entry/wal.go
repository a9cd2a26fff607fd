package entry

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
const headerSize = 1 + 8 + 8 + 4

type Config struct {
	Dir string

	// SegmentSize rotates the active segment once it reaches this many
	// bytes. SegmentDuration, when set, also rotates it by age.
	SegmentSize     int64
	SegmentDuration time.Duration

	// SyncEveryAppend fsyncs after each record.
	SyncEveryAppend bool
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		SegmentSize:     4 << 20,
		SegmentDuration: time.Minute,
	}
}

// WAL is the append-only tick log. It is not safe for concurrent use;
// the service is its only writer.
type WAL struct {
	cfg Config

	current    *segment
	segIndex   int
	lastRotate time.Time
	lastSeq    uint64
}

// Open continues the newest segment in cfg.Dir, creating the directory
// if needed.
func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		return nil, errors.Newf("segment size must be positive, got %d", cfg.SegmentSize)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create tick log dir")
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	index := 0
	var lastSeq uint64
	if n := len(files); n > 0 {
		newest := files[n-1]
		if index, err = segmentIndex(newest); err != nil {
			return nil, errors.Wrapf(err, "parse segment name %s", newest)
		}
		if lastSeq, err = recoverTail(newest); err != nil {
			return nil, err
		}
		if lastSeq == 0 && n > 1 {
			if lastSeq, err = maxSeqInSegment(files[n-2]); err != nil {
				return nil, errors.Wrapf(err, "scan %s", files[n-2])
			}
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		cfg:        cfg,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
		lastSeq:    lastSeq,
	}, nil
}

// recoverTail cuts a torn record off the end of the newest segment so
// appends land on a record boundary.
func recoverTail(path string) (uint64, error) {
	lastSeq, end, err := validTail(path)
	if err != nil {
		return 0, errors.Wrapf(err, "scan %s", path)
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if st.Size() > end {
		if err := os.Truncate(path, end); err != nil {
			return 0, errors.Wrapf(err, "truncate torn tail of %s", path)
		}
	}
	return lastSeq, nil
}

// Append writes r to the active segment. Sequence numbers must increase.
func (w *WAL) Append(r *Record) error {
	if r.Seq <= w.lastSeq {
		return errors.Newf("non-monotonic seq %d after %d", r.Seq, w.lastSeq)
	}

	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return errors.Wrap(err, "append record")
	}
	if w.cfg.SyncEveryAppend {
		if err := w.current.sync(); err != nil {
			return errors.Wrap(err, "sync segment")
		}
	}
	w.lastSeq = r.Seq

	if w.current.offset >= w.cfg.SegmentSize ||
		(w.cfg.SegmentDuration > 0 && time.Since(w.lastRotate) >= w.cfg.SegmentDuration) {
		return w.rotate()
	}
	return nil
}

// SetLastSeq raises the floor for the next appended sequence number.
func (w *WAL) SetLastSeq(seq uint64) {
	w.lastSeq = max(w.lastSeq, seq)
}

func (w *WAL) LastSeq() uint64 {
	return w.lastSeq
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return errors.Wrap(err, "sync segment")
	}
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.cfg.Dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes closed segments whose records all have
// sequence numbers at or below seq. The active segment is kept.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := segments(w.cfg.Dir)
	if err != nil {
		return err
	}

	active := segmentPath(w.cfg.Dir, w.segIndex)
	for _, path := range files {
		if path == active {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return errors.Wrapf(err, "remove %s", path)
			}
		}
	}
	return nil
}

func (w *WAL) Sync() error {
	return w.current.sync()
}

func (w *WAL) Close() error {
	if err := w.current.sync(); err != nil {
		_ = w.current.close()
		return err
	}
	return w.current.close()
}
