package entry

import (
	"fmt"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestWAL(t *testing.T, dir string, segSize int64) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: segSize})
	require.NoError(t, err)
	return w
}

func appendN(t *testing.T, w *WAL, from, to uint64) {
	t.Helper()
	for seq := from; seq <= to; seq++ {
		require.NoError(t, w.Append(NewRecord(RecordTick, seq, []byte(fmt.Sprintf("tick-%d", seq)))))
	}
}

func collect(t *testing.T, dir string) ([]*Record, uint64) {
	t.Helper()
	var recs []*Record
	last, err := Replay(dir, func(r *Record) error {
		recs = append(recs, r)
		return nil
	})
	require.NoError(t, err)
	return recs, last
}

func TestAppendReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 1<<20)

	require.NoError(t, w.Append(NewRecord(RecordTick, 1, []byte("a"))))
	require.NoError(t, w.Append(NewRecord(RecordPlace, 2, []byte("bb"))))
	require.NoError(t, w.Append(NewRecord(RecordCancel, 3, nil)))
	require.NoError(t, w.Close())

	recs, last := collect(t, dir)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, RecordTick, recs[0].Type)
	assert.Equal(t, []byte("a"), recs[0].Data)
	assert.Equal(t, RecordPlace, recs[1].Type)
	assert.Equal(t, []byte("bb"), recs[1].Data)
	assert.Empty(t, recs[2].Data)
	assert.Equal(t, "CANCEL", recs[2].Type.String())
}

func TestAppendRejectsNonMonotonicSeq(t *testing.T) {
	w := openTestWAL(t, t.TempDir(), 1<<20)
	defer w.Close()

	require.NoError(t, w.Append(NewRecord(RecordTick, 5, nil)))
	assert.Error(t, w.Append(NewRecord(RecordTick, 5, nil)))
	assert.Error(t, w.Append(NewRecord(RecordTick, 4, nil)))
}

func TestRotationAndReopen(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 64)
	appendN(t, w, 1, 10)
	require.NoError(t, w.Close())

	files, err := segments(dir)
	require.NoError(t, err)
	assert.Greater(t, len(files), 1)

	_, last := collect(t, dir)
	require.Equal(t, uint64(10), last)

	w = openTestWAL(t, dir, 64)
	assert.Equal(t, last, w.LastSeq(), "reopen recovers the last sequence number")
	assert.Error(t, w.Append(NewRecord(RecordTick, 10, nil)))
	appendN(t, w, 11, 12)
	require.NoError(t, w.Close())

	recs, last := collect(t, dir)
	assert.Len(t, recs, 12)
	assert.Equal(t, uint64(12), last)
	for i, r := range recs {
		assert.Equal(t, uint64(i+1), r.Seq)
	}
}

func TestTruncateBefore(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 64)
	defer w.Close()
	appendN(t, w, 1, 10)

	before, err := segments(dir)
	require.NoError(t, err)

	require.NoError(t, w.TruncateBefore(6))

	after, err := segments(dir)
	require.NoError(t, err)
	assert.Less(t, len(after), len(before))

	recs, last := collect(t, dir)
	assert.Equal(t, uint64(10), last)
	require.NotEmpty(t, recs)
	assert.LessOrEqual(t, recs[0].Seq, uint64(7), "nothing after the cut is lost")
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 1<<20)
	appendN(t, w, 1, 2)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[headerSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, b, 0o644))

	_, err = Replay(dir, func(*Record) error { return nil })
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestReplayToleratesTornTail(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 1<<20)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b[:len(b)-3], 0o644))

	recs, last := collect(t, dir)
	assert.Len(t, recs, 2)
	assert.Equal(t, uint64(2), last)
}

func TestReplayHandlerError(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 1<<20)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	stop := errors.New("stop")
	last, err := Replay(dir, func(r *Record) error {
		if r.Seq == 2 {
			return stop
		}
		return nil
	})
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, uint64(2), last)
}

func TestReopenCutsTornTail(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir, 1<<20)
	appendN(t, w, 1, 3)
	require.NoError(t, w.Close())

	path := segmentPath(dir, 0)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b[:len(b)-3], 0o644))

	w = openTestWAL(t, dir, 1<<20)
	assert.Equal(t, uint64(2), w.LastSeq())
	appendN(t, w, 3, 4)
	require.NoError(t, w.Close())

	recs, last := collect(t, dir)
	assert.Len(t, recs, 4)
	assert.Equal(t, uint64(4), last)
}
