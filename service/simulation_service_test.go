package service

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/data"
	"lobsim/domain/environment"
	"lobsim/domain/market"
	entrywal "lobsim/infra/wal/entry"
	exitwal "lobsim/infra/wal/exit"
	"lobsim/snapshot"
)

func tick(ms int64, ap float64, av int64, bp float64, bv int64, prints ...market.Print) environment.Tick {
	return environment.Tick{
		Date:       20240102,
		Time:       ms,
		AskPrices:  []float64{ap},
		AskVolumes: []int64{av},
		BidPrices:  []float64{bp},
		BidVolumes: []int64{bv},
		Prints:     prints,
	}
}

// scenario: two warm-up ticks, a print that lifts the agent's ask, then
// two quiet ticks.
func scenario() []environment.Tick {
	return []environment.Tick{
		tick(1000, 101.0, 50, 99.0, 50),
		tick(2000, 101.0, 50, 99.0, 50),
		tick(3000, 101.0, 30, 99.0, 50, market.Print{Price: 101.0, Volume: 70}),
		tick(4000, 101.0, 50, 99.0, 50),
		tick(5000, 101.0, 50, 99.0, 50),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Env.Depth = 1
	cfg.Env.OrderSize = 10
	return cfg
}

type stores struct {
	walDir    string
	outboxDir string
}

func newStores(t *testing.T) stores {
	dir := t.TempDir()
	return stores{
		walDir:    filepath.Join(dir, "wal"),
		outboxDir: filepath.Join(dir, "outbox"),
	}
}

// open starts a service over fresh handles to st. The returned func closes
// them.
func (st stores) open(t *testing.T, cfg Config, ticks ...environment.Tick) (*SimulationService, *exitwal.ExitWAL, func()) {
	t.Helper()

	in, err := entrywal.Open(entrywal.DefaultConfig(st.walDir))
	require.NoError(t, err)
	out, err := exitwal.Open(st.outboxDir)
	require.NoError(t, err)

	svc, err := NewSimulationService(cfg, data.NewSliceSource(ticks...), in, out, nil)
	require.NoError(t, err)

	return svc, out, func() {
		require.NoError(t, in.Close())
		require.NoError(t, out.Close())
	}
}

func outbox(t *testing.T, w *exitwal.ExitWAL) []FillEvent {
	t.Helper()
	var evs []FillEvent
	require.NoError(t, w.ScanPending(func(r *exitwal.ExitRecord) error {
		var ev FillEvent
		if err := json.Unmarshal(r.Payload, &ev); err != nil {
			return err
		}
		assert.Equal(t, r.Seq, ev.Seq)
		evs = append(evs, ev)
		return nil
	}))
	return evs
}

func TestServiceRequiresEpisode(t *testing.T) {
	svc, err := NewSimulationService(testConfig(), data.NewSliceSource(), nil, nil, nil)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(market.Bid, 99.0, 10)
	assert.True(t, errors.Is(err, market.ErrInvalidState))
	_, err = svc.MarketOrder(1)
	assert.True(t, errors.Is(err, market.ErrInvalidState))
	_, err = svc.Step(context.Background())
	assert.True(t, errors.Is(err, market.ErrInvalidState))
}

func TestServiceStepEmitsFills(t *testing.T) {
	st := newStores(t)
	svc, out, closeAll := st.open(t, testConfig(), scenario()...)
	defer closeAll()
	ctx := context.Background()

	id, err := svc.Initialise(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, svc.EpisodeID())

	res, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-10), res.Ask.Volume)
	assert.Equal(t, int64(-10), res.Position)

	evs := outbox(t, out)
	require.Len(t, evs, 1)
	assert.Equal(t, FillEvent{
		V:         1,
		EpisodeID: id,
		Seq:       5,
		Kind:      KindLimit,
		Side:      "sell",
		Date:      20240102,
		Time:      3000,
		Volume:    -10,
		ProxyPnL:  10,
		CashValue: 1010,
		Position:  -10,
	}, evs[0])

	mo, err := svc.MarketOrder(5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), mo.Volume)

	evs = outbox(t, out)
	require.Len(t, evs, 2)
	assert.Equal(t, KindMarket, evs[1].Kind)
	assert.Equal(t, "buy", evs[1].Side)
	assert.Equal(t, int64(-5), evs[1].Position)

	assert.Equal(t, "505", svc.Stats().Cash.String())
}

func TestServiceFailedStepStillEmitsFills(t *testing.T) {
	st := newStores(t)
	ticks := append(scenario()[:2], tick(3000, 98.0, 50, 99.0, 50, market.Print{Price: 101.0, Volume: 70}))
	svc, out, closeAll := st.open(t, testConfig(), ticks...)
	defer closeAll()
	ctx := context.Background()

	_, err := svc.Initialise(ctx)
	require.NoError(t, err)

	res, err := svc.Step(ctx)
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, int64(-10), res.Ask.Volume)

	evs := outbox(t, out)
	require.Len(t, evs, 1)
	assert.Equal(t, KindLimit, evs[0].Kind)
	assert.Equal(t, int64(-10), evs[0].Volume)
	assert.Equal(t, int64(3000), evs[0].Time)
	assert.Equal(t, int64(-10), evs[0].Position)

	assert.Equal(t, "1010", svc.Stats().Cash.String())
	assert.Equal(t, int64(-10), svc.Book().Position)
}

func TestServiceReplayRestoresEpisode(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()

	live, _, closeLive := st.open(t, testConfig(), scenario()...)
	_, err := live.Initialise(ctx)
	require.NoError(t, err)
	_, err = live.Step(ctx)
	require.NoError(t, err)
	_, err = live.MarketOrder(5)
	require.NoError(t, err)
	_, err = live.CancelOrder(market.Bid, 99.0)
	require.NoError(t, err)
	_, err = live.Step(ctx)
	require.NoError(t, err)
	want := live.Book()
	closeLive()

	restored, out, closeRestored := st.open(t, testConfig(), scenario()...)
	defer closeRestored()

	res, err := restored.Replay(ctx, st.walDir)
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, want.EpisodeID, res.EpisodeID)
	assert.Equal(t, uint64(4), res.Ticks)

	got := restored.Book()
	got.Created = want.Created
	assert.Equal(t, want, got)

	assert.Len(t, outbox(t, out), 2, "replay does not re-emit fills")

	step, err := restored.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), step.Tick.Time, "the live source resumes after the replayed ticks")

	evs := outbox(t, out)
	for i := 1; i < len(evs); i++ {
		assert.Greater(t, evs[i].Seq, evs[i-1].Seq)
	}
}

func TestServiceReplayOnlyNewestEpisode(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()

	ticks := append(scenario(), tick(6000, 101.0, 50, 99.0, 50), tick(7000, 101.0, 50, 99.0, 50))

	live, _, closeLive := st.open(t, testConfig(), ticks...)
	_, err := live.Initialise(ctx)
	require.NoError(t, err)
	_, err = live.Step(ctx)
	require.NoError(t, err)
	second, err := live.Initialise(ctx)
	require.NoError(t, err)
	want := live.Book()
	closeLive()

	restored, _, closeRestored := st.open(t, testConfig(), ticks...)
	defer closeRestored()

	res, err := restored.Replay(ctx, st.walDir)
	require.NoError(t, err)
	assert.Equal(t, second, res.EpisodeID)
	assert.Equal(t, uint64(5), res.Ticks)

	got := restored.Book()
	got.Created = want.Created
	assert.Equal(t, want, got)
	assert.Zero(t, got.Position)
}

func TestServiceReplayInterrupted(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()

	live, _, closeLive := st.open(t, testConfig(), scenario()[:1]...)
	_, err := live.Initialise(ctx)
	require.Error(t, err)
	closeLive()

	restored, _, closeRestored := st.open(t, testConfig(), scenario()...)
	defer closeRestored()

	res, err := restored.Replay(ctx, st.walDir)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, uint64(1), res.Ticks)

	_, err = restored.Initialise(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), restored.Book().Time)
}

func TestServiceReplayEmptyLog(t *testing.T) {
	st := newStores(t)
	svc, _, closeAll := st.open(t, testConfig(), scenario()...)
	defer closeAll()

	res, err := svc.Replay(context.Background(), st.walDir)
	require.NoError(t, err)
	assert.Zero(t, res.Records)
	assert.Empty(t, res.EpisodeID)
	assert.Zero(t, res.Ticks)
}

func TestSnapshotOnce(t *testing.T) {
	st := newStores(t)
	cfg := testConfig()
	svc, out, closeAll := st.open(t, cfg, scenario()...)
	defer closeAll()
	ctx := context.Background()

	_, err := svc.Initialise(ctx)
	require.NoError(t, err)
	_, err = svc.Step(ctx)
	require.NoError(t, err)

	require.NoError(t, out.ScanPending(func(r *exitwal.ExitRecord) error {
		return out.MarkAcked(r.Seq)
	}))

	w := &snapshot.Writer{Dir: t.TempDir()}
	require.NoError(t, svc.snapshotOnce(w))

	v, ok, err := snapshot.Load(w.Path())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, svc.EpisodeID(), v.EpisodeID)
	assert.Equal(t, int64(-10), v.Position)

	counts, err := out.Counts()
	require.NoError(t, err)
	assert.Zero(t, counts[exitwal.StateAcked], "acked fills are trimmed")
}

func TestCheckSnapshot(t *testing.T) {
	st := newStores(t)
	snapDir := t.TempDir()
	ctx := context.Background()

	live, _, closeLive := st.open(t, testConfig(), scenario()...)
	_, err := live.Initialise(ctx)
	require.NoError(t, err)
	_, err = live.Step(ctx)
	require.NoError(t, err)
	require.NoError(t, live.snapshotOnce(&snapshot.Writer{Dir: snapDir}))
	closeLive()

	restored, _, closeRestored := st.open(t, testConfig(), scenario()...)
	defer closeRestored()
	_, err = restored.Replay(ctx, st.walDir)
	require.NoError(t, err)

	t.Run("matches replay", func(t *testing.T) {
		assert.NoError(t, restored.CheckSnapshot(snapDir))
	})

	t.Run("missing", func(t *testing.T) {
		assert.NoError(t, restored.CheckSnapshot(t.TempDir()))
	})

	t.Run("ahead of the log", func(t *testing.T) {
		dir := t.TempDir()
		v := restored.Book()
		v.Seq += 10
		require.NoError(t, (&snapshot.Writer{Dir: dir}).Write(v))
		assert.Error(t, restored.CheckSnapshot(dir))
	})

	t.Run("disagrees with replay", func(t *testing.T) {
		dir := t.TempDir()
		v := restored.Book()
		v.Position = 7
		require.NoError(t, (&snapshot.Writer{Dir: dir}).Write(v))
		assert.Error(t, restored.CheckSnapshot(dir))
	})
}

func TestSnapshotJobStops(t *testing.T) {
	svc, err := NewSimulationService(testConfig(), data.NewSliceSource(scenario()...), nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.Initialise(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := svc.StartSnapshotJob(ctx, dir, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok, err := snapshot.Load(filepath.Join(dir, snapshot.FileName))
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("snapshot job did not stop")
	}
}
