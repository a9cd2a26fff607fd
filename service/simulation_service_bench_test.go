package service

import (
	"context"
	"testing"

	"lobsim/domain/environment"
	"lobsim/domain/market"
	entrywal "lobsim/infra/wal/entry"
	exitwal "lobsim/infra/wal/exit"
)

// cycleSource repeats ticks forever with increasing timestamps.
type cycleSource struct {
	ticks []environment.Tick
	n     int64
}

func (c *cycleSource) Next(context.Context) (environment.Tick, error) {
	t := c.ticks[c.n%int64(len(c.ticks))]
	c.n++
	t.Time = c.n
	return t, nil
}

func benchTicks() []environment.Tick {
	return []environment.Tick{
		tick(0, 101.0, 50, 99.0, 50),
		tick(0, 101.0, 30, 99.0, 50, market.Print{Price: 101.0, Volume: 70}),
		tick(0, 101.5, 50, 99.5, 40, market.Print{Price: 99.5, Volume: 60}),
		tick(0, 101.0, 50, 99.0, 50),
	}
}

func BenchmarkStep_Core(b *testing.B) {
	cfg := testConfig()
	cfg.Env.PositionLower, cfg.Env.PositionUpper = -1_000_000, 1_000_000

	svc, err := NewSimulationService(cfg, &cycleSource{ticks: benchTicks()}, nil, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if _, err := svc.Initialise(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Step(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStep_Durable(b *testing.B) {
	cfg := testConfig()
	cfg.Env.PositionLower, cfg.Env.PositionUpper = -1_000_000, 1_000_000

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:         b.TempDir(),
		SegmentSize: 64 << 20,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer entryWAL.Close()
	exitWAL, err := exitwal.Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer exitWAL.Close()

	svc, err := NewSimulationService(cfg, &cycleSource{ticks: benchTicks()}, entryWAL, exitWAL, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	if _, err := svc.Initialise(ctx); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Step(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
