package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"lobsim/api/grpcserver"
	"lobsim/data"
	"lobsim/infra/kafka"
	"lobsim/infra/metrics"
	entrywal "lobsim/infra/wal/entry"
	exitwal "lobsim/infra/wal/exit"
	"lobsim/jobs/broadcaster"
	"lobsim/service"
)

func main() {
	cfg := service.DefaultConfig()

	var (
		depthPath   = flag.String("depth", "depth.csv", "market depth CSV")
		tradesPath  = flag.String("trades", "trades.csv", "time and sales CSV")
		walDir      = flag.String("wal", "./wal_entry", "tick log directory")
		outboxDir   = flag.String("outbox", "./wal_exit", "fill outbox directory")
		brokers     = flag.String("brokers", "", "comma separated kafka brokers; empty disables publishing")
		topic       = flag.String("topic", "lobsim.fills", "kafka topic for fills")
		driver      = flag.String("kafka-driver", "sarama", "kafka client: sarama or kafka-go")
		grpcAddr    = flag.String("grpc", ":50051", "gRPC listen address")
		metricsAddr = flag.String("metrics", ":9090", "prometheus listen address; empty disables")
		stepEvery   = flag.Duration("step-interval", 0, "advance the market on a timer; 0 leaves stepping to clients")
	)
	flag.IntVar(&cfg.Env.Depth, "levels", cfg.Env.Depth, "book depth")
	flag.Int64Var(&cfg.Env.OrderSize, "order-size", cfg.Env.OrderSize, "quote size")
	flag.Int64Var(&cfg.Env.PositionLower, "position-lower", cfg.Env.PositionLower, "lower position bound")
	flag.Int64Var(&cfg.Env.PositionUpper, "position-upper", cfg.Env.PositionUpper, "upper position bound")
	flag.IntVar(&cfg.Env.OrderLimit, "order-limit", cfg.Env.OrderLimit, "open orders per side")
	flag.IntVar(&cfg.Env.AskLevel, "ask-level", cfg.Env.AskLevel, "ladder level quoted on the ask")
	flag.IntVar(&cfg.Env.BidLevel, "bid-level", cfg.Env.BidLevel, "ladder level quoted on the bid")
	flag.IntVar(&cfg.Env.MaxSkips, "max-skips", cfg.Env.MaxSkips, "inconsistent snapshots skipped per step; 0 is unbounded")
	flag.BoolVar(&cfg.AutoQuote, "auto-quote", cfg.AutoQuote, "re-quote the ladder levels before every step")
	flag.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "snapshot directory")
	flag.DurationVar(&cfg.SnapshotInterval, "snapshot-interval", cfg.SnapshotInterval, "snapshot period")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server exited: %v", err)
			}
		}()
	}

	// ---------------- Entry WAL ----------------

	walCfg := entrywal.DefaultConfig(*walDir)
	walCfg.SegmentDuration = time.Minute
	entryWAL, err := entrywal.Open(walCfg)
	if err != nil {
		log.Fatalf("tick log init failed: %v", err)
	}
	defer entryWAL.Close()

	// ---------------- Exit WAL ----------------

	exitWAL, err := exitwal.Open(*outboxDir)
	if err != nil {
		log.Fatalf("outbox init failed: %v", err)
	}
	defer exitWAL.Close()

	// ---------------- Market data ----------------

	stream, err := data.OpenStream(*depthPath, *tradesPath, cfg.Env.Depth)
	if err != nil {
		log.Fatalf("market data: %v", err)
	}
	defer stream.Close()

	// ---------------- Service ----------------

	svc, err := service.NewSimulationService(cfg, stream, entryWAL, exitWAL, m)
	if err != nil {
		log.Fatalf("service init failed: %v", err)
	}

	// ---------------- WAL REPLAY ----------------

	res, err := svc.Replay(ctx, *walDir)
	if err != nil {
		log.Fatalf("tick log replay failed: %v", err)
	}
	if err := svc.CheckSnapshot(cfg.SnapshotDir); err != nil {
		log.Fatalf("snapshot check failed: %v", err)
	}
	if res.EpisodeID == "" || res.Interrupted {
		if _, err := svc.Initialise(ctx); err != nil {
			log.Fatalf("start episode: %v", err)
		}
	}

	// ---------------- Background Jobs ----------------

	snapDone := svc.StartSnapshotJob(ctx, cfg.SnapshotDir, cfg.SnapshotInterval)

	if *brokers != "" {
		pub, err := newPublisher(*driver, strings.Split(*brokers, ","), *topic)
		if err != nil {
			log.Fatalf("publisher init failed: %v", err)
		}
		bc := broadcaster.New(exitWAL, pub, broadcaster.DefaultConfig(), m)
		bcDone := bc.Start(ctx)
		defer func() {
			<-bcDone
			_ = bc.Close()
		}()
	}

	if *stepEvery > 0 {
		go stepLoop(ctx, svc, *stepEvery)
	}

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}

	grpcSrv := grpc.NewServer()
	grpcserver.Register(grpcSrv, grpcserver.NewServer(svc))

	go func() {
		<-ctx.Done()
		grpcSrv.GracefulStop()
	}()

	log.Printf("lobsim running on %s (episode %s)", *grpcAddr, svc.EpisodeID())

	if err := grpcSrv.Serve(lis); err != nil {
		log.Printf("gRPC server exited: %v", err)
	}
	cancel()
	<-snapDone
}

func newPublisher(driver string, brokers []string, topic string) (broadcaster.Publisher, error) {
	switch driver {
	case "sarama":
		return broadcaster.NewSaramaPublisher(brokers, topic)
	case "kafka-go":
		return kafka.NewProducer(brokers, topic), nil
	default:
		return nil, errors.Newf("unknown kafka driver %q", driver)
	}
}

func stepLoop(ctx context.Context, svc *service.SimulationService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, err := svc.Step(ctx)
			if errors.Is(err, io.EOF) {
				log.Println("[service] market data exhausted")
				return
			}
			if err != nil {
				log.Printf("[service] step failed: %v", err)
			}
		}
	}
}
