package broadcaster

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"

	"lobsim/infra/metrics"
	exitwal "lobsim/infra/wal/exit"
)

// Publisher delivers one outbox event. Publish returns once the event is
// durably accepted.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Config struct {
	Interval time.Duration

	// MaxRetries leaves an event FAILED once it has failed this many
	// times. Zero retries forever.
	MaxRetries uint32
}

func DefaultConfig() Config {
	return Config{Interval: 250 * time.Millisecond, MaxRetries: 20}
}

// Broadcaster drains the outbox to a Publisher: every pending event is
// marked SENT, published, then marked ACKED or FAILED.
type Broadcaster struct {
	exitWAL *exitwal.ExitWAL
	pub     Publisher
	cfg     Config
	metrics *metrics.Metrics
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(exitWAL *exitwal.ExitWAL, pub Publisher, cfg Config, m *metrics.Metrics) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Broadcaster{
		exitWAL: exitWAL,
		pub:     pub,
		cfg:     cfg,
		metrics: m,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start runs the drain loop until ctx is done. The returned channel is
// closed when the loop exits.
func (b *Broadcaster) Start(ctx context.Context) <-chan struct{} {
	log.Println("[broadcaster] started")

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[broadcaster] stopped")
				return

			case <-ticker.C:
				if _, err := b.ReplayOnce(ctx); err != nil {
					log.Printf("[broadcaster] drain failed: %v", err)
				}
			}
		}
	}()
	return done
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// ReplayOnce makes one pass over the pending events and returns how many
// were acknowledged. A publish failure is recorded on the event and does
// not stop the pass.
func (b *Broadcaster) ReplayOnce(ctx context.Context) (int, error) {
	acked := 0
	err := b.exitWAL.ScanPending(func(rec *exitwal.ExitRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.cfg.MaxRetries > 0 && rec.State == exitwal.StateFailed && rec.Retries >= b.cfg.MaxRetries {
			return nil
		}

		if err := b.exitWAL.MarkSent(rec.Seq); err != nil {
			return err
		}

		key := []byte(strconv.FormatUint(rec.Seq, 10))
		err := b.pub.Publish(ctx, key, rec.Payload)
		b.metrics.ObservePublish(err)
		if err != nil {
			log.Printf("[broadcaster] publish seq=%d retries=%d failed: %v", rec.Seq, rec.Retries, err)
			return b.exitWAL.MarkFailed(rec.Seq)
		}

		acked++
		return b.exitWAL.MarkAcked(rec.Seq)
	})
	if err != nil {
		return acked, err
	}

	counts, err := b.exitWAL.Counts()
	if err != nil {
		return acked, err
	}
	for _, s := range []exitwal.ExitState{exitwal.StateNew, exitwal.StateSent, exitwal.StateAcked, exitwal.StateFailed} {
		b.metrics.SetOutbox(s.String(), counts[s])
	}
	return acked, nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}

// ------------------------------------------------
// SARAMA
// ------------------------------------------------

// SaramaPublisher publishes through a sarama sync producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "sarama producer")
	}
	return NewSaramaPublisherFrom(producer, topic), nil
}

func NewSaramaPublisherFrom(producer sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: producer, topic: topic}
}

func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
