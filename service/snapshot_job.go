package service

import (
	"context"
	"log"
	"time"

	"github.com/cockroachdb/errors"

	"lobsim/snapshot"
)

// StartSnapshotJob periodically writes the book to dir, then trims the
// tick log before the current episode and the acknowledged outbox.
func (s *SimulationService) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) <-chan struct{} {
	w := &snapshot.Writer{Dir: dir}
	done := make(chan struct{})

	go func() {
		defer close(done)

		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.snapshotOnce(w); err != nil {
					log.Printf("[snapshot] %v", err)
				}
			}
		}
	}()
	return done
}

func (s *SimulationService) snapshotOnce(w *snapshot.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := snapshot.Capture(s.seqGen.Current(), s.episodeID, s.session)
	if err := w.Write(v); err != nil {
		return err
	}

	// The episode's reset record must survive: replay starts from it.
	if s.entryWAL != nil && s.episodeStart > 0 {
		if err := s.entryWAL.TruncateBefore(s.episodeStart - 1); err != nil {
			return err
		}
	}
	if s.exitWAL != nil {
		return s.exitWAL.TruncateAckedUpTo(v.Seq)
	}
	return nil
}

// CheckSnapshot compares the last snapshot in dir with the replayed state.
// A snapshot ahead of the tick log, or one taken at the current seq that
// disagrees with the books, means log records were lost.
func (s *SimulationService) CheckSnapshot(dir string) error {
	w := &snapshot.Writer{Dir: dir}
	v, ok, err := snapshot.Load(w.Path())
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.seqGen.Current()
	if v.Seq > cur {
		return errors.Newf("snapshot seq %d is ahead of the tick log (seq %d)", v.Seq, cur)
	}
	if v.Seq == cur && v.EpisodeID == s.episodeID {
		now := snapshot.Capture(cur, s.episodeID, s.session)
		if now.Position != v.Position || now.Cash != v.Cash {
			return errors.Newf("snapshot at seq %d has position %d cash %s, replay has position %d cash %s",
				v.Seq, v.Position, v.Cash, now.Position, now.Cash)
		}
	}

	log.Printf("[snapshot] last snapshot seq=%d episode=%s position=%d cash=%s",
		v.Seq, v.EpisodeID, v.Position, v.Cash)
	return nil
}
