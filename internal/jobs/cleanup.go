package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inzo/orchestrator-go/internal/repository"
)

// SweepJob removes abandoned policy applications and expected-input markers.
// Claim sessions are never swept; a retained claim waits for the user to
// resubmit it.
type SweepJob struct {
	store    repository.SessionStore
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
}

func NewSweepJob(store repository.SessionStore, ttl, interval time.Duration) *SweepJob {
	return &SweepJob{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("ttl", j.ttl).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before := j.now().Add(-j.ttl)

	j.runSweep(ctx, "policy applications", func(ctx context.Context) (int64, error) {
		return j.store.DeleteStaleApplications(ctx, before)
	})
	j.runSweep(ctx, "expected inputs", func(ctx context.Context) (int64, error) {
		return j.store.DeleteStaleExpectedInputs(ctx, before)
	})

	claims, err := j.store.CountClaims(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to count claim sessions")
	} else if claims > 0 {
		log.Info().Int64("count", claims).Msg("claim sessions awaiting follow-up")
	}
}

func (j *SweepJob) runSweep(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to sweep %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("swept stale %s", name)
	}
}
