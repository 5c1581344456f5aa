package scheduler

import (
	"context"
	"time"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
)

const (
	dispatchPollInterval = 500 * time.Millisecond
	leaseRenewInterval   = 20 * time.Second
	reapInterval         = 30 * time.Second
)

// Start runs crash recovery once, then launches the dispatch loop and the
// periodic lease-reaper in the background. Call Stop to shut both down.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.db.ReapExpiredLeases(ctx, s.cfg.MaxAttempts, s.blobs.Exists); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "crash recovery scan", err)
	}

	sem := make(chan struct{}, s.cfg.WorkerConcurrency)

	s.wg.Add(2)
	go s.dispatchLoop(ctx, sem)
	go s.reapLoop(ctx)
	return nil
}

// Stop signals both background loops to exit and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop(ctx context.Context, sem chan struct{}) {
	defer s.wg.Done()
	ticker := s.clock.Ticker(dispatchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wakeup:
		}
		s.fillSlots(ctx, sem)
	}
}

func (s *Scheduler) fillSlots(ctx context.Context, sem chan struct{}) {
	for {
		select {
		case sem <- struct{}{}:
		default:
			return // at worker_concurrency capacity
		}

		s.mu.Lock()
		running := make(map[string]int, len(s.runningByPrin))
		for k, v := range s.runningByPrin {
			running[k] = v
		}
		s.mu.Unlock()

		job, err := s.db.NextPending(ctx, running, s.cfg.PerPrincipalConcurrency)
		if err != nil {
			log.LogNoJobID("error scanning pending queue", "err", err.Error())
			<-sem
			return
		}
		if job == nil {
			<-sem
			return
		}

		lease := newLeaseToken()
		if err := s.db.Dispatch(ctx, job.ID, lease, s.clock.Now().Add(s.cfg.LeaseTTL)); err != nil {
			<-sem
			continue // someone else grabbed it, or it was cancelled meanwhile; try the next one
		}

		s.mu.Lock()
		s.runningByPrin[job.PrincipalID]++
		s.mu.Unlock()

		s.wg.Add(1)
		go func(j *jobstore.Job, lease string) {
			defer s.wg.Done()
			defer func() { <-sem }()
			s.runJob(ctx, j, lease)
		}(job, lease)
	}
}

func (s *Scheduler) reapLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := s.clock.Ticker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.db.ReapExpiredLeases(ctx, s.cfg.MaxAttempts, s.blobs.Exists); err != nil {
				log.LogNoJobID("error reaping expired leases", "err", err.Error())
			}
			s.nudge()
		}
	}
}
