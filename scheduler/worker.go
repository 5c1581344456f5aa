package scheduler

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
)

// reporter bridges the Runner's progress/cancellation calls back into the
// scheduler's event bus and the job's cancellation flag.
type reporter struct {
	s        *Scheduler
	jobID    string
	ctx      context.Context
	lastPct  int
}

func (r *reporter) Report(phase string, percent int, description string) {
	if percent < r.lastPct {
		percent = r.lastPct // progress.percent is non-decreasing within an attempt
	}
	r.lastPct = percent
	if err := r.s.db.UpdateProgress(r.ctx, r.jobID, jobstore.Progress{Phase: phase, Percent: percent, Description: description}); err != nil {
		log.LogError(r.jobID, "error persisting progress", err)
	}
	r.s.bus.Publish(r.jobID, string(jobstore.StatusRunning), phase, percent, description)
}

func (r *reporter) Cancelled() bool {
	return r.ctx.Err() != nil
}

// runJob executes one attempt: deadline + cancellation context, lease
// heartbeat, panic-safe Runner invocation, then the terminal state
// transition.
func (s *Scheduler) runJob(parent context.Context, job *jobstore.Job, lease string) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobDeadline)
	s.mu.Lock()
	s.cancelFns[job.ID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancelFns, job.ID)
		s.runningByPrin[job.PrincipalID]--
		if s.runningByPrin[job.PrincipalID] <= 0 {
			delete(s.runningByPrin, job.PrincipalID)
		}
		s.mu.Unlock()
		s.nudge()
	}()

	heartbeatStop := make(chan struct{})
	go s.heartbeat(ctx, job.ID, lease, heartbeatStop)
	defer close(heartbeatStop)

	rep := &reporter{s: s, jobID: job.ID, ctx: ctx}

	results, artifacts, transcript, err := s.invokeRunner(ctx, job, rep)

	if ctx.Err() == context.DeadlineExceeded {
		err = apierrors.New(apierrors.KindTimeout, "job exceeded its global deadline")
	}

	switch {
	case err == nil:
		s.finishSuccess(parent, job, results, artifacts, transcript)
	default:
		s.finishError(parent, job, err)
	}
}

// invokeRunner calls the Runner, converting a panic into a classified
// internal error.
func (s *Scheduler) invokeRunner(ctx context.Context, job *jobstore.Job, rep Reporter) (res jobstore.JobResults, artifacts []jobstore.Artifact, transcript []jobstore.TranscriptSegment, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogNoJobID("panic running pipeline", "job_id", job.ID, "recover", rec, "stack", string(debug.Stack()))
			err = apierrors.New(apierrors.KindInternal, "pipeline panicked")
		}
	}()
	return s.runner.Run(ctx, job, rep)
}

func (s *Scheduler) heartbeat(ctx context.Context, jobID, lease string, stop chan struct{}) {
	ticker := s.clock.Ticker(leaseRenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.db.RenewLease(ctx, jobID, lease, s.clock.Now().Add(s.cfg.LeaseTTL)); err != nil {
				log.LogError(jobID, "error renewing worker lease", err)
			}
		}
	}
}

func (s *Scheduler) finishSuccess(ctx context.Context, job *jobstore.Job, results jobstore.JobResults, artifacts []jobstore.Artifact, transcript []jobstore.TranscriptSegment) {
	if len(transcript) > 0 {
		if err := s.db.PutTranscript(ctx, job.ID, transcript); err != nil {
			log.LogError(job.ID, "error persisting transcript", err)
		}
	}
	if len(artifacts) > 0 {
		// Each artifact's blob was already registered (size, content type, and
		// an initial refcount of 1) by the pipeline stage that wrote it.
		if err := s.db.InsertArtifacts(ctx, job.ID, artifacts); err != nil {
			s.finishError(ctx, job, apierrors.Wrap(apierrors.KindInternal, "persisting artifacts", err))
			return
		}
	}
	if s.creditHook != nil {
		if err := s.creditHook(ctx, job.PrincipalID); err != nil {
			s.finishError(ctx, job, apierrors.Wrap(apierrors.KindInternal, "credit hook", err))
			return
		}
	}
	if err := s.db.Complete(ctx, job.ID, results); err != nil {
		log.LogError(job.ID, "error completing job", err)
		return
	}
	log.Log(job.ID, "job completed", "total_clips", results.TotalClips)
	s.bus.Publish(job.ID, string(jobstore.StatusCompleted), "finalize", 100, "completed")
}

func (s *Scheduler) finishError(ctx context.Context, job *jobstore.Job, runErr error) {
	if errors.Is(runErr, context.Canceled) {
		runErr = apierrors.New(apierrors.KindCancelled, "job cancelled")
	}
	ce := apierrors.Classify(runErr)
	jobErr := jobstore.JobError{Kind: string(ce.Kind), Message: ce.Message, Retryable: ce.Retryable()}

	retryAfter := s.clock.Now().Add(s.backoffFor(job.Attempts + 1))
	if err := s.db.Fail(ctx, job.ID, jobErr, s.cfg.MaxAttempts, retryAfter); err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			return // job already left RUNNING (e.g. concurrently cancelled); nothing to record
		}
		log.LogError(job.ID, "error recording job failure", err)
		return
	}

	j, err := s.db.GetJob(ctx, job.ID)
	status := jobstore.StatusFailed
	if err == nil {
		status = j.Status
	}
	log.LogError(job.ID, "job attempt failed", ce, "kind", ce.Kind, "retryable", ce.Retryable(), "final_status", status)
	s.bus.Publish(job.ID, string(status), job.Progress.Phase, job.Progress.Percent, ce.Message)
}
