// Package scheduler implements the job scheduler: admission, a
// two-priority-class FIFO, dispatch under per-process and per-principal
// concurrency limits, retry with exponential backoff, per-job deadlines, and
// crash recovery via heartbeated worker leases.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/eventbus"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
)

// Reporter is handed to a Runner so it can push progress and check for
// cooperative cancellation at its checkpoints.
type Reporter interface {
	Report(phase string, percent int, description string)
	Cancelled() bool
}

// Runner executes the media pipeline for one job. A non-nil error is
// classified via apierrors.Classify to decide retry vs terminal failure.
type Runner interface {
	Run(ctx context.Context, job *jobstore.Job, reporter Reporter) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error)
}

// PriorityResolver maps a principal to the priority class their plan
// entitles them to; billing/subscription plans are an external collaborator,
// so this is injected rather than looked up in-process.
type PriorityResolver func(principalID string) jobstore.PriorityClass

// CreditHook is invoked once for a job's owning principal, just before the
// job transitions to COMPLETED. It lets an external collaborator (billing,
// usage metering) charge or decrement credit for the finished work; a
// non-nil error aborts the completion and the job is failed instead, so the
// hook is expected to be idempotent against retry of the same job attempt.
type CreditHook func(ctx context.Context, principalID string) error

// Config holds the admission/retry/timeout knobs.
type Config struct {
	WorkerConcurrency       int
	PerPrincipalConcurrency int
	MaxAttempts             int
	RetryBaseSeconds        int
	RetryFactor             float64
	RetryJitter             float64
	JobDeadline             time.Duration
	LeaseTTL                time.Duration
}

// Scheduler owns the dispatch loop and the set of currently RUNNING jobs in
// this process.
type Scheduler struct {
	db         *jobstore.DB
	bus        *eventbus.Bus
	blobs      blobExistence
	runner     Runner
	resolve    PriorityResolver
	creditHook CreditHook
	cfg        Config
	clock      clock.Clock
	wakeup     chan struct{}
	stopOnce   sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup

	mu             sync.Mutex
	runningByPrin  map[string]int
	cancelFns      map[string]context.CancelFunc
}

type blobExistence interface {
	Exists(ctx context.Context, id string) (bool, error)
}

func New(db *jobstore.DB, bus *eventbus.Bus, blobs blobExistence, runner Runner, resolve PriorityResolver, creditHook CreditHook, cfg Config) *Scheduler {
	if resolve == nil {
		resolve = func(string) jobstore.PriorityClass { return jobstore.PriorityBatch }
	}
	return &Scheduler{
		db:            db,
		bus:           bus,
		blobs:         blobs,
		runner:        runner,
		resolve:       resolve,
		creditHook:    creditHook,
		cfg:           cfg,
		clock:         clock.New(),
		wakeup:        make(chan struct{}, 1),
		stop:          make(chan struct{}),
		runningByPrin: make(map[string]int),
		cancelFns:     make(map[string]context.CancelFunc),
	}
}

// Submit creates a PENDING job and nudges the dispatch loop.
func (s *Scheduler) Submit(ctx context.Context, principalID, inputBlobID string, opts jobstore.JobOptions) (string, error) {
	opts = normalizeOptions(opts)
	priority := s.resolve(principalID)
	id, err := s.db.CreateJob(ctx, principalID, "VIDEOCLIP", inputBlobID, opts, priority)
	if err != nil {
		return "", apierrors.Wrap(apierrors.KindInternal, "creating job", err)
	}
	s.bus.Publish(id, string(jobstore.StatusPending), "", 0, "queued")
	s.nudge()
	return id, nil
}

func normalizeOptions(o jobstore.JobOptions) jobstore.JobOptions {
	switch o.AspectRatio {
	case "9:16", "1:1", "16:9":
	default:
		o.AspectRatio = "9:16"
	}
	switch o.QualityPreset {
	case "fast", "medium", "high":
	default:
		o.QualityPreset = "medium"
	}
	if o.ClipDurationHint != nil && (*o.ClipDurationHint < 5 || *o.ClipDurationHint > 120) {
		o.ClipDurationHint = nil
	}
	return o
}

// Status returns the job snapshot, enforcing principal ownership.
func (s *Scheduler) Status(ctx context.Context, jobID, principalID string) (*jobstore.Job, error) {
	j, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, apierrors.New(apierrors.KindNotFound, "job not found")
	}
	if j.PrincipalID != principalID {
		return nil, apierrors.New(apierrors.KindForbidden, "job does not belong to this principal")
	}
	return j, nil
}

// Cancel transitions PENDING→CANCELLED immediately, or for RUNNING sets a
// cancellation flag observed by the pipeline at its next checkpoint. It is
// idempotent.
func (s *Scheduler) Cancel(ctx context.Context, jobID, principalID string) error {
	j, err := s.db.GetJob(ctx, jobID)
	if err != nil {
		return apierrors.New(apierrors.KindNotFound, "job not found")
	}
	if j.PrincipalID != principalID {
		return apierrors.New(apierrors.KindForbidden, "job does not belong to this principal")
	}
	if err := s.db.Cancel(ctx, jobID); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "cancelling job", err)
	}

	s.mu.Lock()
	cancel, ok := s.cancelFns[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	s.bus.Publish(jobID, string(jobstore.StatusCancelled), j.Progress.Phase, j.Progress.Percent, "cancelled")
	return nil
}

func (s *Scheduler) nudge() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

// backoffFor computes the retry delay for the given 1-indexed attempt number
// using an exponential-with-jitter policy (base 30s, factor 2, jitter ±25%),
// via cenkalti/backoff/v4's ExponentialBackOff.
func (s *Scheduler) backoffFor(attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(s.cfg.RetryBaseSeconds) * time.Second
	eb.Multiplier = s.cfg.RetryFactor
	eb.RandomizationFactor = s.cfg.RetryJitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	if d <= 0 {
		d = eb.InitialInterval
	}
	return d
}

func newLeaseToken() string {
	return uuid.NewString()
}
