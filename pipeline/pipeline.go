// Package pipeline implements the media pipeline: a strictly-ordered stage
// machine (probe, extract audio, transcribe, score, cut, reframe, caption
// burn, finalize) driven by the scheduler's Runner seam. A per-job struct is
// threaded through a fixed sequence of handler-like steps, each checking
// cancellation before and after its work, each reporting progress through a
// shared percent mapping.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/caption"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
	"github.com/clipcut/clipcut-api/scheduler"
	"github.com/clipcut/clipcut-api/video"
)

// BlobRegistrar is the narrow slice of *jobstore.DB the pipeline needs to
// register blobs it writes directly (clips, thumbnails), ahead of the
// scheduler's own artifact-row insert. See scheduler/worker.go's
// finishSuccess comment for the ownership split.
type BlobRegistrar interface {
	RegisterBlob(ctx context.Context, id string, size int64, contentType string) error
}

// Coordinator runs the 8 stages for a single job attempt. It implements
// scheduler.Runner.
type Coordinator struct {
	blobs            *blob.Store
	registrar        BlobRegistrar
	prober           video.Prober
	transcriber      Transcriber
	workDir          string
	defaultClipCount int
}

func New(blobs *blob.Store, registrar BlobRegistrar, prober video.Prober, transcriber Transcriber, workDir string, defaultClipCount int) *Coordinator {
	return &Coordinator{
		blobs:            blobs,
		registrar:        registrar,
		prober:           prober,
		transcriber:      transcriber,
		workDir:          workDir,
		defaultClipCount: defaultClipCount,
	}
}

// attemptDir returns the per-(job,attempt) scratch directory, wiped and
// recreated at the start of Run so re-execution overwrites intermediates
// deterministically.
func (c *Coordinator) attemptDir(jobID string, attempt int) string {
	return filepath.Join(c.workDir, jobID, fmt.Sprintf("attempt-%d", attempt))
}

func (c *Coordinator) Run(ctx context.Context, job *jobstore.Job, rep scheduler.Reporter) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error) {
	dir := c.attemptDir(job.ID, job.Attempts)
	if err := os.RemoveAll(dir); err != nil {
		return jobstore.JobResults{}, nil, nil, apierrors.Wrap(apierrors.KindInternal, "clearing scratch dir", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return jobstore.JobResults{}, nil, nil, apierrors.Wrap(apierrors.KindInternal, "creating scratch dir", err)
	}
	defer os.RemoveAll(dir)

	run := &attemptRun{c: c, job: job, rep: rep, dir: dir}
	return run.execute(ctx)
}

// attemptRun carries the mutable state of one pipeline execution through its
// stage functions.
type attemptRun struct {
	c   *Coordinator
	job *jobstore.Job
	rep scheduler.Reporter
	dir string

	inputPath  string
	input      video.InputVideo
	audioPath  string
	transcript []jobstore.TranscriptSegment
	candidates []candidate
}

func (r *attemptRun) path(name string) string {
	return filepath.Join(r.dir, name)
}

func checkCancelled(rep scheduler.Reporter) error {
	if rep.Cancelled() {
		return apierrors.New(apierrors.KindCancelled, "job cancelled")
	}
	return nil
}

func (r *attemptRun) execute(ctx context.Context) (jobstore.JobResults, []jobstore.Artifact, []jobstore.TranscriptSegment, error) {
	stages := []func(context.Context) error{
		r.stageProbe,
		r.stageExtractAudio,
		r.stageTranscribe,
		r.stageScore,
	}
	for _, stage := range stages {
		if err := checkCancelled(r.rep); err != nil {
			return jobstore.JobResults{}, nil, nil, err
		}
		if err := stage(ctx); err != nil {
			return jobstore.JobResults{}, nil, nil, err
		}
		if err := checkCancelled(r.rep); err != nil {
			return jobstore.JobResults{}, nil, nil, err
		}
	}

	artifacts, err := r.stageCutReframeCaptionFinalize(ctx)
	if err != nil {
		return jobstore.JobResults{}, nil, nil, err
	}

	log.Log(r.job.ID, "pipeline attempt finished", "clips", len(artifacts))
	return jobstore.JobResults{TotalClips: len(artifacts)}, artifacts, r.transcript, nil
}
