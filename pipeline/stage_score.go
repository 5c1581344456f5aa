package pipeline

import (
	"context"

	"github.com/clipcut/clipcut-api/apierrors"
)

// stageScore picks the clip windows to cut from the scored transcript
// timeline. Percent range 40-45.
func (r *attemptRun) stageScore(ctx context.Context) error {
	r.rep.Report("score", 40, "scoring clip candidates")

	topK := r.c.defaultClipCount
	if topK <= 0 {
		topK = 1
	}
	candidates := scoreCandidates(r.transcript, r.input.Duration, r.job.Options.ClipDurationHint, topK)
	if len(candidates) == 0 {
		return apierrors.New(apierrors.KindUnreadable, "no clip candidates found in input")
	}
	r.candidates = candidates

	r.rep.Report("score", 45, "scored clip candidates")
	return nil
}
