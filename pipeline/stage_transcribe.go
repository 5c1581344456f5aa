package pipeline

import (
	"context"

	"github.com/clipcut/clipcut-api/apierrors"
)

// stageTranscribe produces the timed transcript.
// Percent range 10-40. An empty result (no speech detected) is not an
// error — §7 classifies "no-speech-detected" as informational.
func (r *attemptRun) stageTranscribe(ctx context.Context) error {
	r.rep.Report("transcribe", 10, "transcribing audio")

	segments, err := r.c.transcriber.Transcribe(ctx, r.audioPath, r.input.Duration)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransientDependency, "transcribing audio", err)
	}
	r.transcript = segments

	if len(segments) == 0 {
		r.rep.Report("transcribe", 40, "no speech detected")
		return nil
	}
	r.rep.Report("transcribe", 40, "transcribed audio")
	return nil
}
