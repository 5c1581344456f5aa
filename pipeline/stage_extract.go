package pipeline

import (
	"context"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/video"
)

// stageExtractAudio produces a mono 16kHz audio file for the transcribe
// stage. Percent range 5-10.
func (r *attemptRun) stageExtractAudio(ctx context.Context) error {
	r.rep.Report("extract", 5, "extracting audio")

	r.audioPath = r.path("audio.wav")
	if err := video.ExtractAudio(r.inputPath, r.audioPath); err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "extracting audio", err)
	}

	r.rep.Report("extract", 10, "audio extracted")
	return nil
}
