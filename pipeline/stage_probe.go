package pipeline

import (
	"context"
	"io"
	"os"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/video"
)

// stageProbe materializes the input blob to local disk and reads its
// container metadata. Percent range 0-5.
func (r *attemptRun) stageProbe(ctx context.Context) error {
	r.rep.Report("probe", 0, "downloading input")

	rc, err := r.c.blobs.Open(ctx, r.job.InputBlobID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "opening input blob", err)
	}
	defer rc.Close()

	r.inputPath = r.path("input")
	f, err := os.Create(r.inputPath)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "creating scratch input file", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, rc); err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "downloading input blob", err)
	}

	iv, err := r.c.prober.ProbeFile(ctx, r.inputPath)
	if err != nil {
		return err // already classified by video.Probe
	}
	if _, err := iv.GetTrack(video.TrackTypeVideo); err != nil {
		return apierrors.New(apierrors.KindUnreadable, "no video stream found")
	}
	r.input = iv

	r.rep.Report("probe", 5, "probed input")
	return nil
}
