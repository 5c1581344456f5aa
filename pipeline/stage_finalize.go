package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/caption"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
	"github.com/clipcut/clipcut-api/video"
)

// thumbnailAt returns the offset into a clip of (duration c.End-c.Start) its
// cover thumbnail is grabbed from: the clip's midpoint, which tends to avoid
// a frame-zero thumbnail that's still black or mid-fade.
func thumbnailAt(c candidate) float64 {
	return (c.End - c.Start) / 2
}

// stageCutReframeCaptionFinalize runs the four per-candidate render stages
// (cut, reframe, caption burn, finalize) over every scored candidate and
// uploads the results. Candidates are rendered one after another, each over
// an even share of 45-100 (see stageRange): within a share, cut reports at
// its start and reframe, caption and finalize at successive quarter steps,
// and finalize reports the share's end when the clip is stored. The phases
// therefore repeat once per candidate; there are no fixed per-phase ranges.
func (r *attemptRun) stageCutReframeCaptionFinalize(ctx context.Context) ([]jobstore.Artifact, error) {
	artifacts := make([]jobstore.Artifact, 0, len(r.candidates))

	n := len(r.candidates)
	for i, c := range r.candidates {
		if err := checkCancelled(r.rep); err != nil {
			return nil, err
		}

		lo, hi := stageRange(45, 100, i, n)
		artifact, err := r.renderCandidate(ctx, i+1, c, lo, hi)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)

		if err := checkCancelled(r.rep); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

// stageRange splits [lo,hi) evenly across n candidates, returning the
// sub-range for candidate i.
func stageRange(lo, hi, i, n int) (int, int) {
	if n <= 0 {
		return lo, hi
	}
	span := hi - lo
	return lo + span*i/n, lo + span*(i+1)/n
}

func (r *attemptRun) renderCandidate(ctx context.Context, ordinal int, c candidate, lo, hi int) (jobstore.Artifact, error) {
	step := (hi - lo) / 4
	if step <= 0 {
		step = 1
	}

	cutPath := r.path(fmt.Sprintf("clip-%d-cut.mp4", ordinal))
	r.rep.Report("cut", lo, fmt.Sprintf("cutting clip %d", ordinal))
	if err := video.CutSegment(ctx, r.inputPath, cutPath, c.Start, c.End); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "cutting clip segment", err)
	}

	videoTrack, err := r.input.GetTrack(video.TrackTypeVideo)
	if err != nil {
		return jobstore.Artifact{}, apierrors.New(apierrors.KindUnreadable, "no video stream found")
	}

	aspectRatio := r.job.Options.AspectRatio
	if aspectRatio == "" {
		aspectRatio = "9:16"
	}

	reframePath := r.path(fmt.Sprintf("clip-%d-reframed.mp4", ordinal))
	r.rep.Report("reframe", lo+step, fmt.Sprintf("reframing clip %d", ordinal))
	if err := video.Reframe(cutPath, reframePath, aspectRatio, videoTrack.Width, videoTrack.Height); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "reframing clip", err)
	}

	captioned := reframePath
	captionTrackID := ""
	addCaptions := r.job.Options.AddCaptions && len(r.transcript) > 0
	if addCaptions {
		r.rep.Report("caption", lo+2*step, fmt.Sprintf("burning captions for clip %d", ordinal))
		assPath := r.path(fmt.Sprintf("clip-%d.ass", ordinal))
		burnedPath := r.path(fmt.Sprintf("clip-%d-captioned.mp4", ordinal))
		if err := r.writeCaptionTrack(assPath, c); err != nil {
			return jobstore.Artifact{}, err
		}
		if err := video.BurnCaptions(reframePath, assPath, burnedPath); err != nil {
			return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "burning captions", err)
		}
		captioned = burnedPath

		assDesc, err := r.c.blobs.PutFile(ctx, assPath)
		if err != nil {
			return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "storing caption track", err)
		}
		if err := r.c.registrar.RegisterBlob(ctx, assDesc.ID, assDesc.Size, assDesc.ContentType); err != nil {
			return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindInternal, "registering caption blob", err)
		}
		captionTrackID = assDesc.ID
	} else {
		r.rep.Report("caption", lo+2*step, fmt.Sprintf("no captions for clip %d", ordinal))
	}

	qualityPreset := r.job.Options.QualityPreset
	if qualityPreset == "" {
		qualityPreset = "medium"
	}

	finalPath := r.path(fmt.Sprintf("clip-%d-final.mp4", ordinal))
	r.rep.Report("finalize", lo+3*step, fmt.Sprintf("finalizing clip %d", ordinal))
	if err := video.Finalize(captioned, finalPath, qualityPreset); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "finalizing clip", err)
	}

	thumbPath := r.path(fmt.Sprintf("clip-%d-thumb.jpg", ordinal))
	if err := video.ExtractThumbnail(finalPath, thumbPath, thumbnailAt(c)); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "extracting thumbnail", err)
	}

	clipDesc, err := r.c.blobs.PutFile(ctx, finalPath)
	if err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "storing finished clip", err)
	}
	if err := r.c.registrar.RegisterBlob(ctx, clipDesc.ID, clipDesc.Size, clipDesc.ContentType); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindInternal, "registering clip blob", err)
	}

	thumbDesc, err := r.c.blobs.PutFile(ctx, thumbPath)
	if err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindTransientIO, "storing clip thumbnail", err)
	}
	if err := r.c.registrar.RegisterBlob(ctx, thumbDesc.ID, thumbDesc.Size, thumbDesc.ContentType); err != nil {
		return jobstore.Artifact{}, apierrors.Wrap(apierrors.KindInternal, "registering thumbnail blob", err)
	}

	r.rep.Report("finalize", hi, fmt.Sprintf("finished clip %d", ordinal))
	log.Log(r.job.ID, "clip rendered", "ordinal", ordinal, "start", c.Start, "end", c.End, "captions", addCaptions)

	return jobstore.Artifact{
		Ordinal:         ordinal,
		BlobID:          clipDesc.ID,
		Duration:        c.End - c.Start,
		SourceStart:     c.Start,
		SourceEnd:       c.End,
		AspectRatio:     aspectRatio,
		CaptionsAdded:   addCaptions,
		ViralScore:      c.Score,
		CaptionTrackID:  captionTrackID,
		ThumbnailBlobID: thumbDesc.ID,
	}, nil
}

func (r *attemptRun) writeCaptionTrack(assPath string, c candidate) error {
	f, err := os.Create(assPath)
	if err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "creating caption scratch file", err)
	}
	defer f.Close()

	style := caption.Resolve(r.job.Options.CaptionStyle)
	segments := segmentsWithin(r.transcript, c.Start, c.End)
	if err := caption.WriteASS(f, style, segments); err != nil {
		return apierrors.Wrap(apierrors.KindInternal, "writing caption track", err)
	}
	return nil
}

// segmentsWithin returns the transcript segments overlapping [start,end),
// re-based to clip-relative time, since the cut clip's own timeline starts
// at 0 regardless of where it sat in the source.
func segmentsWithin(segments []jobstore.TranscriptSegment, start, end float64) []jobstore.TranscriptSegment {
	var out []jobstore.TranscriptSegment
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		rebased := seg
		rebased.Start = seg.Start - start
		rebased.End = seg.End - start
		words := make([]jobstore.WordTiming, len(seg.Words))
		for i, w := range seg.Words {
			words[i] = jobstore.WordTiming{Start: w.Start - start, End: w.End - start, Word: w.Word}
		}
		rebased.Words = words
		out = append(out, rebased)
	}
	return out
}
