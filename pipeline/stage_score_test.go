package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clipcut/clipcut-api/apierrors"
	"github.com/clipcut/clipcut-api/jobstore"
)

type fakeReporter struct {
	cancelled bool
	reports   []string
}

func (f *fakeReporter) Report(phase string, percent int, description string) {
	f.reports = append(f.reports, phase)
}
func (f *fakeReporter) Cancelled() bool { return f.cancelled }

func TestStageScorePopulatesCandidatesFromTranscript(t *testing.T) {
	rep := &fakeReporter{}
	run := &attemptRun{
		c:    &Coordinator{defaultClipCount: 2},
		job:  &jobstore.Job{},
		rep:  rep,
		transcript: []jobstore.TranscriptSegment{
			{Start: 0, End: 10, Text: "wow amazing", Words: words(20)},
		},
	}
	run.input.Duration = 10

	err := run.stageScore(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, run.candidates)
}

func TestStageScoreFailsWhenInputHasNoDuration(t *testing.T) {
	rep := &fakeReporter{}
	run := &attemptRun{
		c:   &Coordinator{defaultClipCount: 1},
		job: &jobstore.Job{},
		rep: rep,
	}

	err := run.stageScore(context.Background())
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	require.Equal(t, apierrors.KindUnreadable, apiErr.Kind)
}
