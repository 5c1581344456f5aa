package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clipcut/clipcut-api/jobstore"
)

func TestStageRangeSplitsEvenlyAcrossCandidates(t *testing.T) {
	lo0, hi0 := stageRange(45, 100, 0, 2)
	lo1, hi1 := stageRange(45, 100, 1, 2)
	require.Equal(t, 45, lo0)
	require.Equal(t, hi0, lo1)
	require.Equal(t, 100, hi1)
}

func TestStageRangeHandlesZeroCandidatesWithoutDividingByZero(t *testing.T) {
	lo, hi := stageRange(45, 100, 0, 0)
	require.Equal(t, 45, lo)
	require.Equal(t, 100, hi)
}

func TestSegmentsWithinRebasesTimestampsToClipRelative(t *testing.T) {
	segments := []jobstore.TranscriptSegment{
		{Start: 5, End: 9, Text: "hello there", Words: []jobstore.WordTiming{
			{Start: 5, End: 6, Word: "hello"},
			{Start: 7, End: 9, Word: "there"},
		}},
		{Start: 30, End: 35, Text: "far away"},
	}
	out := segmentsWithin(segments, 4, 10)
	require.Len(t, out, 1)
	require.Equal(t, 1.0, out[0].Start)
	require.Equal(t, 5.0, out[0].End)
	require.Equal(t, 1.0, out[0].Words[0].Start)
	require.Equal(t, 3.0, out[0].Words[1].Start)
}

func TestSegmentsWithinExcludesNonOverlappingSegments(t *testing.T) {
	segments := []jobstore.TranscriptSegment{
		{Start: 0, End: 2, Text: "before"},
		{Start: 20, End: 22, Text: "after"},
	}
	out := segmentsWithin(segments, 5, 10)
	require.Empty(t, out)
}

func TestThumbnailAtIsTheClipMidpoint(t *testing.T) {
	require.Equal(t, 5.0, thumbnailAt(candidate{Start: 10, End: 20}))
	require.Equal(t, 0.0, thumbnailAt(candidate{Start: 10, End: 10}))
}
