package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clipcut/clipcut-api/jobstore"
)

func words(n int) []jobstore.WordTiming {
	out := make([]jobstore.WordTiming, n)
	for i := range out {
		out[i] = jobstore.WordTiming{Word: "w"}
	}
	return out
}

func TestClipWindowSecondsUsesDurationBuckets(t *testing.T) {
	require.Equal(t, 15.0, clipWindowSeconds(45, nil))
	require.Equal(t, 30.0, clipWindowSeconds(120, nil))
	require.Equal(t, 60.0, clipWindowSeconds(600, nil))
}

func TestClipWindowSecondsHonorsExplicitHint(t *testing.T) {
	hint := 22.0
	require.Equal(t, 22.0, clipWindowSeconds(600, &hint))
}

func TestScoreWindowRewardsWordDensityAndKeywords(t *testing.T) {
	segments := []jobstore.TranscriptSegment{
		{Start: 0, End: 10, Text: "this is totally normal", Words: words(4)},
	}
	plain := scoreWindow(segments, 0, 10, 10)

	hyped := []jobstore.TranscriptSegment{
		{Start: 0, End: 10, Text: "wow that is insane haha", Words: words(5)},
	}
	withMarkers := scoreWindow(hyped, 0, 10, 10)

	require.Greater(t, withMarkers, plain)
}

func TestScoreWindowClampsToTen(t *testing.T) {
	segments := []jobstore.TranscriptSegment{
		{Start: 0, End: 1, Text: "wow crazy insane unbelievable amazing no way wait haha lol lmao", Words: words(200)},
	}
	require.Equal(t, 10.0, scoreWindow(segments, 0, 1, 1))
}

func TestSnapToSegmentBoundariesPullsEdgesToContainingSegment(t *testing.T) {
	segments := []jobstore.TranscriptSegment{
		{Start: 2, End: 8, Text: "hello"},
		{Start: 8, End: 20, Text: "world"},
	}
	start, end := snapToSegmentBoundaries(segments, 3, 15)
	require.Equal(t, 2.0, start)
	require.Equal(t, 20.0, end)
}

func TestIoUOfDisjointWindowsIsZero(t *testing.T) {
	a := candidate{Start: 0, End: 10}
	b := candidate{Start: 20, End: 30}
	require.Equal(t, 0.0, iou(a, b))
}

func TestIoUOfIdenticalWindowsIsOne(t *testing.T) {
	a := candidate{Start: 0, End: 10}
	require.Equal(t, 1.0, iou(a, a))
}

func TestDedupeByIoUKeepsHigherScoringOfOverlappingPair(t *testing.T) {
	sorted := []candidate{
		{Start: 0, End: 10, Score: 9},
		{Start: 1, End: 11, Score: 5}, // heavy overlap with the first
		{Start: 50, End: 60, Score: 4}, // disjoint, always kept
	}
	kept := dedupeByIoU(sorted, 0.3)
	require.Len(t, kept, 2)
	require.Equal(t, 9.0, kept[0].Score)
	require.Equal(t, 4.0, kept[1].Score)
}

func TestScoreCandidatesReturnsAtMostTopK(t *testing.T) {
	var segments []jobstore.TranscriptSegment
	for i := 0; i < 10; i++ {
		start := float64(i * 20)
		segments = append(segments, jobstore.TranscriptSegment{
			Start: start, End: start + 15, Text: "wow amazing", Words: words(30),
		})
	}
	candidates := scoreCandidates(segments, 200, nil, 3)
	require.LessOrEqual(t, len(candidates), 3)
	require.NotEmpty(t, candidates)
}

func TestScoreCandidatesFallsBackToWholeInputWhenShorterThanWindow(t *testing.T) {
	segments := []jobstore.TranscriptSegment{{Start: 0, End: 5, Text: "hi"}}
	candidates := scoreCandidates(segments, 5, nil, 3)
	require.Len(t, candidates, 1)
	require.Equal(t, 0.0, candidates[0].Start)
	require.Equal(t, 5.0, candidates[0].End)
}
