package pipeline

import (
	"sort"
	"strings"

	"github.com/clipcut/clipcut-api/jobstore"
)

// candidate is a scored clip window produced by the Score stage.
type candidate struct {
	Start float64
	End   float64
	Score float64
}

// keywordMarkers and laughterMarkers back a simple energy-free heuristic:
// the real signal a production scorer would use (audio energy, laughter
// detection) is external AI/ASR vendor territory outside this core's scope;
// this is the heuristic combination settled on in its place.
var keywordMarkers = []string{"wow", "crazy", "insane", "unbelievable", "amazing", "no way", "wait"}
var laughterMarkers = []string{"haha", "lol", "lmao"}

// clipWindowSeconds picks the default window length from total duration, or
// honors an explicit (already-validated, 5-120s) hint.
func clipWindowSeconds(totalDuration float64, hint *float64) float64 {
	if hint != nil {
		return *hint
	}
	switch {
	case totalDuration <= 60:
		return 15
	case totalDuration <= 180:
		return 30
	default:
		return 60
	}
}

// scoreCandidates slides overlapping windows across the transcript timeline,
// scores each by word density + keyword/laughter markers, snaps window
// edges to the nearest transcript segment boundary, deduplicates by IoU,
// and returns the top K by score.
func scoreCandidates(segments []jobstore.TranscriptSegment, totalDuration float64, hint *float64, topK int) []candidate {
	windowLen := clipWindowSeconds(totalDuration, hint)
	if windowLen > totalDuration {
		windowLen = totalDuration
	}
	if windowLen <= 0 {
		return nil
	}

	step := windowLen / 2
	var raw []candidate
	for start := 0.0; start+windowLen <= totalDuration+0.001; start += step {
		end := start + windowLen
		if end > totalDuration {
			end = totalDuration
		}
		raw = append(raw, candidate{
			Start: start,
			End:   end,
			Score: scoreWindow(segments, start, end, windowLen),
		})
	}
	if len(raw) == 0 && totalDuration > 0 {
		raw = append(raw, candidate{Start: 0, End: totalDuration, Score: scoreWindow(segments, 0, totalDuration, totalDuration)})
	}

	for i := range raw {
		raw[i].Start, raw[i].End = snapToSegmentBoundaries(segments, raw[i].Start, raw[i].End)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].Score > raw[j].Score })
	deduped := dedupeByIoU(raw, 0.3)

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped
}

func scoreWindow(segments []jobstore.TranscriptSegment, start, end, windowLen float64) float64 {
	var wordCount int
	var keywordHits, laughterHits int
	for _, seg := range segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		wordCount += len(seg.Words)
		lower := strings.ToLower(seg.Text)
		for _, kw := range keywordMarkers {
			if strings.Contains(lower, kw) {
				keywordHits++
			}
		}
		for _, lm := range laughterMarkers {
			if strings.Contains(lower, lm) {
				laughterHits++
			}
		}
	}
	density := 0.0
	if windowLen > 0 {
		density = float64(wordCount) / windowLen
	}
	score := density*1.5 + float64(keywordHits)*1.5 + float64(laughterHits)*2
	if score > 10 {
		score = 10
	}
	return score
}

// snapToSegmentBoundaries nudges a window's edges to the nearest containing
// segment's boundary, so cuts land on sentence boundaries rather than
// mid-word.
func snapToSegmentBoundaries(segments []jobstore.TranscriptSegment, start, end float64) (float64, float64) {
	snappedStart, snappedEnd := start, end
	for _, seg := range segments {
		if seg.Start <= start && start < seg.End {
			snappedStart = seg.Start
		}
		if seg.Start < end && end <= seg.End {
			snappedEnd = seg.End
		}
	}
	return snappedStart, snappedEnd
}

func dedupeByIoU(sorted []candidate, threshold float64) []candidate {
	var kept []candidate
	for _, c := range sorted {
		overlaps := false
		for _, k := range kept {
			if iou(c, k) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b candidate) float64 {
	interStart := max(a.Start, b.Start)
	interEnd := min(a.End, b.End)
	inter := interEnd - interStart
	if inter <= 0 {
		return 0
	}
	union := (a.End - a.Start) + (b.End - b.Start) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
