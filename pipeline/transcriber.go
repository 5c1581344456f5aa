package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/clipcut/clipcut-api/jobstore"
)

// Transcriber produces a segment + word-level timed transcript from an
// extracted audio file. Real ASR is an external collaborator, explicitly out
// of scope here; this interface is the seam a deployment wires a real
// vendor (Whisper API, Deepgram, etc.) behind.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, duration float64) ([]jobstore.TranscriptSegment, error)
}

// SilenceDetectTranscriber is the local, vendor-free default: it finds
// speech-present windows with ffmpeg's silencedetect filter and fills them
// with evenly-paced placeholder word tokens. It produces no real transcript
// text — it exists so the rest of the pipeline (scoring, captioning) has
// *something* timed to work with when no ASR vendor is configured.
type SilenceDetectTranscriber struct {
	NoiseFloorDB  int
	MinSilenceSec float64
}

func NewSilenceDetectTranscriber() SilenceDetectTranscriber {
	return SilenceDetectTranscriber{NoiseFloorDB: -30, MinSilenceSec: 0.5}
}

var silenceStartRe = regexp.MustCompile(`silence_start: ([0-9.]+)`)
var silenceEndRe = regexp.MustCompile(`silence_end: ([0-9.]+)`)

func (t SilenceDetectTranscriber) Transcribe(ctx context.Context, audioPath string, duration float64) ([]jobstore.TranscriptSegment, error) {
	silences, err := t.detectSilences(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	speech := invertToSpeechWindows(silences, duration)

	var segments []jobstore.TranscriptSegment
	for _, w := range speech {
		if w.end-w.start < 0.5 {
			continue
		}
		segments = append(segments, placeholderSegment(w.start, w.end))
	}
	return segments, nil
}

type window struct{ start, end float64 }

func (t SilenceDetectTranscriber) detectSilences(ctx context.Context, audioPath string) ([]window, error) {
	filter := fmt.Sprintf("silencedetect=noise=%ddB:d=%v", t.NoiseFloorDB, t.MinSilenceSec)
	cmd := exec.CommandContext(ctx, "ffmpeg", "-i", audioPath, "-af", filter, "-f", "null", "-")
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg silencedetect: %w", err)
	}

	var silences []window
	var openStart float64
	haveOpen := false
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			openStart, _ = strconv.ParseFloat(m[1], 64)
			haveOpen = true
			continue
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && haveOpen {
			end, _ := strconv.ParseFloat(m[1], 64)
			silences = append(silences, window{start: openStart, end: end})
			haveOpen = false
		}
	}
	// ffmpeg -f null always "fails" with a non-zero-looking status in some
	// builds even on success; silencedetect's output is what we actually need.
	_ = cmd.Wait()
	return silences, nil
}

// invertToSpeechWindows turns a list of silence windows into the
// complementary speech windows across [0, duration).
func invertToSpeechWindows(silences []window, duration float64) []window {
	var speech []window
	cursor := 0.0
	for _, s := range silences {
		if s.start > cursor {
			speech = append(speech, window{start: cursor, end: s.start})
		}
		if s.end > cursor {
			cursor = s.end
		}
	}
	if cursor < duration {
		speech = append(speech, window{start: cursor, end: duration})
	}
	return speech
}

// placeholderSegment fabricates word-level timings at a nominal speaking
// rate of ~2.5 words/sec, evenly spanning [start,end).
const wordsPerSecond = 2.5

func placeholderSegment(start, end float64) jobstore.TranscriptSegment {
	n := int((end - start) * wordsPerSecond)
	if n < 1 {
		n = 1
	}
	wordDur := (end - start) / float64(n)

	words := make([]jobstore.WordTiming, 0, n)
	text := ""
	for i := 0; i < n; i++ {
		ws := start + float64(i)*wordDur
		we := ws + wordDur
		word := fmt.Sprintf("word%d", i+1)
		words = append(words, jobstore.WordTiming{Start: ws, End: we, Word: word})
		if i > 0 {
			text += " "
		}
		text += word
	}
	return jobstore.TranscriptSegment{Start: start, End: end, Text: text, Words: words}
}
