package caption

import (
	"fmt"
	"io"
	"strings"

	"github.com/clipcut/clipcut-api/jobstore"
)

// WriteASS renders a single karaoke-style ASS dialogue line per transcript
// segment, with per-word \k highlight timing: a single karaoke line with
// currently-spoken words highlighted. Segment/word times are expected to
// already be relative to the clip being captioned (the caller is
// responsible for offsetting the original transcript's absolute times by
// the clip's source_start before calling WriteASS).
func WriteASS(w io.Writer, style Style, segments []jobstore.TranscriptSegment) error {
	if err := writeHeader(w, style); err != nil {
		return err
	}
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		line := karaokeLine(seg, style)
		if _, err := fmt.Fprintf(w, "Dialogue: 0,%s,%s,%s,,0,0,0,,%s\n",
			assTimestamp(seg.Start), assTimestamp(seg.End), style.Name, line); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, style Style) error {
	weight := 0
	if style.Bold {
		weight = -1 // ASS bold flag, -1 == true
	}
	_, err := fmt.Fprintf(w, `[Script Info]
ScriptType: v4.00+
WrapStyle: 0
ScaledBorderAndShadow: yes
YCbCr Matrix: TV.601

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: %s,%s,%d,%s,%s,%s,&H00000000,%d,0,0,0,100,100,0,0,1,2,0,2,10,10,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`, style.Name, style.FontName, style.FontSize, style.PrimaryColour, style.HighlightColour, style.OutlineColour, weight, style.MarginV)
	return err
}

// karaokeLine builds the \k-tagged dialogue text: each word is preceded by a
// \k tag whose argument is that word's spoken duration in centiseconds.
func karaokeLine(seg jobstore.TranscriptSegment, style Style) string {
	if len(seg.Words) == 0 {
		return fmt.Sprintf(`{\c%s}%s`, style.PrimaryColour, escapeASS(seg.Text))
	}
	var b strings.Builder
	for _, word := range seg.Words {
		centis := int((word.End - word.Start) * 100)
		if centis < 1 {
			centis = 1
		}
		fmt.Fprintf(&b, `{\k%d}%s `, centis, escapeASS(word.Word))
	}
	return strings.TrimSpace(b.String())
}

// escapeASS neutralizes ASS override-block delimiters in transcript text.
func escapeASS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", `\{`)
	s = strings.ReplaceAll(s, "}", `\}`)
	return s
}

// assTimestamp formats a seconds offset as ASS's H:MM:SS.CC.
func assTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalCentis := int64(seconds*100 + 0.5)
	cs := totalCentis % 100
	totalSecs := totalCentis / 100
	s := totalSecs % 60
	totalMins := totalSecs / 60
	m := totalMins % 60
	h := totalMins / 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
