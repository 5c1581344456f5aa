package video

import (
	"bytes"
	"fmt"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// BurnCaptions overlays an ASS subtitle track onto a clip via ffmpeg's
// `subtitles` filter.
func BurnCaptions(inputPath, assPath, outputPath string) error {
	var ffmpegErr bytes.Buffer
	err := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"vf":  fmt.Sprintf("subtitles=%s", escapeSubtitlesPath(assPath)),
			"c:a": "copy",
			"c:v": "libx264",
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error burning captions onto %s [%s]: %w", inputPath, ffmpegErr.String(), err)
	}
	return nil
}

// escapeSubtitlesPath escapes characters the `subtitles` filter's argument
// parser treats as special (':' separates filter options).
func escapeSubtitlesPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return "'" + r.Replace(path) + "'"
}
