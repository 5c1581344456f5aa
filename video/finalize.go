package video

import (
	"bytes"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Finalize encodes a reframed (and possibly captioned) clip to the target
// quality preset and writes the final output file.
func Finalize(inputPath, outputPath, qualityPreset string) error {
	x264Preset, crf := EncodeParams(qualityPreset)
	var ffmpegErr bytes.Buffer
	err := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"c:v":      "libx264",
			"preset":   x264Preset,
			"crf":      crf,
			"c:a":      "aac",
			"movflags": "faststart",
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error finalizing %s [%s]: %w", inputPath, ffmpegErr.String(), err)
	}
	return nil
}

// ExtractThumbnail grabs a single frame at atSeconds.
func ExtractThumbnail(inputPath, outputPath string, atSeconds float64) error {
	var ffmpegErr bytes.Buffer
	err := ffmpeg.
		Input(inputPath, ffmpeg.KwArgs{"ss": formatTime(atSeconds)}).
		Output(outputPath, ffmpeg.KwArgs{"vframes": "1"}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error extracting thumbnail from %s [%s]: %w", inputPath, ffmpegErr.String(), err)
	}
	return nil
}
