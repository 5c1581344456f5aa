package video

import (
	"bytes"
	"fmt"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ExtractAudio produces a mono 16kHz audio file suitable for ASR.
func ExtractAudio(inputPath, outputPath string) error {
	var ffmpegErr bytes.Buffer
	err := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"vn": "",
			"ac": 1,
			"ar": 16000,
		}).
		OverWriteOutput().WithErrorOutput(&ffmpegErr).Run()
	if err != nil {
		return fmt.Errorf("error extracting audio from %s [%s]: %w", inputPath, ffmpegErr.String(), err)
	}
	return nil
}
